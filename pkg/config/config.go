package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// JWTConfig holds token signing settings.
type JWTConfig struct {
	Secret    string
	AccessTTL time.Duration
}

// KafkaConfig holds broker settings shared by producers and consumers.
type KafkaConfig struct {
	Brokers     []string
	GroupPrefix string
}

// Load reads an optional .env file and returns a viper instance bound to the
// environment under the given prefix (RENTAL_DB_HOST -> db_host).
func Load(prefix string) (*viper.Viper, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(prefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("app_env", "development")
	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", "5432")
	v.SetDefault("db_user", "postgres")
	v.SetDefault("db_password", "postgres")
	v.SetDefault("db_sslmode", "disable")
	v.SetDefault("jwt_access_ttl", "15m")
	v.SetDefault("kafka_brokers", "localhost:9092")
	v.SetDefault("kafka_group_prefix", "")

	if v.GetString("jwt_secret") == "" && v.GetString("app_env") != "development" {
		return nil, fmt.Errorf("%s_JWT_SECRET is required outside development", prefix)
	}
	return v, nil
}

// GetAppEnv returns the deployment environment name.
func GetAppEnv(v *viper.Viper) string {
	return v.GetString("app_env")
}

// GetServicePort returns the listen address for the given key, defaulting to :8080.
func GetServicePort(v *viper.Viper, key string) string {
	port := v.GetString(strings.ToLower(key))
	if port == "" {
		return ":8080"
	}
	if !strings.HasPrefix(port, ":") && !strings.Contains(port, ":") {
		return ":" + port
	}
	return port
}

// LoadDatabaseConfig reads database settings; nameKey selects the per-service database name.
func LoadDatabaseConfig(v *viper.Viper, nameKey string) DatabaseConfig {
	return DatabaseConfig{
		Host:     v.GetString("db_host"),
		Port:     v.GetString("db_port"),
		User:     v.GetString("db_user"),
		Password: v.GetString("db_password"),
		DBName:   v.GetString(strings.ToLower(nameKey)),
		SSLMode:  v.GetString("db_sslmode"),
	}
}

// LoadJWTConfig reads token settings.
func LoadJWTConfig(v *viper.Viper) JWTConfig {
	secret := v.GetString("jwt_secret")
	if secret == "" {
		secret = "dev-secret-change-me"
	}
	return JWTConfig{
		Secret:    secret,
		AccessTTL: v.GetDuration("jwt_access_ttl"),
	}
}

// LoadKafkaConfig reads a comma separated broker list.
func LoadKafkaConfig(v *viper.Viper) KafkaConfig {
	var brokers []string
	for _, b := range strings.Split(v.GetString("kafka_brokers"), ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return KafkaConfig{
		Brokers:     brokers,
		GroupPrefix: v.GetString("kafka_group_prefix"),
	}
}
