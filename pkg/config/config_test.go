package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ReadsPrefixedEnvironment(t *testing.T) {
	t.Setenv("TESTSVC_APP_ENV", "development")
	t.Setenv("TESTSVC_DB_HOST", "db.internal")
	t.Setenv("TESTSVC_DB_NAME", "rentals")
	t.Setenv("TESTSVC_KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("TESTSVC_JWT_ACCESS_TTL", "30m")
	t.Setenv("TESTSVC_SERVICE_PORT", "9090")

	v, err := Load("TESTSVC")
	require.NoError(t, err)

	db := LoadDatabaseConfig(v, "DB_NAME")
	assert.Equal(t, "db.internal", db.Host)
	assert.Equal(t, "rentals", db.DBName)
	assert.Equal(t, "5432", db.Port)

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, LoadKafkaConfig(v).Brokers)
	assert.Equal(t, 30*time.Minute, LoadJWTConfig(v).AccessTTL)
	assert.Equal(t, ":9090", GetServicePort(v, "SERVICE_PORT"))
	assert.Equal(t, "development", GetAppEnv(v))
}

func TestLoad_RequiresSecretOutsideDevelopment(t *testing.T) {
	t.Setenv("PRODSVC_APP_ENV", "production")

	_, err := Load("PRODSVC")
	assert.Error(t, err)
}
