package main

import (
	"bytes"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/rentwheel/service-rental/internal/config"
)

func TestRootCmd_RegistersSubcommands(t *testing.T) {
	root := rootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "reconcile")
	assert.Contains(t, names, "migrate")
}

func TestReconcileCmd_RejectsBadIDs(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "missing flags",
			args: []string{"reconcile"},
			want: "required flag",
		},
		{
			name: "bad booking id",
			args: []string{"reconcile", "--booking", "nope", "--payment", "pay_1", "--customer", "9a1e6c4e-6c1b-4a57-8f8e-0f4f2b0d7c11"},
			want: "invalid --booking",
		},
		{
			name: "bad customer id",
			args: []string{"reconcile", "--booking", "5f0c2a3e-1d9b-4c0e-9a57-3c1d2b4e6f70", "--payment", "pay_1", "--customer", "nope"},
			want: "invalid --customer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := rootCmd()
			var out bytes.Buffer
			root.SetOut(&out)
			root.SetErr(&out)
			root.SetArgs(tt.args)

			err := root.Execute()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestMigrateCmd_RequiresDirection(t *testing.T) {
	root := rootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"migrate"})

	assert.Error(t, root.Execute())
}

// lazyDB opens a handle without connecting; database/sql dials on first use.
func lazyDB(t *testing.T) (*gorm.DB, *sql.DB) {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=127.0.0.1 port=1 user=x password=x dbname=x sslmode=disable",
	}), &gorm.Config{DisableAutomaticPing: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	return db, sqlDB
}

func TestWireReconciliation_ClosesDatabaseOnFailure(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.ServiceConfig
	}{
		{
			name: "unknown gateway",
			cfg:  &config.ServiceConfig{GatewayConfig: config.GatewayConfig{Provider: "paypal"}},
		},
		{
			name: "unknown broker",
			cfg: &config.ServiceConfig{
				GatewayConfig: config.GatewayConfig{Provider: "rest", BaseURL: "http://gw"},
				EventsConfig:  config.EventsConfig{Broker: "carrier-pigeon"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, sqlDB := lazyDB(t)

			svc, cleanup, err := wireReconciliation(tt.cfg, zap.NewNop(), db)
			require.Error(t, err)
			assert.Nil(t, svc)
			assert.Nil(t, cleanup)
			assert.ErrorContains(t, sqlDB.Ping(), "database is closed")
		})
	}
}

func TestWireReconciliation_CleanupClosesDatabase(t *testing.T) {
	db, sqlDB := lazyDB(t)
	cfg := &config.ServiceConfig{
		GatewayConfig: config.GatewayConfig{Provider: "rest", BaseURL: "http://gw"},
		EventsConfig:  config.EventsConfig{Broker: "none"},
	}

	svc, cleanup, err := wireReconciliation(cfg, zap.NewNop(), db)
	require.NoError(t, err)
	require.NotNil(t, svc)

	cleanup()
	assert.ErrorContains(t, sqlDB.Ping(), "database is closed")
}
