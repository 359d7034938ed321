package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/rentwheel/service-rental/internal/application"
	"github.com/rentwheel/service-rental/internal/bootstrap"
	"github.com/rentwheel/service-rental/internal/config"
	"github.com/rentwheel/service-rental/internal/repository"
	"github.com/rentwheel/service-rental/pkg/database"
	"github.com/rentwheel/service-rental/pkg/logger"
)

type reconcileOptions struct {
	bookingID  string
	paymentID  string
	customerID string
	timeout    time.Duration
}

func reconcileCmd() *cobra.Command {
	var opts reconcileOptions

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run one payment reconciliation pass for a booking",
		Long: `Reads the payment from the gateway and applies its status to the booking,
exactly as the verify endpoint does. Use it to recover bookings whose transition
failed on an earlier pass.

Examples:
  rentalctl reconcile --booking 5f0c... --payment pay_123 --customer 9a1e...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bookingID, err := uuid.Parse(opts.bookingID)
			if err != nil {
				return fmt.Errorf("invalid --booking: %w", err)
			}
			customerID, err := uuid.Parse(opts.customerID)
			if err != nil {
				return fmt.Errorf("invalid --customer: %w", err)
			}
			if opts.paymentID == "" {
				return fmt.Errorf("--payment is required")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			svc, cleanup, err := newReconciliationService()
			if err != nil {
				return err
			}
			defer cleanup()

			outcome, err := svc.Reconcile(ctx, bookingID, customerID, opts.paymentID)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(outcome)
		},
	}

	cmd.Flags().StringVar(&opts.bookingID, "booking", "", "booking ID")
	cmd.Flags().StringVar(&opts.paymentID, "payment", "", "gateway payment ID")
	cmd.Flags().StringVar(&opts.customerID, "customer", "", "ID of the customer owning the booking")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall deadline")
	_ = cmd.MarkFlagRequired("booking")
	_ = cmd.MarkFlagRequired("payment")
	_ = cmd.MarkFlagRequired("customer")

	return cmd
}

func newReconciliationService() (*application.ReconciliationService, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logger.NewNamed(cfg.AppEnv, "rentalctl")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	db, err := database.Connect(postgresConfig(cfg), log)
	if err != nil {
		_ = log.Sync()
		return nil, nil, err
	}
	return wireReconciliation(cfg, log, db)
}

// wireReconciliation builds the service on an open database. The database is closed
// when wiring fails and by the returned cleanup otherwise.
func wireReconciliation(cfg *config.ServiceConfig, log *zap.Logger, db *gorm.DB) (*application.ReconciliationService, func(), error) {
	closeDB := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		_ = log.Sync()
	}

	gateway, err := bootstrap.NewGateway(cfg.GatewayConfig, log)
	if err != nil {
		closeDB()
		return nil, nil, err
	}
	publisher, closePublisher, err := bootstrap.NewPublisher(cfg, log)
	if err != nil {
		closeDB()
		return nil, nil, err
	}

	repo := repository.NewGormBookingRepository(db)
	svc := application.NewReconciliationService(repo, repo, gateway, publisher, log)

	cleanup := func() {
		_ = closePublisher()
		closeDB()
	}
	return svc, cleanup, nil
}

func postgresConfig(cfg *config.ServiceConfig) database.PostgresConfig {
	return database.PostgresConfig{
		Host:     cfg.DBConfig.Host,
		Port:     cfg.DBConfig.Port,
		User:     cfg.DBConfig.User,
		Password: cfg.DBConfig.Password,
		DBName:   cfg.DBConfig.DBName,
		SSLMode:  cfg.DBConfig.SSLMode,
	}
}
