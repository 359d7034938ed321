//go:build integration

package main_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkamodule "github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/rentwheel/service-rental/internal/application"
	rentalEvents "github.com/rentwheel/service-rental/internal/events"
	"github.com/rentwheel/service-rental/internal/gateway/rest"
	"github.com/rentwheel/service-rental/internal/repository"
	"github.com/rentwheel/service-rental/migrations"
	"github.com/rentwheel/service-rental/pkg/database"
	"github.com/rentwheel/service-rental/pkg/events"
	"github.com/rentwheel/service-rental/pkg/kafka"
)

// testInfra holds shared test infrastructure.
type testInfra struct {
	DB           *gorm.DB
	KafkaBrokers []string
	Cleanup      func()
}

// rentalStack holds wired-up reconciliation components.
type rentalStack struct {
	Repo            *repository.GormBookingRepository
	Service         *application.ReconciliationService
	Consumer        *rentalEvents.PaymentWebhookConsumer
	Gateway         *fakeGateway
	CleanupProducer func()
}

// setupContainers starts PostgreSQL and Kafka testcontainers, applies migrations and
// returns a connected GORM DB.
func setupContainers(t *testing.T) *testInfra {
	t.Helper()
	ctx := context.Background()

	pgReq := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "test_rental",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: pgReq,
		Started:          true,
	})
	require.NoError(t, err, "failed to start PostgreSQL container")

	pgHost, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	pgPort, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dbConfig := database.PostgresConfig{
		Host:     pgHost,
		Port:     pgPort.Port(),
		User:     "test",
		Password: "test",
		DBName:   "test_rental",
		SSLMode:  "disable",
	}

	var db *gorm.DB
	require.Eventually(t, func() bool {
		var err error
		db, err = database.Connect(dbConfig, zap.NewNop())
		return err == nil
	}, 30*time.Second, 1*time.Second, "PostgreSQL not ready for connections")

	require.NoError(t, database.RunMigrations(dbConfig.DatabaseURL(), migrations.FS, zap.NewNop()))

	kafkaContainer, err := kafkamodule.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err, "failed to start Kafka container")

	kafkaBrokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err, "failed to get Kafka brokers")

	createTopics(t, kafkaBrokers, events.TopicBookingEvents, events.TopicPaymentWebhooks)

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Kafka container: %v", err)
		}
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate PostgreSQL container: %v", err)
		}
	}

	return &testInfra{
		DB:           db,
		KafkaBrokers: kafkaBrokers,
		Cleanup:      cleanup,
	}
}

// setupRentalStack wires the reconciliation service against a fake gateway.
func setupRentalStack(t *testing.T, db *gorm.DB, brokers []string) *rentalStack {
	t.Helper()
	logger, _ := zap.NewDevelopment()

	gw := newFakeGateway(t)
	repo := repository.NewGormBookingRepository(db)
	producer := kafka.NewProducer(brokers, logger)
	client := rest.NewClient(gw.URL(), "sk_test", 5*time.Second, logger)
	svc := application.NewReconciliationService(repo, repo, client, producer, logger)

	groupID := fmt.Sprintf("test-rental-%s", uuid.New().String()[:8])
	consumer := rentalEvents.NewPaymentWebhookConsumer(brokers, groupID, svc, nil, logger)

	return &rentalStack{
		Repo:            repo,
		Service:         svc,
		Consumer:        consumer,
		Gateway:         gw,
		CleanupProducer: func() { _ = producer.Close() },
	}
}

// fakeGateway serves payments in the gateway's REST shape.
type fakeGateway struct {
	server   *httptest.Server
	mu       sync.Mutex
	payments map[string]map[string]interface{}
}

func newFakeGateway(t *testing.T) *fakeGateway {
	t.Helper()
	gw := &fakeGateway{payments: make(map[string]map[string]interface{})}
	gw.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/v1/payments/")
		gw.mu.Lock()
		body, ok := gw.payments[id]
		gw.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(gw.server.Close)
	return gw
}

func (g *fakeGateway) URL() string { return g.server.URL }

// SetPayment registers or replaces the payment returned for id.
func (g *fakeGateway) SetPayment(id, status string, bookingID uuid.UUID, amount int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payments[id] = map[string]interface{}{
		"id":       id,
		"status":   status,
		"amount":   amount,
		"currency": "SAR",
		"source": map[string]interface{}{
			"message":         "",
			"transaction_url": "https://gateway.test/3ds/" + id,
		},
		"metadata": map[string]string{"booking_id": bookingID.String()},
	}
}

// seedPaymentPendingBooking inserts a booking awaiting payment and an inventory row
// holding one unit for its car.
func seedPaymentPendingBooking(t *testing.T, db *gorm.DB, bookingID, customerID, carID uuid.UUID) {
	t.Helper()
	now := time.Now().UTC()

	pricing, _ := json.Marshal(map[string]interface{}{
		"daily_rate": 25000,
		"days":       3,
		"insurance":  7500,
		"total":      82500,
	})

	model := repository.BookingModel{
		ID:              bookingID,
		BookingNumber:   fmt.Sprintf("RW-%s", strings.ToUpper(uuid.New().String()[:6])),
		CustomerID:      customerID,
		CarID:           carID,
		LifecycleState:  "payment_pending",
		PricingSnapshot: pricing,
		TotalAmount:     82500,
		Currency:        "SAR",
		StartDate:       now.Add(24 * time.Hour),
		EndDate:         now.Add(96 * time.Hour),
		InventoryHeld:   true,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, db.Create(&model).Error, "failed to seed booking")

	inventory := repository.CarInventoryModel{
		CarID:       carID,
		TotalUnits:  2,
		HeldUnits:   1,
		RentedUnits: 0,
		UpdatedAt:   now,
	}
	require.NoError(t, db.Create(&inventory).Error, "failed to seed car inventory")
}

// publishTestEvent publishes a CloudEvent to Kafka.
func publishTestEvent(t *testing.T, brokers []string, topic, key, source, eventType string, data interface{}) {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	producer := kafka.NewProducer(brokers, logger)
	defer func() { _ = producer.Close() }()

	ce, err := kafka.NewCloudEvent(source, eventType, data)
	require.NoError(t, err, "failed to create cloud event")

	err = producer.PublishEvent(context.Background(), topic, key, ce)
	require.NoError(t, err, "failed to publish event")
}

// waitForLifecycleState polls the bookings table until the state matches.
func waitForLifecycleState(t *testing.T, db *gorm.DB, bookingID uuid.UUID, expected string, timeout time.Duration) repository.BookingModel {
	t.Helper()
	var result repository.BookingModel
	require.Eventually(t, func() bool {
		var model repository.BookingModel
		if err := db.Where("id = ?", bookingID).First(&model).Error; err != nil {
			return false
		}
		if model.LifecycleState == expected {
			result = model
			return true
		}
		return false
	}, timeout, 200*time.Millisecond, "booking did not transition to %s", expected)
	return result
}

func loadInventory(t *testing.T, db *gorm.DB, carID uuid.UUID) repository.CarInventoryModel {
	t.Helper()
	var inv repository.CarInventoryModel
	require.NoError(t, db.Where("car_id = ?", carID).First(&inv).Error)
	return inv
}

func countLedger(t *testing.T, db *gorm.DB, bookingID uuid.UUID, kind string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&repository.LedgerModel{}).
		Where("booking_id = ? AND kind = ?", bookingID, kind).
		Count(&n).Error)
	return n
}

// consumeOneEvent reads from a Kafka topic until it finds an event of the expected type.
func consumeOneEvent(t *testing.T, brokers []string, topic, expectedType string, timeout time.Duration) kafka.CloudEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	groupID := fmt.Sprintf("test-assert-%s", uuid.New().String()[:8])
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafkago.FirstOffset,
	})
	defer func() { _ = reader.Close() }()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				t.Fatalf("timed out waiting for event type %q on topic %q", expectedType, topic)
			}
			continue
		}
		ce, err := kafka.ParseCloudEvent(msg.Value)
		if err != nil {
			continue
		}
		if ce.Type == expectedType {
			return ce
		}
	}
}

// createTopics pre-creates Kafka topics so producers don't fail with "Unknown Topic".
func createTopics(t *testing.T, brokers []string, topics ...string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", brokers[0])
	require.NoError(t, err, "failed to dial Kafka for topic creation")
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err, "failed to get Kafka controller")

	controllerConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, fmt.Sprintf("%d", controller.Port)))
	require.NoError(t, err, "failed to connect to Kafka controller")
	defer controllerConn.Close()

	topicConfigs := make([]kafkago.TopicConfig, len(topics))
	for i, topic := range topics {
		topicConfigs[i] = kafkago.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		}
	}
	require.NoError(t, controllerConn.CreateTopics(topicConfigs...), "failed to create Kafka topics")

	time.Sleep(1 * time.Second)
}
