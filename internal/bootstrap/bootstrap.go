package bootstrap

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/rentwheel/service-rental/internal/application"
	"github.com/rentwheel/service-rental/internal/config"
	"github.com/rentwheel/service-rental/internal/domain/payment"
	"github.com/rentwheel/service-rental/internal/gateway/omise"
	"github.com/rentwheel/service-rental/internal/gateway/rest"
	"github.com/rentwheel/service-rental/pkg/kafka"
	"github.com/rentwheel/service-rental/pkg/mq"
)

// NewGateway builds the payment gateway client selected by cfg.Provider.
func NewGateway(cfg config.GatewayConfig, log *zap.Logger) (payment.Gateway, error) {
	switch cfg.Provider {
	case "", "rest":
		return rest.NewClient(cfg.BaseURL, cfg.SecretKey, cfg.Timeout, log.Named("gateway")), nil
	case "omise":
		return omise.NewClient(cfg.PublicKey, cfg.SecretKey, log.Named("gateway"))
	default:
		return nil, fmt.Errorf("unknown gateway provider %q", cfg.Provider)
	}
}

// NewPublisher builds the lifecycle event publisher selected by cfg.EventsConfig.Broker.
// The returned close function is never nil. A nil publisher means events are disabled.
func NewPublisher(cfg *config.ServiceConfig, log *zap.Logger) (application.EventPublisher, func() error, error) {
	noop := func() error { return nil }

	switch cfg.EventsConfig.Broker {
	case "", "kafka":
		producer := kafka.NewProducer(cfg.KafkaConfig.Brokers, log)
		return producer, producer.Close, nil
	case "rabbitmq":
		publisher, err := mq.NewPublisher(cfg.EventsConfig.AMQPURL, cfg.EventsConfig.Exchange, log)
		if err != nil {
			return nil, noop, err
		}
		return publisher, publisher.Close, nil
	case "none":
		return nil, noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown events broker %q", cfg.EventsConfig.Broker)
	}
}
