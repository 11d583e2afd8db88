package reporting

import (
	"encoding/json"
	"fmt"

	"github.com/deepforge-ai/trainer/internal/config"
	"github.com/deepforge-ai/trainer/internal/models"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSPublisher publishes TrainStatusUpdate messages to a NATS subject.
type NATSPublisher struct {
	nc      *nats.Conn
	logger  *zap.Logger
	subject string
}

// NewNATSPublisher connects to the configured NATS server. Callers should
// only construct one when a URL is configured; use NopPublisher otherwise.
func NewNATSPublisher(cfg *config.NatsConfig, logger *zap.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(
		cfg.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Warn("NATS connection closed permanently.")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}

	logger.Info("Connected to NATS for status reporting",
		zap.String("url", cfg.URL),
		zap.String("subject", cfg.StatusSubject),
	)
	return &NATSPublisher{nc: nc, logger: logger, subject: cfg.StatusSubject}, nil
}

// PublishStatus marshals the update to JSON and publishes it.
func (p *NATSPublisher) PublishStatus(update *models.TrainStatusUpdate) error {
	data, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("failed to marshal status update: %w", err)
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		return fmt.Errorf("failed to publish status update: %w", err)
	}
	return nil
}

// Close flushes and closes the NATS connection.
func (p *NATSPublisher) Close() {
	if err := p.nc.Flush(); err != nil {
		p.logger.Warn("Failed to flush NATS connection on close", zap.Error(err))
	}
	p.nc.Close()
}
