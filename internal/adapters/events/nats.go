package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/okian/podium/pkg/logger"
	"github.com/okian/podium/pkg/metrics"
)

// NATSPublisher publishes events as core NATS messages under a subject
// prefix.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
	log    logger.Logger
}

// ConnectNATS dials url and returns a publisher for subjects under prefix.
func ConnectNATS(ctx context.Context, url, prefix string) (*NATSPublisher, error) {
	log := logger.Named("events")
	opts := []nats.Option{
		nats.Name("podium"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Error(context.Background(), "nats disconnected", logger.Error(err))
				return
			}
			log.Warn(context.Background(), "nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info(context.Background(), "nats reconnected")
		}),
	}
	if deadline, ok := ctx.Deadline(); ok {
		opts = append(opts, nats.Timeout(time.Until(deadline)))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	log.Info(ctx, "connected to nats", logger.String("url", url), logger.String("prefix", prefix))
	return &NATSPublisher{nc: nc, prefix: strings.Trim(prefix, "."), log: log}, nil
}

// Subject returns the fully qualified subject for name.
func (p *NATSPublisher) Subject(name string) string {
	return qualify(p.prefix, name)
}

func (p *NATSPublisher) Publish(ctx context.Context, subject string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Encode(subject, payload, time.Now())
	if err != nil {
		metrics.RecordEventPublishError(subject)
		return err
	}
	if err := p.nc.Publish(p.Subject(subject), data); err != nil {
		metrics.RecordEventPublishError(subject)
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	metrics.RecordEventPublished(subject)
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return fmt.Errorf("failed to drain nats connection: %w", err)
	}
	return nil
}

func qualify(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
