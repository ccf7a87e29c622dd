package events

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// NATS publishes envelopes on core NATS subjects "<prefix>.<topic>".
type NATS struct {
	nc     *nats.Conn
	prefix string
	log    *zap.Logger
}

// ConnectNATS dials url. The returned cleanup drains the connection.
func ConnectNATS(url, prefix string, log *zap.Logger) (*NATS, func(), error) {
	log = log.Named("nats")
	opts := []nats.Option{
		nats.Name("mango-tracker"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Error("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to connect to NATS")
	}

	cleanup := func() {
		if err := nc.Drain(); err != nil {
			log.Error("failed to drain NATS connection", zap.Error(err))
		}
	}
	log.Info("NATS publisher connected", zap.String("url", url), zap.String("prefix", prefix))
	return NewNATS(nc, prefix, log), cleanup, nil
}

// NewNATS wraps an existing connection.
func NewNATS(nc *nats.Conn, prefix string, log *zap.Logger) *NATS {
	return &NATS{nc: nc, prefix: prefix, log: log}
}

// Subject returns the subject a topic is published on.
func (n *NATS) Subject(topic string) string {
	if n.prefix == "" {
		return topic
	}
	return n.prefix + "." + topic
}

func (n *NATS) Publish(_ context.Context, topic string, payload any) error {
	data, err := json.Marshal(NewEnvelope(topic, payload))
	if err != nil {
		return errors.Wrap(err, "failed to marshal event")
	}
	if err := n.nc.Publish(n.Subject(topic), data); err != nil {
		return errors.Wrapf(err, "failed to publish %s", topic)
	}
	n.log.Debug("event published", zap.String("subject", n.Subject(topic)))
	return nil
}
