package publisher

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"train-positions/internal/logging"
	"train-positions/internal/sim"
)

type NATSPublisher struct {
	nc      *nats.Conn
	prefix  string
	logger  *slog.Logger
	metrics PublisherMetrics
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

func NewNATSPublisher(url, prefix string, logger *slog.Logger, m PublisherMetrics) (*NATSPublisher, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	nc, err := nats.Connect(url,
		nats.Name("train-positions"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			if err != nil {
				logger.Warn("nats disconnected", slog.String("error", err.Error()))
			} else {
				logger.Warn("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			logger.Info("nats reconnected", slog.String("url", c.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return &NATSPublisher{nc: nc, prefix: prefix, logger: logger, metrics: m}, nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
		p.nc.Close()
	}
}

// Subject returns <prefix>.<route>.<trip>, with each part made token-safe.
func Subject(prefix, routeID, tripID string) string {
	parts := make([]string, 0, 3)
	if prefix = strings.Trim(strings.TrimSpace(prefix), "."); prefix != "" {
		parts = append(parts, prefix)
	}
	parts = append(parts, subjectToken(routeID), subjectToken(tripID))
	return strings.Join(parts, ".")
}

// PublishSnapshot implements sim.Publisher.
func (p *NATSPublisher) PublishSnapshot(s sim.TrainSnapshot) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	subject := Subject(p.prefix, s.RouteID, s.TripID)
	start := time.Now()
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	if err == nil {
		p.logger.Debug("nats publish", slog.String("subject", subject))
	}
	return err
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
