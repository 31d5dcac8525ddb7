// Package events publishes logged departures to NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/yegors/depwatch/internal/departure"
	"github.com/yegors/depwatch/pkg/logger"
)

// DefaultSubjectPrefix is prepended to the origin airport code.
const DefaultSubjectPrefix = "departures"

// DepartureEvent is the published payload.
type DepartureEvent struct {
	ID                 int64  `json:"id"`
	FlightNumber       string `json:"flight_number"`
	OriginAirport      string `json:"origin_airport"`
	DestinationAirport string `json:"destination_airport"`
	DepartureLocal     string `json:"actual_departure_time"`
	Period             string `json:"month_period"`
	LoggedAt           string `json:"logged_at"`
}

// Publisher sends one message per departure on <prefix>.<origin>. It
// implements departure.Notifier.
type Publisher struct {
	nc     *nats.Conn
	prefix string
	logger *logger.Logger
}

// Connect dials the NATS server. Reconnects are unlimited so a broker restart
// does not need a process restart.
func Connect(url, prefix string, log *logger.Logger) (*Publisher, error) {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	l := log.Named("nats")

	nc, err := nats.Connect(url,
		nats.Name("depwatch"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				l.Warn("NATS disconnected", logger.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			l.Info("NATS reconnected", logger.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	l.Info("Connected to NATS", logger.String("url", nc.ConnectedUrl()), logger.String("prefix", prefix))
	return &Publisher{nc: nc, prefix: prefix, logger: l}, nil
}

// Subject returns the subject a departure from origin is published on.
func Subject(prefix, origin string) string {
	origin = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(origin)
	if origin == "" {
		origin = "UNKNOWN"
	}
	return prefix + "." + origin
}

// Payload encodes a record as the published JSON document.
func Payload(r departure.Record) ([]byte, error) {
	logged := r.CreatedAt
	if logged.IsZero() {
		logged = time.Now().UTC()
	}
	return json.Marshal(DepartureEvent{
		ID:                 r.ID,
		FlightNumber:       r.FlightNumber,
		OriginAirport:      r.OriginAirport,
		DestinationAirport: r.DestinationAirport,
		DepartureLocal:     r.DepartureLocal.Format(departure.LocalTimeLayout),
		Period:             r.Period,
		LoggedAt:           logged.UTC().Format(time.RFC3339),
	})
}

// DepartureLogged publishes the departure.
func (p *Publisher) DepartureLogged(_ context.Context, r departure.Record) error {
	data, err := Payload(r)
	if err != nil {
		return fmt.Errorf("encode departure event: %w", err)
	}
	subject := Subject(p.prefix, r.OriginAirport)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.logger.Debug("Published departure", logger.String("subject", subject), logger.String("flight", r.FlightNumber))
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() error {
	return p.nc.Drain()
}
