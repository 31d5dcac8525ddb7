package websocket

import (
	"context"

	"github.com/yegors/depwatch/internal/departure"
	"github.com/yegors/depwatch/internal/schedule"
)

// DepartureLogged broadcasts a departure_logged message.
func (s *Server) DepartureLogged(_ context.Context, r departure.Record) error {
	s.Broadcast(&Message{
		Type: MessageTypeDepartureLogged,
		Data: map[string]any{
			"id":                    r.ID,
			"flight_number":         r.FlightNumber,
			"origin_airport":        r.OriginAirport,
			"destination_airport":   r.DestinationAirport,
			"actual_departure_time": r.DepartureLocal.Format(departure.LocalTimeLayout),
			"month_period":          r.Period,
		},
	})
	return nil
}

// CycleCompleted broadcasts an ingestion cycle summary.
func (s *Server) CycleCompleted(r departure.CycleReport) {
	s.Broadcast(&Message{
		Type: MessageTypeCycleCompleted,
		Data: map[string]any{
			"stations_attempted": r.StationsAttempted,
			"stations_failed":    r.StationsFailed,
			"takeoffs":           r.Takeoffs,
			"logged":             r.Logged,
			"duplicates":         r.Duplicates,
		},
	})
}

// ScheduleUpdated broadcasts an aggregation summary.
func (s *Server) ScheduleUpdated(r schedule.Report) {
	s.Broadcast(&Message{
		Type: MessageTypeScheduleUpdated,
		Data: map[string]any{
			"departures": r.Departures,
			"groups":     r.Groups,
			"updated":    r.Updated,
		},
	})
}
