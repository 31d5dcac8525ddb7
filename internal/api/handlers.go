package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yegors/depwatch/internal/departure"
	"github.com/yegors/depwatch/internal/export"
	"github.com/yegors/depwatch/internal/schedule"
	"github.com/yegors/depwatch/internal/station"
	"github.com/yegors/depwatch/pkg/logger"
)

const (
	defaultDepartureLimit = 100
	maxDepartureLimit     = 1000
)

// Store is the read side of the persistence gateway.
type Store interface {
	ListDepartures(ctx context.Context, f departure.Filter) ([]departure.Record, error)
	ListSchedule(ctx context.Context, f schedule.Filter) ([]schedule.Entry, error)
	Ping(ctx context.Context) error
}

// Ingestor is the ingestion loop as seen by the API.
type Ingestor interface {
	Trigger() bool
	LastReport() *departure.CycleReport
}

// Scheduler is the aggregation service as seen by the API.
type Scheduler interface {
	Recompute(ctx context.Context, periods ...string) (schedule.Report, error)
	LastReport() *schedule.Report
}

// Handler contains the API handlers
type Handler struct {
	store     Store
	registry  *station.Registry
	ingestor  Ingestor
	scheduler Scheduler
	logger    *logger.Logger
	startedAt time.Time
}

// NewHandler creates a new API handler. ingestor and scheduler may be nil,
// in which case the matching POST endpoints answer 503.
func NewHandler(store Store, registry *station.Registry, ingestor Ingestor, scheduler Scheduler, log *logger.Logger) *Handler {
	return &Handler{
		store:     store,
		registry:  registry,
		ingestor:  ingestor,
		scheduler: scheduler,
		logger:    log.Named("api-handler"),
		startedAt: time.Now().UTC(),
	}
}

// departureView renders a record with its naive local time.
type departureView struct {
	ID                 int64  `json:"id"`
	FlightNumber       string `json:"flight_number"`
	OriginAirport      string `json:"origin_airport"`
	DestinationAirport string `json:"destination_airport"`
	DepartureTime      string `json:"actual_departure_time"`
	Period             string `json:"month_period"`
}

func toView(r departure.Record) departureView {
	return departureView{
		ID:                 r.ID,
		FlightNumber:       r.FlightNumber,
		OriginAirport:      r.OriginAirport,
		DestinationAirport: r.DestinationAirport,
		DepartureTime:      r.DepartureLocal.Format(departure.LocalTimeLayout),
		Period:             r.Period,
	}
}

// GetHealth returns the health status of the API
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	dbStatus := "ok"
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Warn("Health check: storage ping failed", logger.Error(err))
		status, dbStatus = "degraded", err.Error()
		code = http.StatusServiceUnavailable
	}

	response := map[string]any{
		"status":         status,
		"storage":        dbStatus,
		"stations":       h.registry.Len(),
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
	}
	if h.ingestor != nil {
		if rep := h.ingestor.LastReport(); rep != nil {
			response["last_cycle"] = rep
		}
	}
	if h.scheduler != nil {
		if rep := h.scheduler.LastReport(); rep != nil {
			response["last_aggregation"] = rep
		}
	}

	WriteJSON(w, code, response)
}

// GetStations returns the monitored stations in cycle order
func (h *Handler) GetStations(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"stations": h.registry.All(),
	})
}

// GetDepartures lists flight-log rows, newest first
func (h *Handler) GetDepartures(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := departure.Filter{
		FlightNumber:  strings.TrimSpace(q.Get("flight")),
		OriginAirport: strings.ToUpper(strings.TrimSpace(q.Get("origin"))),
		Period:        strings.TrimSpace(q.Get("period")),
		Limit:         defaultDepartureLimit,
	}
	if filter.Period != "" && !validPeriod(filter.Period) {
		WriteError(w, http.StatusBadRequest, "period must be YYYY-MM")
		return
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			WriteError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = min(limit, maxDepartureLimit)
	}

	records, err := h.store.ListDepartures(r.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list departures", logger.Error(err))
		WriteError(w, http.StatusInternalServerError, "failed to list departures")
		return
	}

	views := make([]departureView, 0, len(records))
	for _, rec := range records {
		views = append(views, toView(rec))
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"count":      len(views),
		"departures": views,
	})
}

func (h *Handler) scheduleFilter(r *http.Request) (schedule.Filter, bool) {
	q := r.URL.Query()
	f := schedule.Filter{
		FlightNumber:  strings.TrimSpace(q.Get("flight")),
		OriginAirport: strings.ToUpper(strings.TrimSpace(q.Get("origin"))),
		Period:        strings.TrimSpace(q.Get("period")),
	}
	return f, f.Period == "" || validPeriod(f.Period)
}

// GetSchedule lists estimated departure times
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.scheduleFilter(r)
	if !ok {
		WriteError(w, http.StatusBadRequest, "period must be YYYY-MM")
		return
	}

	entries, err := h.store.ListSchedule(r.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list schedule", logger.Error(err))
		WriteError(w, http.StatusInternalServerError, "failed to list schedule")
		return
	}
	if entries == nil {
		entries = []schedule.Entry{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"count":    len(entries),
		"schedule": entries,
	})
}

// ExportSchedule streams the schedule as an XLSX workbook
func (h *Handler) ExportSchedule(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.scheduleFilter(r)
	if !ok {
		WriteError(w, http.StatusBadRequest, "period must be YYYY-MM")
		return
	}

	entries, err := h.store.ListSchedule(r.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list schedule for export", logger.Error(err))
		WriteError(w, http.StatusInternalServerError, "failed to list schedule")
		return
	}

	name := "schedule.xlsx"
	if filter.Period != "" {
		name = "schedule-" + filter.Period + ".xlsx"
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	if err := export.WriteSchedule(w, entries); err != nil {
		h.logger.Error("Failed to write schedule workbook", logger.Error(err))
	}
}

// TriggerIngest requests an immediate ingestion cycle
func (h *Handler) TriggerIngest(w http.ResponseWriter, r *http.Request) {
	if h.ingestor == nil {
		WriteError(w, http.StatusServiceUnavailable, "ingestion is not running")
		return
	}
	queued := h.ingestor.Trigger()
	h.logger.Info("Ingestion cycle requested", logger.Bool("queued", queued))
	WriteJSON(w, http.StatusAccepted, map[string]any{"queued": queued})
}

// RecomputeSchedule runs the aggregation now, optionally for one period
func (h *Handler) RecomputeSchedule(w http.ResponseWriter, r *http.Request) {
	if h.scheduler == nil {
		WriteError(w, http.StatusServiceUnavailable, "schedule service is not running")
		return
	}

	var periods []string
	if p := strings.TrimSpace(r.URL.Query().Get("period")); p != "" {
		if !validPeriod(p) {
			WriteError(w, http.StatusBadRequest, "period must be YYYY-MM")
			return
		}
		periods = append(periods, p)
	}

	report, err := h.scheduler.Recompute(r.Context(), periods...)
	if err != nil {
		h.logger.Error("Schedule recompute failed", logger.Error(err))
		WriteError(w, http.StatusInternalServerError, "schedule recompute failed")
		return
	}
	WriteJSON(w, http.StatusOK, report)
}

func validPeriod(p string) bool {
	_, err := time.Parse(station.PeriodLayout, p)
	return err == nil
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// WriteError writes a JSON error body
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"error": msg})
}
