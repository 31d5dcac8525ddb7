package departure

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yegors/depwatch/internal/adsb"
	"github.com/yegors/depwatch/internal/station"
	"github.com/yegors/depwatch/pkg/logger"
)

// Fetcher retrieves the aircraft near one station.
type Fetcher interface {
	FetchSnapshot(ctx context.Context, st station.Station) (*adsb.Snapshot, error)
}

// Notifier is told about every departure that was written to the flight log.
// Notifier errors are logged and never fail ingestion.
type Notifier interface {
	DepartureLogged(ctx context.Context, rec Record) error
}

// Notifiers fans a departure out to several notifiers.
type Notifiers []Notifier

// DepartureLogged calls every notifier and joins their errors.
func (n Notifiers) DepartureLogged(ctx context.Context, rec Record) error {
	var errs []error
	for _, x := range n {
		if err := x.DepartureLogged(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ServiceConfig controls cycle pacing.
type ServiceConfig struct {
	StationDelay  time.Duration
	CycleInterval time.Duration
	Workers       int
}

// Service is the ingestion loop: fetch, classify, dedup and persist, station by
// station.
type Service struct {
	registry   *station.Registry
	fetcher    Fetcher
	classifier *Classifier
	dedup      *Deduplicator
	notifier   Notifier
	cfg        ServiceConfig
	logger     *logger.Logger
	now        func() time.Time
	onCycle    func(CycleReport)

	mu         sync.RWMutex
	lastReport *CycleReport
	cycleMu    sync.Mutex

	triggerCh chan struct{}
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewService creates the ingestion loop. notifier may be nil.
func NewService(
	registry *station.Registry,
	fetcher Fetcher,
	classifier *Classifier,
	dedup *Deduplicator,
	notifier Notifier,
	cfg ServiceConfig,
	log *logger.Logger,
) *Service {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.StationDelay < 0 {
		cfg.StationDelay = 0
	}
	return &Service{
		registry:   registry,
		fetcher:    fetcher,
		classifier: classifier,
		dedup:      dedup,
		notifier:   notifier,
		cfg:        cfg,
		logger:     log.Named("ingest"),
		now:        time.Now,
		triggerCh:  make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
	}
}

// SetClock overrides the clock used to stamp departures.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// OnCycle registers a callback invoked after every completed cycle.
func (s *Service) OnCycle(fn func(CycleReport)) {
	s.onCycle = fn
}

// RunCycle attempts every station once. Station failures are isolated; the
// returned error is only non-nil when ctx was cancelled before the cycle
// finished.
func (s *Service) RunCycle(ctx context.Context) (CycleReport, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	report := CycleReport{
		StartedAt: time.Now().UTC(),
		Skips:     make(map[Verdict]int),
	}
	stations := s.registry.All()

	s.logger.Info("Starting ingestion cycle",
		logger.Int("stations", len(stations)),
		logger.Int("workers", s.cfg.Workers))

	var err error
	if s.cfg.Workers == 1 {
		err = s.runSequential(ctx, stations, &report)
	} else {
		err = s.runPooled(ctx, stations, &report)
	}
	report.Duration = time.Since(report.StartedAt)

	s.mu.Lock()
	r := report
	s.lastReport = &r
	s.mu.Unlock()

	s.logger.Info("Ingestion cycle finished",
		logger.Int("stations_attempted", report.StationsAttempted),
		logger.Int("stations_failed", report.StationsFailed),
		logger.Int("vectors", report.VectorsSeen),
		logger.Int("takeoffs", report.Takeoffs),
		logger.Int("duplicates", report.Duplicates),
		logger.Int("logged", report.Logged),
		logger.Duration("duration", report.Duration))

	if s.onCycle != nil {
		s.onCycle(report)
	}
	return report, err
}

func (s *Service) runSequential(ctx context.Context, stations []station.Station, report *CycleReport) error {
	for i, st := range stations {
		if err := ctx.Err(); err != nil {
			return err
		}
		report.merge(s.processStation(ctx, st))

		if i < len(stations)-1 {
			if err := s.pause(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// runPooled spreads stations over a bounded pool. Each worker paces after its
// own station.
func (s *Service) runPooled(ctx context.Context, stations []station.Station, report *CycleReport) error {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)

	for _, st := range stations {
		st := st // per-iteration copy; go.mod targets Go 1.21 loop semantics
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r := s.processStation(gctx, st)
			mu.Lock()
			report.merge(r)
			mu.Unlock()
			return s.pause(gctx)
		})
	}
	return g.Wait()
}

// pause waits out the inter-station delay, returning early on shutdown.
func (s *Service) pause(ctx context.Context) error {
	if s.cfg.StationDelay == 0 {
		return nil
	}
	t := time.NewTimer(s.cfg.StationDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-s.stopCh:
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// processStation handles one station. A fetch failure skips the station; a
// persistence failure stops the station's remaining vectors.
func (s *Service) processStation(ctx context.Context, st station.Station) stationReport {
	r := stationReport{skips: make(map[Verdict]int)}
	log := s.logger.With(logger.String("station", st.Code))

	snap, err := s.fetcher.FetchSnapshot(ctx, st)
	if err != nil {
		r.failed = true
		var fe *adsb.FetchError
		if errors.As(err, &fe) && fe.StatusCode != 0 {
			log.Warn("Snapshot fetch failed", logger.Int("status", fe.StatusCode), logger.Error(err))
		} else {
			log.Warn("Snapshot fetch failed", logger.Error(err))
		}
		return r
	}
	r.vectors = len(snap.Aircraft)

	for _, v := range snap.Aircraft {
		verdict := s.classifier.Classify(v)
		if verdict != VerdictTakeoff {
			r.skips[verdict]++
			continue
		}
		r.takeoffs++

		ev := NewEvent(v.Callsign, st, s.now().UTC())
		id, logged, err := s.dedup.Record(ctx, ev)
		if err != nil {
			r.failed = true
			log.Error("Persistence failed, abandoning station for this cycle",
				logger.String("flight", ev.FlightNumber),
				logger.Error(err))
			return r
		}
		if !logged {
			r.duplicates++
			log.Debug("Duplicate departure ignored", logger.String("flight", ev.FlightNumber))
			continue
		}
		r.logged++

		log.Info("Departure logged",
			logger.String("flight", ev.FlightNumber),
			logger.String("local_time", ev.LocalString()),
			logger.String("period", ev.Period))

		s.notify(ctx, Record{
			ID:                 id,
			FlightNumber:       ev.FlightNumber,
			OriginAirport:      ev.OriginAirport,
			DestinationAirport: ev.DestinationAirport,
			DepartureLocal:     ev.DepartureLocal,
			Period:             ev.Period,
			CreatedAt:          time.Now().UTC(),
		})
	}

	log.Debug("Station processed",
		logger.Int("vectors", r.vectors),
		logger.Int("takeoffs", r.takeoffs),
		logger.Int("logged", r.logged))
	return r
}

func (s *Service) notify(ctx context.Context, rec Record) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.DepartureLogged(ctx, rec); err != nil {
		s.logger.Warn("Departure notification failed",
			logger.String("flight", rec.FlightNumber),
			logger.Error(err))
	}
}

// LastReport returns the most recent cycle report, nil before the first cycle.
func (s *Service) LastReport() *CycleReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastReport == nil {
		return nil
	}
	r := *s.lastReport
	return &r
}

// Trigger requests an immediate cycle. It does not block; a pending request
// absorbs further triggers.
func (s *Service) Trigger() bool {
	select {
	case s.triggerCh <- struct{}{}:
		return true
	default:
		return false
	}
}

// Start runs a cycle immediately and then on every interval tick or trigger.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("Starting ingestion service",
		logger.Duration("cycle_interval", s.cfg.CycleInterval),
		logger.Duration("station_delay", s.cfg.StationDelay))

	s.wg.Add(1)
	go s.cycleLoop(ctx)
	return nil
}

// Stop interrupts any station pause and waits for the running cycle to end.
func (s *Service) Stop() {
	s.logger.Info("Stopping ingestion service")
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("Ingestion service stopped")
}

func (s *Service) cycleLoop(ctx context.Context) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	s.runLogged(ctx)

	var tick <-chan time.Time
	if s.cfg.CycleInterval > 0 {
		ticker := time.NewTicker(s.cfg.CycleInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-tick:
			s.runLogged(ctx)
		case <-s.triggerCh:
			s.runLogged(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) runLogged(ctx context.Context) {
	if _, err := s.RunCycle(ctx); err != nil {
		s.logger.Warn("Ingestion cycle interrupted", logger.Error(err))
	}
}
