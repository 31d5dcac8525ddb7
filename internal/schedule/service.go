package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/yegors/depwatch/pkg/logger"
)

// Service reruns the aggregator on a fixed interval.
type Service struct {
	agg      *Aggregator
	interval time.Duration
	logger   *logger.Logger
	onReport func(Report)

	mu         sync.RWMutex
	lastReport *Report
	runMu      sync.Mutex

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewService creates a periodic aggregation service.
func NewService(agg *Aggregator, interval time.Duration, log *logger.Logger) *Service {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Service{
		agg:      agg,
		interval: interval,
		logger:   log.Named("schedule-svc"),
		stopCh:   make(chan struct{}),
	}
}

// OnReport registers a callback invoked after every successful run.
func (s *Service) OnReport(fn func(Report)) {
	s.onReport = fn
}

// Recompute runs one aggregation now. Concurrent calls are serialized.
func (s *Service) Recompute(ctx context.Context, periods ...string) (Report, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	r, err := s.agg.Run(ctx, periods...)
	if err != nil {
		return r, err
	}
	s.mu.Lock()
	s.lastReport = &r
	s.mu.Unlock()

	if s.onReport != nil {
		s.onReport(r)
	}
	return r, nil
}

// LastReport returns the latest successful run, nil before the first one.
func (s *Service) LastReport() *Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastReport == nil {
		return nil
	}
	r := *s.lastReport
	return &r
}

// Start runs an aggregation immediately and then on every tick.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("Starting schedule service", logger.Duration("interval", s.interval))

	s.wg.Add(1)
	go s.loop(ctx)
	return nil
}

// Stop waits for an in-flight aggregation to finish.
func (s *Service) Stop() {
	s.logger.Info("Stopping schedule service")
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("Schedule service stopped")
}

func (s *Service) loop(ctx context.Context) {
	defer s.wg.Done()

	s.runLogged(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runLogged(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) runLogged(ctx context.Context) {
	if _, err := s.Recompute(ctx); err != nil {
		s.logger.Error("Schedule aggregation failed", logger.Error(err))
	}
}
