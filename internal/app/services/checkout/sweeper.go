package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/patisserie-labs/storefront/internal/app/system"
	"github.com/patisserie-labs/storefront/pkg/logger"
)

var _ system.Service = (*Sweeper)(nil)

// DefaultSweepSchedule runs the expiry sweep once a minute.
const DefaultSweepSchedule = "@every 1m"

// Sweeper periodically expires checkout sessions whose payment window closed.
type Sweeper struct {
	service  *Service
	schedule string
	log      *logger.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

func NewSweeper(service *Service, schedule string, log *logger.Logger) *Sweeper {
	if log == nil {
		log = logger.NewDefault("checkout-sweeper")
	}
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	return &Sweeper{service: service, schedule: schedule, log: log}
}

func (s *Sweeper) Name() string { return "checkout-sweeper" }

func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.schedule, func() { s.Sweep(context.Background()) }); err != nil {
		return err
	}
	c.Start()
	s.cron = c
	s.running = true
	s.log.WithField("schedule", s.schedule).Info("checkout sweeper started")
	return nil
}

func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	c := s.cron
	s.cron = nil
	s.running = false
	s.mu.Unlock()

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	s.log.Info("checkout sweeper stopped")
	return nil
}

// Sweep runs one expiry pass.
func (s *Sweeper) Sweep(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	n, err := s.service.ExpireStale(ctx)
	if err != nil {
		s.log.WithError(err).Warn("checkout sweep failed")
		return 0
	}
	if n > 0 {
		s.log.WithField("expired", n).Info("expired stale checkout sessions")
	}
	return n
}
