// Package scheduler runs the periodic billing sweeps: recurring charges
// for due subscriptions and checkout expiry.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	chaindomain "github.com/meridianhq/meridian/internal/chain/domain"
	checkoutdomain "github.com/meridianhq/meridian/internal/checkout/domain"
	"github.com/meridianhq/meridian/internal/clock"
	"github.com/meridianhq/meridian/internal/config"
	"github.com/meridianhq/meridian/internal/events"
	obsmetrics "github.com/meridianhq/meridian/internal/observability/metrics"
	orgdomain "github.com/meridianhq/meridian/internal/organization/domain"
	productdomain "github.com/meridianhq/meridian/internal/product/domain"
	"github.com/meridianhq/meridian/internal/ratelimit"
	subscriptiondomain "github.com/meridianhq/meridian/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	DB               *gorm.DB
	Log              *zap.Logger
	GenID            *snowflake.Node
	Clock            clock.Clock
	Chain            chaindomain.Client
	OrgSvc           orgdomain.Service
	SubscriptionRepo subscriptiondomain.Repository
	CheckoutRepo     checkoutdomain.Repository
	ProductRepo      productdomain.Repository
	Dunning          *config.DunningConfigHolder
	Outbox           *events.Outbox           `optional:"true"`
	Limiter          *ratelimit.WebhookLimiter `optional:"true"`
	Config           Config                    `optional:"true"`
}

type Scheduler struct {
	db               *gorm.DB
	log              *zap.Logger
	cfg              Config
	genID            *snowflake.Node
	clock            clock.Clock
	chain            chaindomain.Client
	orgSvc           orgdomain.Service
	subscriptionRepo subscriptiondomain.Repository
	checkoutRepo     checkoutdomain.Repository
	productRepo      productdomain.Repository
	dunning          *config.DunningConfigHolder
	outbox           *events.Outbox
	limiter          *ratelimit.WebhookLimiter
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.Chain == nil ||
		p.OrgSvc == nil || p.SubscriptionRepo == nil || p.CheckoutRepo == nil ||
		p.ProductRepo == nil || p.Dunning == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:               p.DB,
		log:              p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:              p.Config.withDefaults(),
		genID:            p.GenID,
		clock:            p.Clock,
		chain:            p.Chain,
		orgSvc:           p.OrgSvc,
		subscriptionRepo: p.SubscriptionRepo,
		checkoutRepo:     p.CheckoutRepo,
		productRepo:      p.ProductRepo,
		dunning:          p.Dunning,
		outbox:           p.Outbox,
		limiter:          p.Limiter,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	log := s.log.With(zap.String("job", name))
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if err == nil {
		return nil
	}

	// A deadline is a soft timeout: the next sweep picks up the rest.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		schedMetrics.IncJobTimeout(name)
		schedMetrics.IncJobError(name, err)
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	schedMetrics.IncJobError(name, err)
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Enabled bool
		Run     func(context.Context) error
	}{
		{"charge_due_subscriptions", s.isJobEnabled("charge_due_subscriptions"), func(ctx context.Context) error {
			return s.runJob(ctx, "charge_due_subscriptions", 5*time.Minute, s.ChargeDueSubscriptionsJob)
		}},
		{"expire_checkouts", s.isJobEnabled("expire_checkouts"), func(ctx context.Context) error {
			return s.runJob(ctx, "expire_checkouts", 30*time.Second, s.ExpireCheckoutsJob)
		}},
	}

	for _, job := range jobs {
		if job.Enabled {
			err = errors.Join(err, job.Run(parent))
		}
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// Empty EnabledJobs means every job runs (single-binary mode).
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// ExpireCheckoutsJob moves pending checkouts past their deadline to
// expired. The status CAS inside the UPDATE keeps it race-safe against a
// concurrent settlement.
func (s *Scheduler) ExpireCheckoutsJob(ctx context.Context) error {
	expired, err := s.checkoutRepo.ExpirePending(ctx, s.db, s.clock.Now())
	if err != nil {
		return err
	}
	if expired > 0 {
		s.log.Info("expired stale checkouts", zap.Int64("count", expired))
	}
	return nil
}
