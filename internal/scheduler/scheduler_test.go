package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/meridianhq/meridian/internal/chain/chaintest"
	chaindomain "github.com/meridianhq/meridian/internal/chain/domain"
	checkoutdomain "github.com/meridianhq/meridian/internal/checkout/domain"
	checkoutrepo "github.com/meridianhq/meridian/internal/checkout/repository"
	"github.com/meridianhq/meridian/internal/clock"
	"github.com/meridianhq/meridian/internal/config"
	"github.com/meridianhq/meridian/internal/events"
	obsmetrics "github.com/meridianhq/meridian/internal/observability/metrics"
	orgdomain "github.com/meridianhq/meridian/internal/organization/domain"
	orgrepo "github.com/meridianhq/meridian/internal/organization/repository"
	orgservice "github.com/meridianhq/meridian/internal/organization/service"
	productdomain "github.com/meridianhq/meridian/internal/product/domain"
	productrepo "github.com/meridianhq/meridian/internal/product/repository"
	subscriptiondomain "github.com/meridianhq/meridian/internal/subscription/domain"
	subscriptionrepo "github.com/meridianhq/meridian/internal/subscription/repository"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testOrgID      = snowflake.ID(100)
	testCustomerID = snowflake.ID(200)
	testProductID  = snowflake.ID(300)
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	db       *gorm.DB
	chain    *chaintest.Fake
	clock    *clock.FakeClock
	dunning  *config.DunningConfigHolder
	sched    *Scheduler
	registry *prometheus.Registry
}

func newTestEnv(t *testing.T, dunning config.DunningConfig) *testEnv {
	t.Helper()

	registry := prometheus.NewRegistry()
	t.Cleanup(swapPrometheusRegistry(registry))
	obsmetrics.ResetSchedulerMetricsForTest()
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{ServiceName: "meridian", Environment: "test"})

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(
		&orgdomain.Organization{},
		&orgdomain.APIKey{},
		&orgdomain.StellarSettings{},
		&productdomain.Product{},
		&subscriptiondomain.Subscription{},
		&checkoutdomain.Checkout{},
		&events.BillingEvent{},
	))

	node, err := snowflake.NewNode(1)
	assert.NoError(t, err)

	fakeChain := chaintest.New()
	fakeClock := clock.NewFakeClock(testNow)
	holder := config.NewStaticDunningConfigHolder(dunning)

	orgSvc := orgservice.NewService(orgservice.Params{
		DB:   db,
		Log:  zap.NewNop(),
		Repo: orgrepo.Provide(),
	})

	sched, err := New(Params{
		DB:               db,
		Log:              zap.NewNop(),
		GenID:            node,
		Clock:            fakeClock,
		Chain:            fakeChain,
		OrgSvc:           orgSvc,
		SubscriptionRepo: subscriptionrepo.Provide(),
		CheckoutRepo:     checkoutrepo.Provide(),
		ProductRepo:      productrepo.Provide(),
		Dunning:          holder,
		Outbox:           events.NewOutbox(db, node),
		Config:           Config{BatchSize: 10, ChargeTimeout: time.Second},
	})
	assert.NoError(t, err)

	return &testEnv{
		db:       db,
		chain:    fakeChain,
		clock:    fakeClock,
		dunning:  holder,
		sched:    sched,
		registry: registry,
	}
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetSchedulerMetricsForTest()
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			if metric.Counter == nil {
				t.Fatalf("metric %s is not a counter", name)
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}

func outcomeLabels(outcome string) map[string]string {
	return map[string]string{"service": "meridian", "env": "test", "outcome": outcome}
}

func (e *testEnv) seedSettings(t *testing.T) {
	t.Helper()
	assert.NoError(t, e.db.Create(&orgdomain.StellarSettings{
		ID:                  snowflake.ID(1),
		OrgID:               testOrgID,
		Environment:         orgdomain.EnvironmentTestnet,
		DistributionAccount: "GDISTRIBUTIONACCOUNT",
		WebhookSigningKey:   "00",
		CreatedAt:           testNow,
		UpdatedAt:           testNow,
	}).Error)
}

func (e *testEnv) seedProduct(t *testing.T) {
	t.Helper()
	assert.NoError(t, e.db.Create(&productdomain.Product{
		ID:             testProductID,
		OrgID:          testOrgID,
		Environment:    orgdomain.EnvironmentTestnet,
		Name:           "starter",
		Amount:         5000,
		AssetCode:      "USDC",
		CreditsGranted: 100,
		Interval:       productdomain.IntervalMonth,
		Active:         true,
		CreatedAt:      testNow,
		UpdatedAt:      testNow,
	}).Error)
}

func (e *testEnv) seedSubscription(t *testing.T, id snowflake.ID, status subscriptiondomain.Status, wallet string, periodEnd time.Time, failedCycles int) {
	t.Helper()
	assert.NoError(t, e.db.Create(&subscriptiondomain.Subscription{
		ID:               id,
		OrgID:            testOrgID,
		Environment:      orgdomain.EnvironmentTestnet,
		CustomerID:       testCustomerID,
		ProductID:        testProductID,
		Status:           status,
		WalletAddress:    wallet,
		CurrentPeriodEnd: periodEnd,
		FailedCycles:     failedCycles,
		CreatedAt:        testNow,
		UpdatedAt:        testNow,
	}).Error)
}

func (e *testEnv) getSubscription(t *testing.T, id snowflake.ID) *subscriptiondomain.Subscription {
	t.Helper()
	var sub subscriptiondomain.Subscription
	assert.NoError(t, e.db.First(&sub, "id = ?", id).Error)
	return &sub
}

func (e *testEnv) countEvents(t *testing.T, eventType events.Type) int64 {
	t.Helper()
	var count int64
	assert.NoError(t, e.db.Model(&events.BillingEvent{}).
		Where("event_type = ?", string(eventType)).
		Count(&count).Error)
	return count
}

func TestChargeJob_AdvancesDueSubscriptions(t *testing.T) {
	env := newTestEnv(t, config.DefaultDunningConfig())
	env.seedSettings(t)
	env.seedProduct(t)

	dueEnd := testNow.Add(-time.Hour)
	env.seedSubscription(t, 1, subscriptiondomain.StatusActive, "GWALLET1", dueEnd, 0)
	env.seedSubscription(t, 2, subscriptiondomain.StatusActive, "GWALLET2", dueEnd, 0)
	env.seedSubscription(t, 3, subscriptiondomain.StatusActive, "GWALLET3", testNow.Add(24*time.Hour), 0)
	env.seedSubscription(t, 4, subscriptiondomain.StatusCanceled, "GWALLET4", dueEnd, 0)

	assert.NoError(t, env.sched.ChargeDueSubscriptionsJob(context.Background()))

	assert.Len(t, env.chain.ChargeCalls, 2)
	for _, call := range env.chain.ChargeCalls {
		assert.Equal(t, fmt.Sprintf("sub:%s:%d", call.SubscriptionID, dueEnd.Unix()), call.IdempotencyKey)
		assert.Equal(t, "GDISTRIBUTIONACCOUNT", call.DistributionAccount)
		assert.Equal(t, "USDC", call.AssetCode)
		assert.Equal(t, int64(5000), call.Amount)
	}

	wantEnd := dueEnd.AddDate(0, 1, 0)
	for _, id := range []snowflake.ID{1, 2} {
		sub := env.getSubscription(t, id)
		assert.Equal(t, subscriptiondomain.StatusActive, sub.Status)
		assert.True(t, sub.CurrentPeriodEnd.Equal(wantEnd))
		assert.Equal(t, 0, sub.FailedCycles)
	}

	notDue := env.getSubscription(t, 3)
	assert.True(t, notDue.CurrentPeriodEnd.Equal(testNow.Add(24*time.Hour)))
	canceled := env.getSubscription(t, 4)
	assert.Equal(t, subscriptiondomain.StatusCanceled, canceled.Status)

	assert.Equal(t, int64(2), env.countEvents(t, events.TypeSubscriptionUpdated))
	assert.Equal(t, 2.0, getCounterValue(t, env.registry,
		"meridian_scheduler_charge_outcomes_total", outcomeLabels(obsmetrics.ChargeOutcomeCharged)))
}

func TestChargeJob_SecondSweepIsIdempotent(t *testing.T) {
	env := newTestEnv(t, config.DefaultDunningConfig())
	env.seedSettings(t)
	env.seedProduct(t)
	env.seedSubscription(t, 1, subscriptiondomain.StatusActive, "GWALLET1", testNow.Add(-time.Hour), 0)

	assert.NoError(t, env.sched.ChargeDueSubscriptionsJob(context.Background()))

	// An hour later the advanced period boundary is still in the future.
	env.clock.Set(testNow.Add(time.Hour))
	assert.NoError(t, env.sched.ChargeDueSubscriptionsJob(context.Background()))

	assert.Len(t, env.chain.ChargeCalls, 1)
	assert.Equal(t, int64(1), env.countEvents(t, events.TypeSubscriptionUpdated))
}

func TestChargeJob_IsolatesRejectedSubscription(t *testing.T) {
	env := newTestEnv(t, config.DefaultDunningConfig())
	env.seedSettings(t)
	env.seedProduct(t)

	dueEnd := testNow.Add(-time.Hour)
	env.seedSubscription(t, 1, subscriptiondomain.StatusActive, "GWALLET1", dueEnd, 0)
	env.seedSubscription(t, 2, subscriptiondomain.StatusActive, "GBROKE", dueEnd, 0)
	env.seedSubscription(t, 3, subscriptiondomain.StatusActive, "GWALLET3", dueEnd, 0)

	env.chain.ScriptCharge(func(req chaindomain.ChargeRequest) (chaindomain.ChargeResult, error) {
		if req.WalletAddress == "GBROKE" {
			return chaindomain.ChargeResult{}, chaindomain.ErrRejected
		}
		return chaindomain.ChargeResult{TxHash: "tx-" + req.IdempotencyKey}, nil
	})

	assert.NoError(t, env.sched.ChargeDueSubscriptionsJob(context.Background()))

	rejected := env.getSubscription(t, 2)
	assert.Equal(t, subscriptiondomain.StatusPastDue, rejected.Status)
	assert.Equal(t, 1, rejected.FailedCycles)
	assert.True(t, rejected.CurrentPeriodEnd.Equal(dueEnd))

	for _, id := range []snowflake.ID{1, 3} {
		sub := env.getSubscription(t, id)
		assert.Equal(t, subscriptiondomain.StatusActive, sub.Status)
		assert.True(t, sub.CurrentPeriodEnd.Equal(dueEnd.AddDate(0, 1, 0)))
	}

	assert.Equal(t, 2.0, getCounterValue(t, env.registry,
		"meridian_scheduler_charge_outcomes_total", outcomeLabels(obsmetrics.ChargeOutcomeCharged)))
	assert.Equal(t, 1.0, getCounterValue(t, env.registry,
		"meridian_scheduler_charge_outcomes_total", outcomeLabels(obsmetrics.ChargeOutcomePastDue)))
}

func TestChargeJob_SkipsSubscriptionWithoutWallet(t *testing.T) {
	env := newTestEnv(t, config.DefaultDunningConfig())
	env.seedSettings(t)
	env.seedProduct(t)
	env.seedSubscription(t, 1, subscriptiondomain.StatusActive, "", testNow.Add(-time.Hour), 0)

	assert.NoError(t, env.sched.ChargeDueSubscriptionsJob(context.Background()))

	assert.Empty(t, env.chain.ChargeCalls)
	sub := env.getSubscription(t, 1)
	assert.Equal(t, subscriptiondomain.StatusActive, sub.Status)
	assert.True(t, sub.CurrentPeriodEnd.Equal(testNow.Add(-time.Hour)))
	assert.Equal(t, 1.0, getCounterValue(t, env.registry,
		"meridian_scheduler_charge_outcomes_total", outcomeLabels(obsmetrics.ChargeOutcomeNoWallet)))
}

func TestChargeJob_DefersOnChainUnavailable(t *testing.T) {
	env := newTestEnv(t, config.DefaultDunningConfig())
	env.seedSettings(t)
	env.seedProduct(t)

	dueEnd := testNow.Add(-time.Hour)
	env.seedSubscription(t, 1, subscriptiondomain.StatusActive, "GWALLET1", dueEnd, 0)

	env.chain.ScriptCharge(func(req chaindomain.ChargeRequest) (chaindomain.ChargeResult, error) {
		return chaindomain.ChargeResult{}, chaindomain.ErrUnavailable
	})

	err := env.sched.ChargeDueSubscriptionsJob(context.Background())
	assert.ErrorIs(t, err, chaindomain.ErrUnavailable)

	// Untouched: the next sweep retries under the same idempotency key.
	sub := env.getSubscription(t, 1)
	assert.Equal(t, subscriptiondomain.StatusActive, sub.Status)
	assert.True(t, sub.CurrentPeriodEnd.Equal(dueEnd))
	assert.Equal(t, 0, sub.FailedCycles)
	assert.Equal(t, 1.0, getCounterValue(t, env.registry,
		"meridian_scheduler_charge_outcomes_total", outcomeLabels(obsmetrics.ChargeOutcomeDeferred)))
}

func TestChargeJob_DefersWhenChainAccountUnconfigured(t *testing.T) {
	env := newTestEnv(t, config.DefaultDunningConfig())
	env.seedProduct(t)
	env.seedSubscription(t, 1, subscriptiondomain.StatusActive, "GWALLET1", testNow.Add(-time.Hour), 0)

	assert.NoError(t, env.sched.ChargeDueSubscriptionsJob(context.Background()))

	assert.Empty(t, env.chain.ChargeCalls)
	sub := env.getSubscription(t, 1)
	assert.Equal(t, subscriptiondomain.StatusActive, sub.Status)
	assert.Equal(t, 1.0, getCounterValue(t, env.registry,
		"meridian_scheduler_charge_outcomes_total", outcomeLabels(obsmetrics.ChargeOutcomeDeferred)))
}

func TestChargeJob_CancelsAfterMaxFailedCycles(t *testing.T) {
	env := newTestEnv(t, config.DunningConfig{MaxFailedCycles: 3, RetryPastDue: true})
	env.seedSettings(t)
	env.seedProduct(t)
	env.seedSubscription(t, 1, subscriptiondomain.StatusPastDue, "GWALLET1", testNow.Add(-time.Hour), 2)

	env.chain.ScriptCharge(func(req chaindomain.ChargeRequest) (chaindomain.ChargeResult, error) {
		return chaindomain.ChargeResult{}, chaindomain.ErrRejected
	})

	assert.NoError(t, env.sched.ChargeDueSubscriptionsJob(context.Background()))

	sub := env.getSubscription(t, 1)
	assert.Equal(t, subscriptiondomain.StatusCanceled, sub.Status)
	assert.Equal(t, 3, sub.FailedCycles)
	assert.Equal(t, int64(1), env.countEvents(t, events.TypeSubscriptionUpdated))
	assert.Equal(t, 1.0, getCounterValue(t, env.registry,
		"meridian_scheduler_charge_outcomes_total", outcomeLabels(obsmetrics.ChargeOutcomeCanceled)))
}

func TestChargeJob_ReactivatesPastDueOnSuccess(t *testing.T) {
	env := newTestEnv(t, config.DunningConfig{MaxFailedCycles: 3, RetryPastDue: true})
	env.seedSettings(t)
	env.seedProduct(t)

	dueEnd := testNow.Add(-time.Hour)
	env.seedSubscription(t, 1, subscriptiondomain.StatusPastDue, "GWALLET1", dueEnd, 2)

	assert.NoError(t, env.sched.ChargeDueSubscriptionsJob(context.Background()))

	sub := env.getSubscription(t, 1)
	assert.Equal(t, subscriptiondomain.StatusActive, sub.Status)
	assert.Equal(t, 0, sub.FailedCycles)
	assert.True(t, sub.CurrentPeriodEnd.Equal(dueEnd.AddDate(0, 1, 0)))
}

func TestChargeJob_SkipsPastDueWhenRetryDisabled(t *testing.T) {
	env := newTestEnv(t, config.DunningConfig{MaxFailedCycles: 3, RetryPastDue: false})
	env.seedSettings(t)
	env.seedProduct(t)
	env.seedSubscription(t, 1, subscriptiondomain.StatusPastDue, "GWALLET1", testNow.Add(-time.Hour), 1)

	assert.NoError(t, env.sched.ChargeDueSubscriptionsJob(context.Background()))

	assert.Empty(t, env.chain.ChargeCalls)
	sub := env.getSubscription(t, 1)
	assert.Equal(t, subscriptiondomain.StatusPastDue, sub.Status)
	assert.Equal(t, 1, sub.FailedCycles)
}

func TestExpireCheckoutsJob(t *testing.T) {
	env := newTestEnv(t, config.DefaultDunningConfig())

	seedCheckout := func(id snowflake.ID, status checkoutdomain.Status, expiresAt time.Time) {
		assert.NoError(t, env.db.Create(&checkoutdomain.Checkout{
			ID:          id,
			OrgID:       testOrgID,
			Environment: orgdomain.EnvironmentTestnet,
			CustomerID:  testCustomerID,
			ProductID:   testProductID,
			Amount:      5000,
			Status:      status,
			ExpiresAt:   expiresAt,
			CreatedAt:   testNow,
			UpdatedAt:   testNow,
		}).Error)
	}
	seedCheckout(1, checkoutdomain.StatusPending, testNow.Add(-time.Minute))
	seedCheckout(2, checkoutdomain.StatusPending, testNow.Add(time.Hour))
	seedCheckout(3, checkoutdomain.StatusSucceeded, testNow.Add(-time.Minute))

	assert.NoError(t, env.sched.ExpireCheckoutsJob(context.Background()))

	var stale, fresh, settled checkoutdomain.Checkout
	assert.NoError(t, env.db.First(&stale, "id = ?", 1).Error)
	assert.NoError(t, env.db.First(&fresh, "id = ?", 2).Error)
	assert.NoError(t, env.db.First(&settled, "id = ?", 3).Error)
	assert.Equal(t, checkoutdomain.StatusExpired, stale.Status)
	assert.Equal(t, checkoutdomain.StatusPending, fresh.Status)
	assert.Equal(t, checkoutdomain.StatusSucceeded, settled.Status)
}

func TestRunOnce_HonorsEnabledJobs(t *testing.T) {
	env := newTestEnv(t, config.DefaultDunningConfig())
	env.seedSettings(t)
	env.seedProduct(t)
	env.seedSubscription(t, 1, subscriptiondomain.StatusActive, "GWALLET1", testNow.Add(-time.Hour), 0)

	env.sched.cfg.EnabledJobs = []string{"expire_checkouts"}
	assert.NoError(t, env.sched.RunOnce(context.Background()))

	assert.Empty(t, env.chain.ChargeCalls)
	assert.Equal(t, 1.0, getCounterValue(t, env.registry,
		"meridian_scheduler_job_runs_total",
		map[string]string{"service": "meridian", "env": "test", "job": "expire_checkouts"}))
}

func TestRunJob_TreatsDeadlineAsSoftTimeout(t *testing.T) {
	env := newTestEnv(t, config.DefaultDunningConfig())

	err := env.sched.runJob(context.Background(), "charge_due_subscriptions", time.Minute, func(ctx context.Context) error {
		return context.DeadlineExceeded
	})
	assert.NoError(t, err)

	labels := map[string]string{"service": "meridian", "env": "test", "job": "charge_due_subscriptions"}
	assert.Equal(t, 1.0, getCounterValue(t, env.registry, "meridian_scheduler_job_timeouts_total", labels))
	assert.Equal(t, 1.0, getCounterValue(t, env.registry, "meridian_scheduler_job_errors_total",
		map[string]string{"service": "meridian", "env": "test", "job": "charge_due_subscriptions", "reason": obsmetrics.SchedulerJobReasonDeadlineExceeded}))
}

func TestRunJob_WrapsHardErrors(t *testing.T) {
	env := newTestEnv(t, config.DefaultDunningConfig())

	err := env.sched.runJob(context.Background(), "charge_due_subscriptions", time.Minute, func(ctx context.Context) error {
		return chaindomain.ErrUnavailable
	})
	assert.ErrorIs(t, err, chaindomain.ErrUnavailable)

	assert.Equal(t, 1.0, getCounterValue(t, env.registry, "meridian_scheduler_job_errors_total",
		map[string]string{"service": "meridian", "env": "test", "job": "charge_due_subscriptions", "reason": obsmetrics.SchedulerJobReasonChainUnavailable}))
}
