package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/meridianhq/meridian/internal/config"
	redis "github.com/redis/go-redis/v9"
)

const (
	keyWebhookOrg = "webhook:org:%s"
	keySweepLock  = "sweep:lock:%s"
)

// WebhookLimiter throttles webhook ingress per organization and leases
// the charge-sweep lock. Disabled entirely when no redis address is
// configured; a single-replica deployment does not need either.
type WebhookLimiter struct {
	enabled bool

	bucket *TokenBucket
	locker *Locker

	orgRate  float64
	orgBurst int
	lockTTL  time.Duration
}

func NewWebhookLimiter(cfg config.Config) *WebhookLimiter {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})

	return &WebhookLimiter{
		enabled:  true,
		bucket:   NewTokenBucket(client),
		locker:   NewLocker(client),
		orgRate:  cfg.WebhookOrgRate,
		orgBurst: cfg.WebhookOrgBurst,
		lockTTL:  time.Duration(cfg.SweepLockTTLSeconds) * time.Second,
	}
}

func (l *WebhookLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// AllowOrg reports whether the organization still has webhook budget.
// Fails open when the limiter is disabled.
func (l *WebhookLimiter) AllowOrg(ctx context.Context, orgID string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyWebhookOrg, strings.TrimSpace(orgID)), l.orgRate, l.orgBurst)
}

// TryLockSweep leases the named sweep so only one replica runs it at a
// time. Returns the fencing token to release with.
func (l *WebhookLimiter) TryLockSweep(ctx context.Context, name string) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	return l.locker.TryLock(ctx, fmt.Sprintf(keySweepLock, name), l.lockTTL)
}

func (l *WebhookLimiter) ReleaseSweep(ctx context.Context, name, token string) error {
	if !l.Enabled() {
		return nil
	}
	return l.locker.Release(ctx, fmt.Sprintf(keySweepLock, name), token)
}
