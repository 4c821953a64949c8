// Package chaintest provides a scripted chain client for tests.
package chaintest

import (
	"context"
	"sync"

	"github.com/meridianhq/meridian/internal/chain/domain"
	orgdomain "github.com/meridianhq/meridian/internal/organization/domain"
)

// Fake is a chain client whose answers are scripted per key. Statuses and
// observations are consumed in order; the last entry repeats once the
// script runs out.
type Fake struct {
	mu sync.Mutex

	statuses     map[string][]domain.TxStatus
	observations map[string][]domain.Observation
	chargeFn     func(req domain.ChargeRequest) (domain.ChargeResult, error)

	ChargeCalls []domain.ChargeRequest
	StatusCalls []string
}

func New() *Fake {
	return &Fake{
		statuses:     make(map[string][]domain.TxStatus),
		observations: make(map[string][]domain.Observation),
	}
}

// ScriptStatus sets the sequence of statuses returned for a hash.
func (f *Fake) ScriptStatus(txHash string, statuses ...domain.TxStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[txHash] = statuses
}

// ScriptObservation sets the sequence of observations returned for a memo.
func (f *Fake) ScriptObservation(memo string, observations ...domain.Observation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observations[memo] = observations
}

// ScriptCharge sets the handler for charge submissions.
func (f *Fake) ScriptCharge(fn func(req domain.ChargeRequest) (domain.ChargeResult, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chargeFn = fn
}

func (f *Fake) GetTransactionStatus(ctx context.Context, env orgdomain.Environment, txHash string) (domain.TxStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.StatusCalls = append(f.StatusCalls, txHash)
	script := f.statuses[txHash]
	if len(script) == 0 {
		return domain.TxStatusUnseen, nil
	}
	status := script[0]
	if len(script) > 1 {
		f.statuses[txHash] = script[1:]
	}
	return status, nil
}

func (f *Fake) FindPayment(ctx context.Context, env orgdomain.Environment, account, memo string) (domain.Observation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	script := f.observations[memo]
	if len(script) == 0 {
		return domain.Observation{Status: domain.TxStatusUnseen}, nil
	}
	obs := script[0]
	if len(script) > 1 {
		f.observations[memo] = script[1:]
	}
	return obs, nil
}

func (f *Fake) ChargeSubscription(ctx context.Context, env orgdomain.Environment, req domain.ChargeRequest) (domain.ChargeResult, error) {
	f.mu.Lock()
	fn := f.chargeFn
	f.ChargeCalls = append(f.ChargeCalls, req)
	f.mu.Unlock()

	if fn == nil {
		return domain.ChargeResult{TxHash: "fake-tx-" + req.IdempotencyKey}, nil
	}
	return fn(req)
}
