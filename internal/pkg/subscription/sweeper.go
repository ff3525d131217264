package subscription

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/robfig/cron/v3"
	"github.com/vendhub/vendhub/internal/pkg/env"
	"github.com/vendhub/vendhub/internal/pkg/payment"
)

const sweepBatchSize = 200

// Sweeper runs the periodic jobs of the subscription engine: expiring
// subscriptions past their term and reconciling checkouts whose callback
// never arrived. Both passes are idempotent; a failed pass is simply retried
// on the next schedule.
type Sweeper struct {
	svc  *Service
	cron *cron.Cron

	// staleAfter is how old an initiated transaction must be before the
	// reconcile pass re-verifies it; abandonAfter is when a still-unpaid
	// checkout is given up and cancelled.
	staleAfter   time.Duration
	abandonAfter time.Duration

	mu      sync.Mutex
	running bool
}

// NewSweeper creates a sweeper for the given service.
func NewSweeper(svc *Service) *Sweeper {
	return &Sweeper{
		svc:          svc,
		staleAfter:   1 * time.Hour,
		abandonAfter: 24 * time.Hour,
	}
}

// Start schedules the expiry and reconciliation passes. Schedules come from
// SWEEP_EXPIRY_CRON (default daily at 03:00) and SWEEP_RECONCILE_CRON
// (default hourly).
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	expirySpec := env.GetEnv("SWEEP_EXPIRY_CRON", "0 3 * * *")
	reconcileSpec := env.GetEnv("SWEEP_RECONCILE_CRON", "@hourly")

	c := cron.New()
	if _, err := c.AddFunc(expirySpec, func() {
		if _, err := s.RunExpiryPass(context.Background()); err != nil {
			log.Errorf("[Sweeper] expiry pass failed: %v", err)
		}
	}); err != nil {
		return err
	}
	if _, err := c.AddFunc(reconcileSpec, func() {
		if _, err := s.RunReconcilePass(context.Background()); err != nil {
			log.Errorf("[Sweeper] reconcile pass failed: %v", err)
		}
	}); err != nil {
		return err
	}

	c.Start()
	s.cron = c
	s.running = true
	log.Infof("[Sweeper] started (expiry=%q reconcile=%q)", expirySpec, reconcileSpec)
	return nil
}

// Stop halts the schedules and waits for a running pass to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	log.Info("[Sweeper] stopped")
}

// RunExpiryPass expires every active subscription whose end date has elapsed
// and repairs the owner's denormalized counters. Re-sweeping an already
// expired row is a no-op via the status guard, so the pass can be re-run
// safely at any time.
func (s *Sweeper) RunExpiryPass(ctx context.Context) (int, error) {
	expired := 0
	now := s.svc.now()

	for {
		subs, err := s.svc.repo.ListExpiredActiveSubscriptions(now, sweepBatchSize)
		if err != nil {
			return expired, err
		}
		if len(subs) == 0 {
			return expired, nil
		}

		progressed := false
		for _, sub := range subs {
			if err := ctx.Err(); err != nil {
				return expired, err
			}

			pkg, err := s.svc.repo.GetPackage(sub.PackageID)
			if err != nil {
				log.Errorf("[Sweeper] package lookup failed for subscription %d: %v", sub.ID, err)
				continue
			}

			won, err := s.svc.repo.ExpireSubscription(sub.ID, sub.UserID, pkg.ID, pkg.ProfileQuota)
			if err != nil {
				log.Errorf("[Sweeper] expiring subscription %d failed: %v", sub.ID, err)
				continue
			}
			if won {
				expired++
				progressed = true
				log.Infof("[Sweeper] subscription %d expired (user=%d package=%d)", sub.ID, sub.UserID, pkg.ID)
			}
		}

		if len(subs) < sweepBatchSize {
			return expired, nil
		}
		if !progressed {
			// Nothing in the batch could be expired; bail out instead of
			// re-reading the same rows forever.
			return expired, nil
		}
	}
}

// RunReconcilePass re-verifies initiated transactions whose callback never
// resolved them. Paid checkouts are activated, checkouts still unpaid after
// the abandonment window are cancelled, and provider outages leave the rows
// untouched for the next pass.
func (s *Sweeper) RunReconcilePass(ctx context.Context) (int, error) {
	now := s.svc.now()
	txns, err := s.svc.repo.ListStaleInitiatedTransactions(now.Add(-s.staleAfter), sweepBatchSize)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, txn := range txns {
		if err := ctx.Err(); err != nil {
			return resolved, err
		}

		outcome, err := s.svc.HandleSuccessCallback(ctx, txn.Provider, txn.ProviderReference)
		if err != nil {
			if errors.Is(err, payment.ErrProviderUnavailable) {
				log.Warnf("[Sweeper] provider unavailable while reconciling txn %d, will retry next pass", txn.ID)
				continue
			}
			if errors.Is(err, ErrPaymentMismatch) {
				resolved++
				continue
			}
			log.Errorf("[Sweeper] reconciling txn %d failed: %v", txn.ID, err)
			continue
		}

		switch outcome {
		case OutcomeActivated, OutcomeAlreadyResolved:
			resolved++
		case OutcomeDeferred:
			// Paid but waiting for the user's active package to expire; never
			// cancel it, the next pass tries again.
		case OutcomeUnresolved:
			if txn.CreatedAt.Before(now.Add(-s.abandonAfter)) {
				if _, err := s.svc.HandleCancelCallback(ctx, txn.Provider, txn.ProviderReference); err != nil {
					log.Errorf("[Sweeper] cancelling abandoned txn %d failed: %v", txn.ID, err)
					continue
				}
				resolved++
			}
		}
	}
	return resolved, nil
}
