// Package credentials implements the Credential Pool: a fixed set of
// external-service credentials load-balanced with per-credential
// concurrency caps and rate-limit cooldowns. The mutex-guarded table
// mirrors the shape of server/internal/middleware.RateLimit's bucket map,
// generalized from a single reset counter to a least-loaded selection rule.
package credentials

import (
	"context"
	"sync"
	"time"

	"server/internal/domain"
)

// Options configures a Pool.
type Options struct {
	PerCredCap int
	Cooldown   time.Duration
	// pollInterval governs Acquire's bounded-backoff wait; exposed for tests.
	pollInterval time.Duration
}

// Pool tracks N credentials and load-balances acquire/release across them.
type Pool struct {
	mu         sync.Mutex
	creds      []*domain.Credential
	perCredCap int
	cooldown   time.Duration
	pollEvery  time.Duration
	now        func() time.Time
}

// NewPool constructs a Pool from a fixed list of opaque credential secrets.
func NewPool(secrets []string, opts Options) *Pool {
	poll := opts.pollInterval
	if poll <= 0 {
		poll = 50 * time.Millisecond
	}
	creds := make([]*domain.Credential, 0, len(secrets))
	for i, secret := range secrets {
		creds = append(creds, &domain.Credential{
			ID:     credentialID(i),
			Secret: secret,
			State:  domain.CredentialAvailable,
		})
	}
	return &Pool{
		creds:      creds,
		perCredCap: opts.PerCredCap,
		cooldown:   opts.Cooldown,
		pollEvery:  poll,
		now:        time.Now,
	}
}

func credentialID(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	if i < len(letters) {
		return "cred-" + string(letters[i])
	}
	return "cred-" + string(rune('0'+i))
}

// MaxConcurrency returns N × per_cred_cap.
func (p *Pool) MaxConcurrency() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.creds) * p.perCredCap
}

// Status snapshots the pool for progress reporting.
func (p *Pool) Status() domain.PoolStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statusLocked()
}

func (p *Pool) statusLocked() domain.PoolStatus {
	now := p.now()
	st := domain.PoolStatus{Total: len(p.creds), MaxConcurrency: len(p.creds) * p.perCredCap}
	for _, c := range p.creds {
		st.InFlightSum += c.InFlight
		if now.Before(c.CooldownUntil) {
			st.CoolingDown++
		} else {
			st.Available++
		}
	}
	return st
}

// Acquire returns the best available credential under the selection rule:
// exclude cooling-down or saturated credentials, then pick the minimum
// in_flight, tie-broken by oldest last_used_at. It polls with a short
// backoff until timeout elapses, at which point it fails with
// domain.ErrNoCapacity.
func (p *Pool) Acquire(ctx context.Context, timeout time.Duration) (*domain.Credential, error) {
	deadline := p.now().Add(timeout)
	for {
		if cred, ok := p.tryAcquire(); ok {
			return cred, nil
		}
		if p.now().After(deadline) {
			return nil, domain.ErrNoCapacity
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.pollEvery):
		}
	}
}

func (p *Pool) tryAcquire() (*domain.Credential, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	var best *domain.Credential
	for _, c := range p.creds {
		if now.Before(c.CooldownUntil) {
			continue
		}
		if c.InFlight >= p.perCredCap {
			continue
		}
		if best == nil {
			best = c
			continue
		}
		if c.InFlight < best.InFlight {
			best = c
			continue
		}
		if c.InFlight == best.InFlight && c.LastUsedAt.Before(best.LastUsedAt) {
			best = c
		}
	}
	if best == nil {
		return nil, false
	}
	best.InFlight++
	best.LastUsedAt = now
	best.State = domain.CredentialAvailable
	clone := *best
	return &clone, true
}

// Release returns a credential to the pool. If hadError and the caller has
// determined the error was a rate-limit signal, the credential enters a
// cooldown window; otherwise only the in-flight count and error accounting
// are adjusted.
func (p *Pool) Release(cred *domain.Credential, hadError, isRateLimit bool) {
	if cred == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, c := range p.creds {
		if c.ID != cred.ID {
			continue
		}
		if c.InFlight > 0 {
			c.InFlight--
		}
		if hadError {
			c.ErrorCount++
			if isRateLimit {
				c.CooldownUntil = p.now().Add(p.cooldown)
				c.State = domain.CredentialCoolingDown
			}
		}
		return
	}
}

// Secrets returns the credential IDs paired with their opaque secrets, in
// pool order, for callers (e.g. the Worker) that need to upload once per
// credential ahead of scheduling.
func (p *Pool) Secrets() []domain.Credential {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.Credential, len(p.creds))
	for i, c := range p.creds {
		out[i] = *c
	}
	return out
}
