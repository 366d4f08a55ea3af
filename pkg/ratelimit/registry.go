package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gatherhq/gather/pkg/observability"
)

// Errors for checks that fail closed. A denied decision is a normal
// outcome and never carries one of these.
var (
	// ErrUnknownAction is returned when no policy exists for an action.
	ErrUnknownAction = errors.New("unknown rate limit action")
	// ErrInvalidIdentifier is returned for an empty or blank identifier.
	ErrInvalidIdentifier = errors.New("invalid rate limit identifier")
	// ErrStoreUnavailable is returned when the counter store fails and
	// the registry is configured to fail closed.
	ErrStoreUnavailable = errors.New("rate limit counter store unavailable")
)

// Decision is the outcome of a single rate limit check.
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}

// Registry owns the policy table and applies it through the counter store.
// One registry is created at startup and injected wherever checks happen;
// there is no package-level instance.
//
// A nil store means no counter store is configured. Checks then fail open:
// traffic is admitted unthrottled, a warning is logged once, and the
// degraded state stays visible through the decision metrics.
type Registry struct {
	policies map[Action]Policy
	store    Store
	failOpen bool
	logger   *observability.Logger
	metrics  *observability.Metrics
	otel     *observability.OTelMetrics

	mu       sync.RWMutex
	limiters map[Action]*limiter

	// warnOnce keeps the fail-open warning to one line per process
	warnOnce sync.Once

	// failOpenHook, when set, observes the first fail-open per process
	failOpenHook func(Action, error)

	// now is swapped out in tests
	now func() time.Time
}

// NewRegistry creates a registry over the given policy table. A nil policies
// map falls back to DefaultPolicies. Pass a nil store to run without a
// counter store (every check fails open).
func NewRegistry(policies map[Action]Policy, store Store, failOpen bool, logger *observability.Logger, metrics *observability.Metrics) *Registry {
	if policies == nil {
		policies = DefaultPolicies()
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	return &Registry{
		policies: policies,
		store:    store,
		failOpen: failOpen,
		logger:   logger,
		metrics:  metrics,
		limiters: make(map[Action]*limiter),
		now:      time.Now,
	}
}

// limiter applies one action's policy. Limiters are materialized lazily on
// first use and cached for the life of the registry.
type limiter struct {
	action Action
	policy Policy
}

func (l *limiter) key(identifier string) string {
	return l.policy.KeyPrefix + ":" + identifier
}

// Check records a hit for identifier against the named action's policy and
// reports whether the call may proceed.
//
// An unknown action or a blank identifier fails closed: the check is denied
// and an error is returned. A store failure fails open when the registry is
// configured that way: the check is allowed with a synthetic decision and
// the failure is reported through metrics and a one-time warning.
func (r *Registry) Check(ctx context.Context, action Action, identifier string) (Decision, error) {
	start := time.Now()
	defer func() {
		if r.metrics != nil {
			r.metrics.RateLimitCheckDuration.WithLabelValues(string(action)).Observe(time.Since(start).Seconds())
		}
		if r.otel != nil {
			r.otel.RecordRateLimitCheckDuration(ctx, string(action), time.Since(start))
		}
	}()

	lim, err := r.limiterFor(action)
	if err != nil {
		r.recordDecision(ctx, action, "denied")
		return Decision{}, err
	}

	if strings.TrimSpace(identifier) == "" {
		r.recordDecision(ctx, action, "denied")
		return Decision{Limit: lim.policy.MaxCount}, fmt.Errorf("%w for action %q", ErrInvalidIdentifier, action)
	}

	if r.store == nil {
		return r.failOpenDecision(ctx, action, lim.policy, nil), nil
	}

	count, oldest, allowed, err := r.store.Hit(ctx, lim.key(identifier), lim.policy.Window, lim.policy.MaxCount)
	if err != nil {
		if r.metrics != nil {
			r.metrics.RateLimitStoreFailures.Inc()
		}
		if r.otel != nil {
			r.otel.RecordRateLimitStoreFailure(ctx)
		}
		if !r.failOpen {
			r.recordDecision(ctx, action, "denied")
			return Decision{Limit: lim.policy.MaxCount}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return r.failOpenDecision(ctx, action, lim.policy, err), nil
	}

	remaining := lim.policy.MaxCount - int(count)
	if remaining < 0 {
		remaining = 0
	}

	decision := Decision{
		Allowed:   allowed,
		Limit:     lim.policy.MaxCount,
		Remaining: remaining,
		ResetAt:   oldest.Add(lim.policy.Window),
	}

	if decision.Allowed {
		r.recordDecision(ctx, action, "allowed")
	} else {
		r.recordDecision(ctx, action, "denied")
	}

	return decision, nil
}

// failOpenDecision synthesizes an allowed decision for when the counter
// store is absent or unreachable. Abuse control degrades instead of taking
// user traffic down with it.
func (r *Registry) failOpenDecision(ctx context.Context, action Action, policy Policy, cause error) Decision {
	r.warnOnce.Do(func() {
		log := r.logger
		if cause != nil {
			log = log.WithError(cause)
		}
		log.Warn("rate limit counter store unavailable, failing open")
		if r.failOpenHook != nil {
			r.failOpenHook(action, cause)
		}
	})
	r.recordDecision(ctx, action, "fail_open")

	return Decision{
		Allowed:   true,
		Limit:     policy.MaxCount,
		Remaining: policy.MaxCount - 1,
		ResetAt:   r.now().Add(policy.Window),
	}
}

func (r *Registry) limiterFor(action Action) (*limiter, error) {
	r.mu.RLock()
	lim, ok := r.limiters[action]
	r.mu.RUnlock()
	if ok {
		return lim, nil
	}

	policy, ok := r.policies[action]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if lim, ok := r.limiters[action]; ok {
		return lim, nil
	}
	lim = &limiter{action: action, policy: policy}
	r.limiters[action] = lim
	return lim, nil
}

func (r *Registry) recordDecision(ctx context.Context, action Action, outcome string) {
	if r.metrics != nil {
		r.metrics.RateLimitDecisionsTotal.WithLabelValues(string(action), outcome).Inc()
	}
	if r.otel != nil {
		r.otel.RecordRateLimitDecision(ctx, string(action), outcome)
	}
}

// OnFailOpen registers a hook invoked the first time checks start failing
// open, alongside the one-time warning. Callers use it to put the
// degradation on the audit trail. Set it before the registry serves checks.
func (r *Registry) OnFailOpen(hook func(action Action, cause error)) {
	r.failOpenHook = hook
}

// AttachOTel mirrors decisions, durations, and store failures onto the
// OTLP pipeline. Attach before the registry serves checks.
func (r *Registry) AttachOTel(m *observability.OTelMetrics) {
	r.otel = m
}

// Policy looks up the active policy for one action.
func (r *Registry) Policy(action Action) (Policy, bool) {
	policy, ok := r.policies[action]
	return policy, ok
}

// Policies returns a copy of the active policy table.
func (r *Registry) Policies() map[Action]Policy {
	out := make(map[Action]Policy, len(r.policies))
	for action, policy := range r.policies {
		out[action] = policy
	}
	return out
}
