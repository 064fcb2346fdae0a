package gateway

import (
	"time"

	"github.com/homevault/payments/internal/domain/errors"
	"github.com/homevault/payments/internal/domain/payment"
	"github.com/sony/gobreaker/v2"
)

// Registry resolves providers to adapters. It is built once at startup so an
// unsupported gateway is an explicit lookup-miss error, not a silent default
// branch.
type Registry struct {
	adapters map[payment.Provider]Adapter
	breakers map[payment.Provider]*gobreaker.CircuitBreaker[*Result]
}

// NewRegistry creates a registry with the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{
		adapters: make(map[payment.Provider]Adapter),
		breakers: make(map[payment.Provider]*gobreaker.CircuitBreaker[*Result]),
	}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds an adapter and wraps it with a circuit breaker.
func (r *Registry) Register(a Adapter) {
	p := a.Provider()
	r.adapters[p] = a
	r.breakers[p] = gobreaker.NewCircuitBreaker[*Result](gobreaker.Settings{
		Name:        string(p),
		MaxRequests: 10,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.6
		},
	})
}

// Get returns the adapter and circuit breaker for a provider.
func (r *Registry) Get(p payment.Provider) (Adapter, *gobreaker.CircuitBreaker[*Result], error) {
	a, ok := r.adapters[p]
	if !ok {
		return nil, nil, errors.NewDomainError(
			"unsupported_gateway",
			"no adapter registered for provider "+string(p),
			errors.ErrUnsupportedGateway,
		)
	}
	return a, r.breakers[p], nil
}

// Providers lists the registered providers.
func (r *Registry) Providers() []payment.Provider {
	out := make([]payment.Provider, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}
	return out
}
