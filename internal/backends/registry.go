package backends

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/zawnaing-2024/vmaster/internal/core"
)

// ConnectionResult is the outcome of one backend connection test.
type ConnectionResult struct {
	BackendID string    `json:"backend_id"`
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
	Cached    bool      `json:"cached"`
}

// Registry resolves the adapter for a backend kind.
type Registry struct {
	adapters map[core.BackendKind]Adapter
	tests    *cache.Cache
}

func NewRegistry(testTTL time.Duration, adapters ...Adapter) *Registry {
	if testTTL <= 0 {
		testTTL = 30 * time.Second
	}
	r := &Registry{
		adapters: make(map[core.BackendKind]Adapter, len(adapters)),
		tests:    cache.New(testTTL, 2*testTTL),
	}
	for _, a := range adapters {
		r.adapters[a.Kind()] = a
	}
	return r
}

func (r *Registry) For(kind core.BackendKind) (Adapter, error) {
	if a, ok := r.adapters[kind]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("no adapter for backend kind %q: %w", kind, core.ErrUnsupported)
}

// TestConnection runs the kind's connection test, reusing a result younger
// than the cache TTL. Unsupported tests are returned as errors and not
// cached.
func (r *Registry) TestConnection(ctx context.Context, b *core.VpnBackend) (*ConnectionResult, error) {
	if v, ok := r.tests.Get(b.ID); ok {
		res := *v.(*ConnectionResult)
		res.Cached = true
		return &res, nil
	}

	a, err := r.For(b.Kind)
	if err != nil {
		return nil, err
	}

	err = a.TestConnection(ctx, b)
	if errors.Is(err, core.ErrUnsupported) {
		return nil, err
	}

	res := &ConnectionResult{BackendID: b.ID, OK: err == nil, CheckedAt: time.Now().UTC()}
	if err != nil {
		res.Error = err.Error()
	}
	r.tests.Set(b.ID, res, cache.DefaultExpiration)

	out := *res
	return &out, nil
}

// Forget drops a cached connection result, e.g. after the backend changed.
func (r *Registry) Forget(backendID string) {
	r.tests.Delete(backendID)
}
