package execengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// PrefetchKey builds the cache key for a candidate prefetch, per
// spec.md §4.5 step 6: (sql, tenant_id, page_token, page_size,
// schema_snapshot_id, seed, completeness_hint).
func PrefetchKey(sql string, tenantID any, pageToken string, pageSize int, schemaSnapshotID string, seed int64, completenessHint string) string {
	return fmt.Sprintf("%s|%v|%s|%d|%s|%d|%s", sql, tenantID, pageToken, pageSize, schemaSnapshotID, seed, completenessHint)
}

// PrefetchManager is a scoped, structured-concurrency prefetch cache:
// every scheduled background fetch is cancelled when the manager's scope
// ends, results are delivered through an in-memory keyed cache, and
// concurrent requests for the same key are deduplicated via
// golang.org/x/sync/singleflight so two callers racing to prefetch the
// same page issue only one tool call.
type PrefetchManager struct {
	group        *errgroup.Group
	ctx          context.Context
	cancel       context.CancelFunc
	flight       singleflight.Group
	maxInFlight  int

	mu       sync.Mutex
	cache    map[string]ToolResponseEnvelope
	inFlight map[string]bool
}

// NewPrefetchManager creates a manager scoped to parent; call Close (or
// let the returned cancel propagate) to cancel any in-flight prefetches.
func NewPrefetchManager(parent context.Context, maxConcurrent int) *PrefetchManager {
	ctx, cancel := context.WithCancel(parent)
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(maxConcurrent)
	return &PrefetchManager{
		group:       group,
		ctx:         gctx,
		cancel:      cancel,
		maxInFlight: maxConcurrent,
		cache:       make(map[string]ToolResponseEnvelope),
		inFlight:    make(map[string]bool),
	}
}

// Close cancels any prefetches still in flight and waits for them to
// unwind. It does not return their errors: a cancelled prefetch is not a
// pipeline failure.
func (m *PrefetchManager) Close() {
	m.cancel()
	_ = m.group.Wait()
}

// Peek returns a cached prefetched page for key, if one has completed.
func (m *PrefetchManager) Peek(key string) (ToolResponseEnvelope, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	env, ok := m.cache[key]
	return env, ok
}

// InFlightOrCached reports whether key is either already cached or
// currently being fetched, the basis of SuppressAlreadyCachedOrInflight.
func (m *PrefetchManager) InFlightOrCached(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cache[key]; ok {
		return true
	}
	return m.inFlight[key]
}

// Schedule kicks off a background fetch of the next page for key using
// tool, storing the result in the manager's cache. It is a no-op (and
// returns false) if key is already cached or in flight. Concurrent
// Schedule calls for the same key are deduplicated via singleflight so
// only one tool call is ever issued per key.
func (m *PrefetchManager) Schedule(key string, tool QueryTool, req QueryToolRequest) bool {
	m.mu.Lock()
	_, cached := m.cache[key]
	if cached || m.inFlight[key] {
		m.mu.Unlock()
		return false
	}
	m.inFlight[key] = true
	m.mu.Unlock()

	m.group.Go(func() error {
		defer func() {
			m.mu.Lock()
			delete(m.inFlight, key)
			m.mu.Unlock()
		}()
		_, err, _ := m.flight.Do(key, func() (any, error) {
			env, err := tool.ExecuteSQLQuery(m.ctx, req)
			if err != nil {
				return nil, err
			}
			m.mu.Lock()
			m.cache[key] = env
			m.mu.Unlock()
			return env, nil
		})
		return err
	})
	return true
}

// IsCheapFirstPage implements the default "cheap first page" prefetch
// heuristic: latency <= 1s and rows <= 2x page size. Per SPEC_FULL.md
// §9's open-question resolution this is overridable via
// PrefetchHeuristic for deployments with different cost profiles.
func IsCheapFirstPage(latency time.Duration, rowsReturned, pageSize int) bool {
	if pageSize <= 0 {
		return false
	}
	if latency > time.Second {
		return false
	}
	return rowsReturned <= 2*pageSize
}

// PrefetchHeuristic overrides IsCheapFirstPage when non-nil.
var PrefetchHeuristic func(latency time.Duration, rowsReturned, pageSize int) bool

func isCheap(latency time.Duration, rowsReturned, pageSize int) bool {
	if PrefetchHeuristic != nil {
		return PrefetchHeuristic(latency, rowsReturned, pageSize)
	}
	return IsCheapFirstPage(latency, rowsReturned, pageSize)
}
