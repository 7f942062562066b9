// Package resolve follows merged-record alias chains to their live
// canonical endpoint.
//
// A merged CRM record is not deleted: it becomes a permanent alias pointing
// at the record that absorbed it, and those pointers chain as merges stack
// over time. Planning, execution, and reporting all work on resolved
// canonical IDs, so this package is the single place that knows how to walk
// a chain and classify how it ended.
package resolve

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/halvari/crmdedup/internal/crm"
	"github.com/halvari/crmdedup/internal/types"
)

// DefaultHopBudget bounds chain walks. A chain longer than this is treated
// as Broken instead of looping forever against a misbehaving store.
const DefaultHopBudget = 50

// Resolver walks alias chains against a RecordStore, memoizing results for
// its lifetime. Safe for concurrent use.
type Resolver struct {
	store     crm.RecordStore
	hopBudget int
	logger    *zap.Logger

	mu   sync.Mutex
	memo map[string]types.CanonicalResolution
}

// New returns a Resolver over store. hopBudget <= 0 selects
// DefaultHopBudget; logger may be nil.
func New(store crm.RecordStore, hopBudget int, logger *zap.Logger) *Resolver {
	if hopBudget <= 0 {
		hopBudget = DefaultHopBudget
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		store:     store,
		hopBudget: hopBudget,
		logger:    logger,
		memo:      make(map[string]types.CanonicalResolution),
	}
}

// Resolve follows the alias chain from id, returning the memoized result
// when one exists. Transport failures come back as errors, never as a
// fabricated resolution status.
func (r *Resolver) Resolve(ctx context.Context, id string) (types.CanonicalResolution, error) {
	r.mu.Lock()
	res, ok := r.memo[id]
	r.mu.Unlock()
	if ok {
		return res, nil
	}
	return r.walk(ctx, id)
}

// ResolveFresh walks the chain unconditionally and replaces any memoized
// result. The executor calls it right before mutating, when a stale answer
// could misdirect a merge.
func (r *Resolver) ResolveFresh(ctx context.Context, id string) (types.CanonicalResolution, error) {
	return r.walk(ctx, id)
}

// ResolveMany resolves each distinct ID in ids, in order. The first
// transport error aborts the batch.
func (r *Resolver) ResolveMany(ctx context.Context, ids []string) (map[string]types.CanonicalResolution, error) {
	out := make(map[string]types.CanonicalResolution, len(ids))
	for _, id := range ids {
		if _, ok := out[id]; ok {
			continue
		}
		res, err := r.Resolve(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = res
	}
	return out, nil
}

func (r *Resolver) walk(ctx context.Context, id string) (types.CanonicalResolution, error) {
	res := types.CanonicalResolution{InputID: id}

	visited := map[string]bool{id: true}
	current := id
	lastKnown := "" // last ID the store affirmed, live or redirecting

walk:
	for {
		if len(res.Hops) >= r.hopBudget {
			res.Status = types.ResolutionBroken
			res.FinalID = lastKnown
			break
		}

		ar, err := r.store.ResolveAlias(ctx, current)
		if err != nil {
			if crm.IsNotFound(err) {
				res.Status = types.ResolutionBroken
				res.FinalID = lastKnown
				break
			}
			return types.CanonicalResolution{}, fmt.Errorf("resolving alias chain for %s at %s: %w", id, current, err)
		}

		switch ar.State {
		case crm.AliasLive:
			lastKnown = current
			res.FinalID = current
			if len(res.Hops) == 0 {
				res.Status = types.ResolutionLive
			} else {
				res.Status = types.ResolutionRedirected
			}
			break walk

		case crm.AliasRedirects:
			lastKnown = current
			next := ar.RedirectsTo
			if next == "" {
				// The store claims a merge but names no target.
				res.Status = types.ResolutionBroken
				res.FinalID = lastKnown
				break walk
			}
			if visited[next] {
				res.Status = types.ResolutionCycle
				res.FinalID = next
				break walk
			}
			visited[next] = true
			res.Hops = append(res.Hops, next)
			current = next

		case crm.AliasNotFound:
			res.Status = types.ResolutionBroken
			res.FinalID = lastKnown
			break walk

		default:
			return types.CanonicalResolution{}, fmt.Errorf("resolving alias chain for %s: unknown alias state %q", id, ar.State)
		}
	}

	if res.Status != types.ResolutionLive {
		r.logger.Debug("alias chain walked",
			zap.String("input_id", res.InputID),
			zap.String("final_id", res.FinalID),
			zap.Int("hops", len(res.Hops)),
			zap.String("status", string(res.Status)))
	}

	r.mu.Lock()
	r.memo[id] = res
	r.mu.Unlock()
	return res, nil
}
