// Package match groups records into candidate duplicate sets by exact key
// equality under one or more strategies. Grouping is pure; the only I/O is
// the contact-index lookup behind the contact-email-domain strategy.
package match

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/halvari/crmdedup/internal/crm"
	"github.com/halvari/crmdedup/internal/normalize"
	"github.com/halvari/crmdedup/internal/types"
)

// contactLookupConcurrency bounds the in-flight contact-index calls while
// deriving keys for domainless records.
const contactLookupConcurrency = 8

// Matcher builds duplicate groups from record snapshots.
type Matcher struct {
	contacts crm.ContactIndex
	logger   *zap.Logger
}

// New returns a Matcher. contacts may be nil when the contact-email-domain
// strategy is not used; logger may be nil.
func New(contacts crm.ContactIndex, logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{contacts: contacts, logger: logger}
}

// Groups computes one DuplicateGroup per (strategy, key) with at least two
// distinct members, across all enabled strategies. Records whose key under a
// strategy is empty are excluded from that strategy. Output order is
// deterministic: by strategy name, then key.
func (m *Matcher) Groups(ctx context.Context, records []types.Record, strategies []types.MatchStrategy) ([]types.DuplicateGroup, error) {
	var out []types.DuplicateGroup
	for _, s := range strategies {
		if !s.IsValid() {
			return nil, fmt.Errorf("invalid match strategy: %s", s)
		}
		var groups []types.DuplicateGroup
		switch s {
		case types.StrategyDomain:
			groups = groupByKey(records, s, func(r types.Record) string {
				return normalize.Domain(r.Domain)
			})
		case types.StrategyName:
			groups = groupByKey(records, s, func(r types.Record) string {
				return normalize.NameKey(r.Name)
			})
		case types.StrategyBusinessID:
			groups = groupByKey(records, s, func(r types.Record) string {
				return normalize.BusinessID(r.BusinessID)
			})
		case types.StrategyContactEmailDomain:
			derived, err := m.deriveContactKeys(ctx, records)
			if err != nil {
				return nil, err
			}
			groups = groupByKey(records, s, func(r types.Record) string {
				return derived[r.ID]
			})
		}
		out = append(out, groups...)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.Strategy != out[j].Key.Strategy {
			return out[i].Key.Strategy < out[j].Key.Strategy
		}
		return out[i].Key.Key < out[j].Key.Key
	})
	return out, nil
}

// groupByKey buckets records by keyFn, drops empty keys and duplicate IDs,
// and keeps only buckets with two or more members. Members are ordered by
// (name, id) so downstream exports are reproducible.
func groupByKey(records []types.Record, strategy types.MatchStrategy, keyFn func(types.Record) string) []types.DuplicateGroup {
	byKey := make(map[string][]types.Record)
	seen := make(map[string]map[string]bool)
	for _, r := range records {
		k := keyFn(r)
		if k == "" {
			continue
		}
		if seen[k] == nil {
			seen[k] = make(map[string]bool)
		}
		if seen[k][r.ID] {
			continue
		}
		seen[k][r.ID] = true
		byKey[k] = append(byKey[k], r)
	}

	keys := make([]string, 0, len(byKey))
	for k, members := range byKey {
		if len(members) >= 2 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	groups := make([]types.DuplicateGroup, 0, len(keys))
	for _, k := range keys {
		members := byKey[k]
		sort.Slice(members, func(i, j int) bool {
			if members[i].Name != members[j].Name {
				return members[i].Name < members[j].Name
			}
			return types.CompareIDs(members[i].ID, members[j].ID) < 0
		})
		groups = append(groups, types.DuplicateGroup{
			Key:     types.MatchKey{Strategy: strategy, Key: k},
			Members: members,
		})
	}
	return groups
}

// deriveContactKeys computes, for every record without a usable domain of its
// own, the dominant non-freemail email domain of its associated contacts.
// Records that already have a domain are covered by the domain strategy and
// are not derived.
func (m *Matcher) deriveContactKeys(ctx context.Context, records []types.Record) (map[string]string, error) {
	if m.contacts == nil {
		return nil, fmt.Errorf("contact-email-domain strategy requires a contact index")
	}

	var targets []types.Record
	for _, r := range records {
		if normalize.Domain(r.Domain) == "" {
			targets = append(targets, r)
		}
	}
	m.logger.Debug("deriving contact domains",
		zap.Int("records", len(records)),
		zap.Int("without_domain", len(targets)))

	results := make([]string, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(contactLookupConcurrency)
	for i, r := range targets {
		i, r := i, r
		g.Go(func() error {
			domains, err := m.contacts.DomainsFor(gctx, r.ID)
			if err != nil {
				if crm.IsNotFound(err) {
					m.logger.Debug("record gone while deriving contact domain", zap.String("id", r.ID))
					return nil
				}
				return fmt.Errorf("contact domains for %s: %w", r.ID, err)
			}
			results[i] = dominantDomain(domains)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	derived := make(map[string]string, len(targets))
	count := 0
	for i, r := range targets {
		if results[i] != "" {
			derived[r.ID] = results[i]
			count++
		}
	}
	m.logger.Debug("derived contact domains", zap.Int("derived", count))
	return derived, nil
}

// dominantDomain picks the most frequent normalized non-freemail domain,
// breaking count ties lexicographically so the result never depends on map
// iteration order.
func dominantDomain(domains []string) string {
	counts := make(map[string]int)
	for _, d := range domains {
		nd := normalize.Domain(d)
		if nd == "" || normalize.IsFreemail(nd) {
			continue
		}
		counts[nd]++
	}
	best, bestN := "", 0
	for d, n := range counts {
		if n > bestN || (n == bestN && d < best) {
			best, bestN = d, n
		}
	}
	return best
}
