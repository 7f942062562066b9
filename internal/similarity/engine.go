package similarity

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/halvari/crmdedup/internal/types"
)

// Engine finds approximate-duplicate candidate pairs with blocking + scoring.
type Engine struct {
	cfg    Config
	logger *zap.Logger
}

// New returns an Engine with the given configuration. logger may be nil.
func New(cfg Config, logger *zap.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid similarity config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg, logger: logger}, nil
}

// SkippedBucket reports a blocking bucket that was too large to compare.
type SkippedBucket struct {
	Key  string `json:"key"`
	Size int    `json:"size"`
}

// Report is the full result of one similarity scan. Pairs is canonically
// ordered; SkippedBuckets and Truncated make incompleteness explicit rather
// than silent.
type Report struct {
	Pairs          []types.FuzzyPair `json:"pairs"`
	SkippedBuckets []SkippedBucket   `json:"skipped_buckets,omitempty"`
	Truncated      bool              `json:"truncated,omitempty"`
	Compared       int               `json:"compared"`
}

// Pairs scans the records and returns every candidate pair scoring at or
// above MinScore. The scan is deterministic: identical input and config give
// an identical Report for any worker count.
func (e *Engine) Pairs(ctx context.Context, records []types.Record) (*Report, error) {
	entries := make([]entry, 0, len(records))
	seenIDs := make(map[string]bool, len(records))
	for _, r := range records {
		if r.ID == "" || seenIDs[r.ID] {
			continue
		}
		seenIDs[r.ID] = true
		entries = append(entries, newEntry(r))
	}

	// Blocking: one bucket per significant name token, one per domain root.
	// Only records sharing a bucket are ever compared.
	buckets := make(map[string][]int)
	for i, en := range entries {
		for _, tok := range en.sig {
			key := "token:" + tok
			buckets[key] = append(buckets[key], i)
		}
		if en.root != "" {
			key := "domain:" + en.root
			buckets[key] = append(buckets[key], i)
		}
	}

	report := &Report{}
	var eligible []string
	for key, members := range buckets {
		switch {
		case len(members) < 2:
		case len(members) > e.cfg.MaxBucketSize:
			report.SkippedBuckets = append(report.SkippedBuckets, SkippedBucket{Key: key, Size: len(members)})
		default:
			eligible = append(eligible, key)
		}
	}
	sort.Strings(eligible)
	sort.Slice(report.SkippedBuckets, func(i, j int) bool {
		return report.SkippedBuckets[i].Key < report.SkippedBuckets[j].Key
	})
	for _, sb := range report.SkippedBuckets {
		e.logger.Warn("skipping oversized bucket",
			zap.String("bucket", sb.Key),
			zap.Int("size", sb.Size),
			zap.Int("max_bucket_size", e.cfg.MaxBucketSize))
	}

	// Each bucket writes to its own slot, so no aggregation lock is needed
	// and the merge order below is fixed by the sorted key order.
	bucketPairs := make([][]types.FuzzyPair, len(eligible))
	bucketCompared := make([]int, len(eligible))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.workerCount())
	for bi, key := range eligible {
		bi := bi
		members := buckets[key]
		g.Go(func() error {
			pairs, compared, err := e.scoreBucket(gctx, entries, members)
			if err != nil {
				return err
			}
			bucketPairs[bi] = pairs
			bucketCompared[bi] = compared
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// The same pair can surface from a token bucket and a domain bucket;
	// score and reason are functions of the pair alone, so first-in wins.
	seenPairs := make(map[string]bool)
	for bi := range eligible {
		report.Compared += bucketCompared[bi]
		for _, p := range bucketPairs[bi] {
			dk := p.IDA + "|" + p.IDB
			if seenPairs[dk] {
				continue
			}
			seenPairs[dk] = true
			report.Pairs = append(report.Pairs, p)
		}
	}

	sort.Slice(report.Pairs, func(i, j int) bool {
		if c := types.CompareIDs(report.Pairs[i].IDA, report.Pairs[j].IDA); c != 0 {
			return c < 0
		}
		return types.CompareIDs(report.Pairs[i].IDB, report.Pairs[j].IDB) < 0
	})

	if e.cfg.MaxPairs > 0 && len(report.Pairs) > e.cfg.MaxPairs {
		report.Pairs = report.Pairs[:e.cfg.MaxPairs]
		report.Truncated = true
		e.logger.Warn("pair limit reached, output truncated",
			zap.Int("max_pairs", e.cfg.MaxPairs))
	}

	e.logger.Info("similarity scan complete",
		zap.Int("records", len(entries)),
		zap.Int("buckets", len(eligible)),
		zap.Int("skipped_buckets", len(report.SkippedBuckets)),
		zap.Int("compared", report.Compared),
		zap.Int("pairs", len(report.Pairs)))
	return report, nil
}

// scoreBucket compares every pair inside one bucket. compared counts the
// pairs that passed the cheap prefilter and were actually scored.
func (e *Engine) scoreBucket(ctx context.Context, entries []entry, members []int) ([]types.FuzzyPair, int, error) {
	var pairs []types.FuzzyPair
	compared := 0
	for i := 0; i < len(members); i++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		a := entries[members[i]]
		for j := i + 1; j < len(members); j++ {
			b := entries[members[j]]
			if !passesPrefilter(a, b) {
				continue
			}
			compared++
			score, reason, ok := scorePair(a, b, e.cfg.MinScore)
			if !ok {
				continue
			}
			ida, idb := a.rec.ID, b.rec.ID
			if types.CompareIDs(ida, idb) > 0 {
				ida, idb = idb, ida
			}
			pairs = append(pairs, types.FuzzyPair{IDA: ida, IDB: idb, Score: score, Reason: reason})
		}
	}
	return pairs, compared, nil
}
