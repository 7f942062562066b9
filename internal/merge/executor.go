package merge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/halvari/crmdedup/internal/crm"
	"github.com/halvari/crmdedup/internal/plan"
	"github.com/halvari/crmdedup/internal/resolve"
	"github.com/halvari/crmdedup/internal/types"
)

// Reviewer approves or rejects individual merges in review mode.
// ReviewMerge may block on user input; while a reviewer is attached the
// executor processes groups sequentially, in input order.
type Reviewer interface {
	ReviewMerge(group plan.Result, primaryID, mergeeID string) (types.ReviewDecision, error)
}

// Sink receives the run record and every outcome the moment it is decided,
// so an interrupted run is durably logged up to the point it stopped.
type Sink interface {
	BeginRun(run types.Run) error
	AppendOutcome(runID string, outcome types.MergeOutcome) error
	FinishRun(run types.Run) error
}

// Summary is the final state of one run.
type Summary struct {
	Run      types.Run
	Outcomes []types.MergeOutcome
}

// Executor applies merge plans against the record store. It owns the run
// lifecycle: concurrency, per-ID serialization, retries, review prompts,
// and the append-only outcome log.
type Executor struct {
	store    crm.RecordStore
	resolver *resolve.Resolver
	cfg      Config
	mode     types.RunMode
	reviewer Reviewer
	sink     Sink
	logger   *zap.Logger
	locks    *idLocks
}

// New builds an Executor. A reviewer is required in review mode and
// rejected in any other; sink and logger may be nil.
func New(store crm.RecordStore, resolver *resolve.Resolver, cfg Config, mode types.RunMode, reviewer Reviewer, sink Sink, logger *zap.Logger) (*Executor, error) {
	if store == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid merge config: %w", err)
	}
	if !mode.IsValid() {
		return nil, fmt.Errorf("invalid run mode %q", mode)
	}
	if mode == types.RunReview && reviewer == nil {
		return nil, fmt.Errorf("review mode requires a reviewer")
	}
	if reviewer != nil && mode != types.RunReview {
		return nil, fmt.Errorf("a reviewer can only be attached in review mode")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		store:    store,
		resolver: resolver,
		cfg:      cfg,
		mode:     mode,
		reviewer: reviewer,
		sink:     sink,
		logger:   logger,
		locks:    newIDLocks(),
	}, nil
}

// runState is the mutable state shared by every worker of one Execute call.
type runState struct {
	sem    *adaptiveSem
	cancel context.CancelFunc
	runID  string

	mu       sync.Mutex
	outcomes []types.MergeOutcome
	consumed map[string]bool
	autoAll  bool
	quit     bool
	fatalErr error
}

func (rs *runState) stopped() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.quit || rs.fatalErr != nil
}

func (rs *runState) stop() {
	rs.mu.Lock()
	rs.quit = true
	rs.mu.Unlock()
	rs.cancel()
}

func (rs *runState) fail(err error) {
	rs.mu.Lock()
	if rs.fatalErr == nil {
		rs.fatalErr = err
	}
	rs.mu.Unlock()
	rs.cancel()
}

func (rs *runState) isConsumed(id string) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.consumed[id]
}

func (rs *runState) consume(ids ...string) {
	rs.mu.Lock()
	for _, id := range ids {
		rs.consumed[id] = true
	}
	rs.mu.Unlock()
}

func (rs *runState) isAutoAll() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.autoAll
}

func (rs *runState) setAutoAll() {
	rs.mu.Lock()
	rs.autoAll = true
	rs.mu.Unlock()
}

// Execute runs every group to completion or until a quit/fatal stop.
// strategy is a label recorded on the run, e.g. "domain,name" or "fuzzy".
// The returned Summary is valid even when err is non-nil: it holds the
// fully-logged prefix of the run.
func (e *Executor) Execute(ctx context.Context, strategy string, groups []plan.Result) (*Summary, error) {
	for _, g := range groups {
		if g.Plan != nil {
			if err := g.Plan.Validate(); err != nil {
				return nil, fmt.Errorf("invalid plan for group %s: %w", g.GroupKey, err)
			}
		}
	}

	run := types.Run{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Mode:      e.mode,
		Strategy:  strategy,
	}
	if e.sink != nil {
		if err := e.sink.BeginRun(run); err != nil {
			return nil, fmt.Errorf("recording run start: %w", err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	rs := &runState{
		sem:      newAdaptiveSem(e.width()),
		cancel:   cancel,
		runID:    run.ID,
		consumed: make(map[string]bool),
	}

	e.logger.Info("merge run starting",
		zap.String("run_id", run.ID),
		zap.String("mode", string(e.mode)),
		zap.String("strategy", strategy),
		zap.Int("groups", len(groups)),
		zap.Int("concurrency", e.width()))

	if e.reviewer != nil {
		for _, g := range groups {
			if rs.stopped() || runCtx.Err() != nil {
				break
			}
			e.runGroup(runCtx, rs, g)
		}
	} else {
		var wg sync.WaitGroup
		for _, g := range groups {
			wg.Add(1)
			go func(g plan.Result) {
				defer wg.Done()
				if err := rs.sem.acquire(runCtx); err != nil {
					return
				}
				defer rs.sem.release()
				if rs.stopped() {
					return
				}
				e.runGroup(runCtx, rs, g)
			}(g)
		}
		wg.Wait()
	}

	finished := time.Now().UTC()
	run.FinishedAt = &finished

	rs.mu.Lock()
	outcomes := append([]types.MergeOutcome(nil), rs.outcomes...)
	fatalErr := rs.fatalErr
	quit := rs.quit
	rs.mu.Unlock()

	for _, oc := range outcomes {
		switch {
		case oc.Status.Failed():
			run.Failed++
		case oc.Status.Skipped():
			run.Skipped++
		default:
			run.Merged++
		}
	}

	if e.sink != nil {
		if err := e.sink.FinishRun(run); err != nil {
			e.logger.Error("recording run finish failed", zap.String("run_id", run.ID), zap.Error(err))
		}
	}

	e.logger.Info("merge run finished",
		zap.String("run_id", run.ID),
		zap.Int("merged", run.Merged),
		zap.Int("skipped", run.Skipped),
		zap.Int("failed", run.Failed),
		zap.Int("concurrency", rs.sem.currentWidth()))

	summary := &Summary{Run: run, Outcomes: outcomes}
	switch {
	case fatalErr != nil:
		return summary, fatalErr
	case ctx.Err() != nil && !quit:
		return summary, ctx.Err()
	}
	return summary, nil
}

// width is the concurrency ceiling for this run. Review mode is always
// sequential so prompts arrive in a stable order.
func (e *Executor) width() int {
	if e.reviewer != nil {
		return 1
	}
	return e.cfg.Concurrency
}

// runGroup processes one planned group under the advisory locks of every
// canonical ID the plan touches.
func (e *Executor) runGroup(ctx context.Context, rs *runState, g plan.Result) {
	for _, oc := range g.Outcomes {
		e.emit(rs, oc)
	}
	if g.Plan == nil {
		return
	}
	p := *g.Plan

	unlock := e.locks.lockAll(append([]string{p.PrimaryID}, p.MergeeIDs...))
	defer unlock()

	for _, mergeeID := range p.MergeeIDs {
		if rs.stopped() || ctx.Err() != nil {
			return
		}
		e.processMergee(ctx, rs, g, p, mergeeID)
	}
}

// processMergee drives one mergee to its terminal outcome. Every path emits
// at most one row; a canceled read path emits none.
func (e *Executor) processMergee(ctx context.Context, rs *runState, g plan.Result, p types.MergePlan, mergeeID string) {
	row := baseOutcome(g, p.PrimaryID, mergeeID)

	if rs.isConsumed(mergeeID) {
		row.Status = types.OutcomeSkippedCanonical
		row.Detail = "merged earlier in this run"
		e.emit(rs, row)
		return
	}

	if e.reviewer != nil && !rs.isAutoAll() {
		decision, err := e.reviewer.ReviewMerge(g, p.PrimaryID, mergeeID)
		if err != nil {
			rs.fail(fmt.Errorf("review prompt: %w", err))
			return
		}
		switch decision {
		case types.DecisionMergeOne:
		case types.DecisionSkipOne:
			row.Status = types.OutcomeSkippedReview
			row.Detail = "declined by reviewer"
			e.emit(rs, row)
			return
		case types.DecisionMergeAllRemaining:
			rs.setAutoAll()
		case types.DecisionQuit:
			e.logger.Info("reviewer quit, stopping run", zap.String("run_id", rs.runID))
			rs.stop()
			return
		default:
			rs.fail(fmt.Errorf("review prompt: unknown decision %q", decision))
			return
		}
	}

	if e.mode == types.RunDryRun {
		row.Status = types.OutcomeDryRun
		e.emit(rs, row)
		rs.consume(mergeeID)
		return
	}

	// The chain may have shifted since planning (a prior step in this very
	// run can have merged either side), so re-resolve both before mutating.
	primary, mergee, err := e.resolvePair(ctx, p.PrimaryID, mergeeID)
	if err != nil {
		if crm.Canceled(err) {
			return // stopping; nothing was mutated
		}
		e.failRow(rs, row, err)
		return
	}

	if rs.isConsumed(mergee.FinalID) {
		row.Status = types.OutcomeSkippedCanonical
		row.Detail = fmt.Sprintf("%s was merged earlier in this run", mergee.FinalID)
		e.emit(rs, row)
		return
	}
	if !primary.Resolved() || !mergee.Resolved() {
		row.Status = types.OutcomeSkippedUnresolved
		row.Detail = fmt.Sprintf("re-resolution: primary %s, mergee %s", primary.Status, mergee.Status)
		e.emit(rs, row)
		return
	}
	if primary.FinalID == mergee.FinalID {
		row.Status = types.OutcomeSkippedCanonical
		row.Detail = "both sides already resolve to " + primary.FinalID
		e.emit(rs, row)
		return
	}

	if primary.FinalID != p.PrimaryID {
		row.PrimaryID = primary.FinalID
		row.Detail = joinDetail(row.Detail, "primary re-resolved from "+p.PrimaryID)
	}
	if mergee.FinalID != mergeeID {
		row.MergeeID = mergee.FinalID
		row.Detail = joinDetail(row.Detail, "mergee re-resolved from "+mergeeID)
	}

	err = e.mergeWithRetry(ctx, rs, primary.FinalID, mergee.FinalID)
	if err == nil {
		row.Status = types.OutcomeMerged
		e.emit(rs, row)
		rs.consume(mergeeID, mergee.FinalID)
		return
	}
	if fr, ok := crm.AsForwardReference(err); ok {
		e.retryForwardReference(ctx, rs, row, primary.FinalID, mergee.FinalID, fr)
		return
	}
	e.failRow(rs, row, err)
}

// retryForwardReference handles the store refusing a merge because the
// chain has shifted under us: re-resolve both sides and try exactly once
// more. A conflict that names our own primary means the pair is already
// linked and is a skip, not a failure.
func (e *Executor) retryForwardReference(ctx context.Context, rs *runState, row types.MergeOutcome, primaryID, mergeeID string, fr *crm.ForwardReferenceError) {
	if fr.CanonicalID != "" && fr.CanonicalID == primaryID {
		row.Status = types.OutcomeSkippedCanonical
		row.Detail = joinDetail(row.Detail, fmt.Sprintf("store reports %s already references %s", mergeeID, primaryID))
		e.emit(rs, row)
		rs.consume(mergeeID)
		return
	}

	e.logger.Warn("merge conflict, re-resolving and retrying once",
		zap.String("run_id", rs.runID),
		zap.String("primary_id", primaryID),
		zap.String("mergee_id", mergeeID),
		zap.String("conflict_id", fr.CanonicalID))

	primary, mergee, err := e.resolvePair(ctx, primaryID, mergeeID)
	if err != nil {
		if crm.Canceled(err) {
			return
		}
		e.failRow(rs, row, err)
		return
	}
	if primary.FinalID == mergee.FinalID {
		row.Status = types.OutcomeSkippedCanonical
		row.Detail = joinDetail(row.Detail, "chain shift: both sides now resolve to "+primary.FinalID)
		e.emit(rs, row)
		return
	}
	if !primary.Resolved() || !mergee.Resolved() {
		row.Status = types.OutcomeSkippedUnresolved
		row.Detail = joinDetail(row.Detail, fmt.Sprintf("after conflict: primary %s, mergee %s", primary.Status, mergee.Status))
		e.emit(rs, row)
		return
	}

	row.PrimaryID = primary.FinalID
	row.MergeeID = mergee.FinalID

	err = e.mergeWithRetry(ctx, rs, primary.FinalID, mergee.FinalID)
	if err == nil {
		row.Status = types.OutcomeMerged
		row.Detail = joinDetail(row.Detail, "merged after chain-shift retry")
		e.emit(rs, row)
		rs.consume(mergeeID, mergee.FinalID)
		return
	}
	if _, ok := crm.AsForwardReference(err); ok {
		row.Status = types.OutcomeFailedForwardRef
		row.Detail = joinDetail(row.Detail, err.Error())
		e.emit(rs, row)
		return
	}
	e.failRow(rs, row, err)
}

// mergeWithRetry issues the merge call, retrying transient failures with
// exponential backoff. Rate-limit responses additionally halve the run's
// concurrency and honor the server-requested wait.
func (e *Executor) mergeWithRetry(ctx context.Context, rs *runState, primaryID, mergeeID string) error {
	backoff := e.cfg.InitialBackoff
	var lastErr error

	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		err := e.store.Merge(ctx, primaryID, mergeeID)
		if err == nil {
			if attempt > 0 {
				e.logger.Info("merge succeeded after retry",
					zap.String("primary_id", primaryID),
					zap.String("mergee_id", mergeeID),
					zap.Int("attempts", attempt+1))
			}
			return nil
		}
		lastErr = err

		if crm.Canceled(err) || !crm.IsTransient(err) {
			return err
		}

		wait := backoff
		if retryAfter, ok := crm.IsRateLimit(err); ok {
			if width, changed := rs.sem.halve(); changed {
				e.logger.Warn("rate limited, halving concurrency", zap.Int("concurrency", width))
			}
			if retryAfter > 0 {
				wait = retryAfter
			}
		}

		if attempt == e.cfg.MaxRetries {
			break
		}
		e.logger.Warn("merge failed, retrying",
			zap.String("primary_id", primaryID),
			zap.String("mergee_id", mergeeID),
			zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait),
			zap.Error(err))
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return lastErr
		}
		backoff = time.Duration(float64(backoff) * e.cfg.BackoffMultiplier)
		if backoff > e.cfg.MaxBackoff {
			backoff = e.cfg.MaxBackoff
		}
	}
	return fmt.Errorf("merge %s into %s failed after %d attempts: %w",
		mergeeID, primaryID, e.cfg.MaxRetries+1, lastErr)
}

func (e *Executor) resolvePair(ctx context.Context, primaryID, mergeeID string) (types.CanonicalResolution, types.CanonicalResolution, error) {
	primary, err := e.resolver.ResolveFresh(ctx, primaryID)
	if err != nil {
		return types.CanonicalResolution{}, types.CanonicalResolution{}, fmt.Errorf("re-resolving primary %s: %w", primaryID, err)
	}
	mergee, err := e.resolver.ResolveFresh(ctx, mergeeID)
	if err != nil {
		return types.CanonicalResolution{}, types.CanonicalResolution{}, fmt.Errorf("re-resolving mergee %s: %w", mergeeID, err)
	}
	return primary, mergee, nil
}

// failRow classifies a non-conflict error into a Failed-Other row. Fatal
// errors additionally abort the run; a mid-call cancellation is logged with
// the result marked unknown, since the store may or may not have applied it.
func (e *Executor) failRow(rs *runState, row types.MergeOutcome, err error) {
	row.Status = types.OutcomeFailedOther
	if crm.Canceled(err) {
		row.Detail = joinDetail(row.Detail, "interrupted mid-call, store result unknown: "+err.Error())
		e.emit(rs, row)
		return
	}
	row.Detail = joinDetail(row.Detail, err.Error())
	e.emit(rs, row)
	if crm.IsFatal(err) {
		e.logger.Error("fatal store error, aborting run",
			zap.String("run_id", rs.runID),
			zap.Error(err))
		rs.fail(err)
	}
}

// emit appends one outcome to the run log and forwards it to the sink. The
// lock keeps the in-memory order and the sink order identical.
func (e *Executor) emit(rs *runState, oc types.MergeOutcome) {
	rs.mu.Lock()
	rs.outcomes = append(rs.outcomes, oc)
	if e.sink != nil {
		if err := e.sink.AppendOutcome(rs.runID, oc); err != nil {
			e.logger.Error("recording outcome failed",
				zap.String("run_id", rs.runID),
				zap.String("mergee_id", oc.MergeeID),
				zap.Error(err))
		}
	}
	rs.mu.Unlock()

	e.logger.Debug("outcome",
		zap.String("run_id", rs.runID),
		zap.String("group", oc.GroupKey),
		zap.String("primary_id", oc.PrimaryID),
		zap.String("mergee_id", oc.MergeeID),
		zap.String("status", string(oc.Status)))
}

func baseOutcome(g plan.Result, primaryID, mergeeID string) types.MergeOutcome {
	prim := g.Representatives[primaryID]
	mrg := g.Representatives[mergeeID]
	return types.MergeOutcome{
		GroupKey:          g.GroupKey,
		PrimaryID:         primaryID,
		PrimaryName:       prim.Name,
		PrimaryCreatedRaw: prim.RawCreatedAt,
		MergeeID:          mergeeID,
		MergeeName:        mrg.Name,
		MergeeCreatedRaw:  mrg.RawCreatedAt,
	}
}

func joinDetail(existing, added string) string {
	if existing == "" {
		return added
	}
	return existing + "; " + added
}
