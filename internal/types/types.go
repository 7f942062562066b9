package types

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Record is a point-in-time snapshot of a company as the remote store knows it.
// The store remains the source of truth: a record can be merged away between
// the snapshot and any later mutation, which is why merge execution re-resolves
// IDs instead of trusting these fields.
type Record struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Domain       string     `json:"domain,omitempty"`
	BusinessID   string     `json:"business_id,omitempty"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
	RawCreatedAt string     `json:"raw_created_at,omitempty"`
}

// Validate checks if the record has valid field values
func (r *Record) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("record id is required")
	}
	return nil
}

// MatchStrategy identifies one deterministic duplicate-detection strategy
type MatchStrategy string

const (
	// StrategyDomain groups records by normalized company domain
	StrategyDomain MatchStrategy = "domain"
	// StrategyName groups records by normalized company name key
	StrategyName MatchStrategy = "name"
	// StrategyBusinessID groups records by external tax/registration identifier
	StrategyBusinessID MatchStrategy = "business-id"
	// StrategyContactEmailDomain groups domainless records by the dominant
	// non-freemail domain of their associated contacts
	StrategyContactEmailDomain MatchStrategy = "contact-email-domain"
)

// IsValid checks if the strategy value is valid
func (s MatchStrategy) IsValid() bool {
	switch s {
	case StrategyDomain, StrategyName, StrategyBusinessID, StrategyContactEmailDomain:
		return true
	}
	return false
}

// ParseStrategy converts user input into a MatchStrategy
func ParseStrategy(raw string) (MatchStrategy, error) {
	s := MatchStrategy(strings.ToLower(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", fmt.Errorf("unknown match strategy %q (valid: %s, %s, %s, %s)",
			raw, StrategyDomain, StrategyName, StrategyBusinessID, StrategyContactEmailDomain)
	}
	return s, nil
}

// MatchKey is the (strategy, key) pair a duplicate group is built around
type MatchKey struct {
	Strategy MatchStrategy `json:"strategy"`
	Key      string        `json:"key"`
}

// String renders the key in the "strategy:key" form used for group keys and logs
func (k MatchKey) String() string {
	return string(k.Strategy) + ":" + k.Key
}

// DuplicateGroup is a set of records sharing one match key under one strategy.
// Groups from different strategies are tracked independently even when their
// membership overlaps; merge-safety policy differs per strategy.
type DuplicateGroup struct {
	Key     MatchKey `json:"key"`
	Members []Record `json:"members"`
}

// Validate checks the group invariants
func (g *DuplicateGroup) Validate() error {
	if !g.Key.Strategy.IsValid() {
		return fmt.Errorf("invalid match strategy: %s", g.Key.Strategy)
	}
	if g.Key.Key == "" {
		return fmt.Errorf("group key is empty")
	}
	if len(g.Members) < 2 {
		return fmt.Errorf("group %s has %d members, need at least 2", g.Key, len(g.Members))
	}
	return nil
}

// MemberIDs returns the member record IDs in member order
func (g *DuplicateGroup) MemberIDs() []string {
	ids := make([]string, len(g.Members))
	for i, m := range g.Members {
		ids[i] = m.ID
	}
	return ids
}

// FuzzyPair is a candidate near-duplicate relationship between two records.
// Score is 0-100; Reason names the evidence that produced the pair.
type FuzzyPair struct {
	IDA    string `json:"id_a"`
	IDB    string `json:"id_b"`
	Score  int    `json:"score"`
	Reason string `json:"reason"`
}

// Validate checks if the pair has valid field values
func (p *FuzzyPair) Validate() error {
	if p.IDA == "" || p.IDB == "" {
		return fmt.Errorf("pair ids are required")
	}
	if p.IDA == p.IDB {
		return fmt.Errorf("pair references the same id twice: %s", p.IDA)
	}
	if p.Score < 0 || p.Score > 100 {
		return fmt.Errorf("score must be between 0 and 100 (got %d)", p.Score)
	}
	return nil
}

// Cluster is a connected component over the fuzzy-pair graph, treated as one
// candidate merge unit. Members are sorted; Edges preserves the contributing
// pairs for audit.
type Cluster struct {
	Members []string    `json:"members"`
	Edges   []FuzzyPair `json:"edges"`
}

// ResolutionStatus classifies the end state of canonical-chain following
type ResolutionStatus string

const (
	// ResolutionLive means the input ID is itself the live canonical record
	ResolutionLive ResolutionStatus = "live"
	// ResolutionRedirected means the chain ended on a live record after one or more hops
	ResolutionRedirected ResolutionStatus = "redirected"
	// ResolutionCycle means the chain revisited an already-seen ID
	ResolutionCycle ResolutionStatus = "cycle"
	// ResolutionBroken means a hop pointed at an ID the store no longer knows,
	// or the chain exceeded the hop budget
	ResolutionBroken ResolutionStatus = "broken"
)

// IsValid checks if the resolution status value is valid
func (s ResolutionStatus) IsValid() bool {
	switch s {
	case ResolutionLive, ResolutionRedirected, ResolutionCycle, ResolutionBroken:
		return true
	}
	return false
}

// CanonicalResolution is the result of following the alias chain from InputID
type CanonicalResolution struct {
	InputID string           `json:"input_id"`
	FinalID string           `json:"final_id"`
	Hops    []string         `json:"hops,omitempty"`
	Status  ResolutionStatus `json:"status"`
}

// Resolved reports whether the chain ended on a usable live record
func (r CanonicalResolution) Resolved() bool {
	return r.Status == ResolutionLive || r.Status == ResolutionRedirected
}

// PrimaryReason records why a plan's primary was chosen
type PrimaryReason string

const (
	// ReasonOldestCreated means the primary had the earliest parseable creation time
	ReasonOldestCreated PrimaryReason = "oldest-created"
	// ReasonSmallestID means no member had a parseable creation time and the
	// smallest ID won the tie-break
	ReasonSmallestID PrimaryReason = "smallest-id"
)

// IsValid checks if the primary reason value is valid
func (r PrimaryReason) IsValid() bool {
	switch r {
	case ReasonOldestCreated, ReasonSmallestID:
		return true
	}
	return false
}

// MergePlan is the ordered merge work for one duplicate group or cluster.
// It is computed against resolved canonical IDs, never raw input IDs.
type MergePlan struct {
	GroupKey  string        `json:"group_key"`
	PrimaryID string        `json:"primary_id"`
	MergeeIDs []string      `json:"mergee_ids"`
	Reason    PrimaryReason `json:"reason"`
}

// Validate checks the plan invariants
func (p *MergePlan) Validate() error {
	if p.PrimaryID == "" {
		return fmt.Errorf("plan %s has no primary", p.GroupKey)
	}
	if !p.Reason.IsValid() {
		return fmt.Errorf("invalid primary reason: %s", p.Reason)
	}
	seen := make(map[string]bool, len(p.MergeeIDs))
	for _, id := range p.MergeeIDs {
		if id == p.PrimaryID {
			return fmt.Errorf("plan %s lists primary %s as a mergee", p.GroupKey, id)
		}
		if seen[id] {
			return fmt.Errorf("plan %s lists mergee %s twice", p.GroupKey, id)
		}
		seen[id] = true
	}
	return nil
}

// OutcomeStatus is the terminal state of one attempted merge operation
type OutcomeStatus string

const (
	// OutcomeDryRun means the operation was planned but not sent to the store
	OutcomeDryRun OutcomeStatus = "dry-run"
	// OutcomeMerged means the store accepted the merge
	OutcomeMerged OutcomeStatus = "merged"
	// OutcomeSkippedCanonical means both sides already resolved to the same
	// canonical record, so there was nothing to do
	OutcomeSkippedCanonical OutcomeStatus = "skipped-already-canonical"
	// OutcomeSkippedUnresolved means the member's alias chain came back
	// cyclic or broken and it was excluded from planning
	OutcomeSkippedUnresolved OutcomeStatus = "skipped-unresolved"
	// OutcomeSkippedReview means a human reviewer declined the group
	OutcomeSkippedReview OutcomeStatus = "skipped-review"
	// OutcomeFailedForwardRef means the store kept refusing with a chain
	// conflict after the bounded retry
	OutcomeFailedForwardRef OutcomeStatus = "failed-forward-reference"
	// OutcomeFailedOther covers transient errors that survived the retry
	// budget and any other non-conflict failure
	OutcomeFailedOther OutcomeStatus = "failed-other"
)

// IsValid checks if the outcome status value is valid
func (s OutcomeStatus) IsValid() bool {
	switch s {
	case OutcomeDryRun, OutcomeMerged, OutcomeSkippedCanonical, OutcomeSkippedUnresolved,
		OutcomeSkippedReview, OutcomeFailedForwardRef, OutcomeFailedOther:
		return true
	}
	return false
}

// Failed reports whether the status is a failure terminal state
func (s OutcomeStatus) Failed() bool {
	return s == OutcomeFailedForwardRef || s == OutcomeFailedOther
}

// Skipped reports whether the status is an explicit no-op record
func (s OutcomeStatus) Skipped() bool {
	return s == OutcomeSkippedCanonical || s == OutcomeSkippedUnresolved || s == OutcomeSkippedReview
}

// MergeOutcome is one append-only audit row per attempted merge. The name and
// created fields are display context for the merge log; the store of record
// keeps the core columns.
type MergeOutcome struct {
	GroupKey          string        `json:"group_key"`
	PrimaryID         string        `json:"primary_id"`
	PrimaryName       string        `json:"primary_name,omitempty"`
	PrimaryCreatedRaw string        `json:"primary_created_raw,omitempty"`
	MergeeID          string        `json:"mergee_id"`
	MergeeName        string        `json:"mergee_name,omitempty"`
	MergeeCreatedRaw  string        `json:"mergee_created_raw,omitempty"`
	Status            OutcomeStatus `json:"status"`
	Detail            string        `json:"detail,omitempty"`
}

// Validate checks if the outcome has valid field values
func (o *MergeOutcome) Validate() error {
	if !o.Status.IsValid() {
		return fmt.Errorf("invalid outcome status: %s", o.Status)
	}
	if o.GroupKey == "" {
		return fmt.Errorf("outcome has no group key")
	}
	return nil
}

// ReviewDecision is the answer an interactive reviewer gives for one group
type ReviewDecision string

const (
	// DecisionMergeOne merges the presented group and keeps prompting
	DecisionMergeOne ReviewDecision = "merge-one"
	// DecisionSkipOne skips the presented group and keeps prompting
	DecisionSkipOne ReviewDecision = "skip-one"
	// DecisionMergeAllRemaining merges the presented group and every later one without prompting
	DecisionMergeAllRemaining ReviewDecision = "merge-all-remaining"
	// DecisionQuit stops the run, keeping everything logged so far
	DecisionQuit ReviewDecision = "quit"
)

// IsValid checks if the review decision value is valid
func (d ReviewDecision) IsValid() bool {
	switch d {
	case DecisionMergeOne, DecisionSkipOne, DecisionMergeAllRemaining, DecisionQuit:
		return true
	}
	return false
}

// RunMode distinguishes how a pipeline run was invoked
type RunMode string

const (
	RunDryRun RunMode = "dry-run"
	RunApply  RunMode = "apply"
	RunReview RunMode = "review"
)

// IsValid checks if the run mode value is valid
func (m RunMode) IsValid() bool {
	switch m {
	case RunDryRun, RunApply, RunReview:
		return true
	}
	return false
}

// Run is one invocation of the planner/executor pipeline, persisted with its
// outcomes as the audit trail.
type Run struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Mode       RunMode    `json:"mode"`
	Strategy   string     `json:"strategy"`
	Merged     int        `json:"merged"`
	Skipped    int        `json:"skipped"`
	Failed     int        `json:"failed"`
}

// Validate checks if the run has valid field values
func (r *Run) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("run id is required")
	}
	if !r.Mode.IsValid() {
		return fmt.Errorf("invalid run mode: %s", r.Mode)
	}
	return nil
}

// CompareIDs orders record IDs numerically when both parse as integers and
// lexicographically otherwise. Store IDs are decimal strings, so a plain
// string sort would put "10" before "9".
func CompareIDs(a, b string) int {
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a, b)
}

// SortIDs sorts record IDs in place using CompareIDs ordering
func SortIDs(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		return CompareIDs(ids[i], ids[j]) < 0
	})
}
