// Package plan turns a resolved duplicate group into a deterministic merge
// plan.
//
// Planning is pure: given the same members and resolutions it always emits
// the same plan, and it never talks to the store. Members that cannot be
// merged (unresolvable chains, aliases that already collapse into another
// member) fall out here as skip outcomes, so the executor only ever sees
// clean work.
package plan

import (
	"fmt"
	"sort"

	"github.com/halvari/crmdedup/internal/types"
)

// Member pairs a group member with its canonical resolution.
type Member struct {
	Record     types.Record
	Resolution types.CanonicalResolution
}

// Result is the planner's output for one group: a plan when there is work
// to do, plus the skip outcomes produced while deciding. Plan is nil when
// fewer than two distinct canonical records remain. Representatives maps
// each distinct canonical ID to the member record chosen to speak for it,
// so downstream logs can show names, not just IDs.
type Result struct {
	GroupKey        string
	Plan            *types.MergePlan
	Outcomes        []types.MergeOutcome
	Representatives map[string]types.Record
}

// Build plans one group. Members whose chains ended in Cycle or Broken are
// skipped as unresolved; distinct members resolving to the same canonical ID
// collapse into one, recorded as Skipped-AlreadyCanonical. The plan operates
// on canonical IDs throughout.
func Build(groupKey string, members []Member) (Result, error) {
	res := Result{GroupKey: groupKey}

	// One representative record per distinct canonical ID. A member that IS
	// the live record beats an alias; among aliases, the smallest raw ID
	// keeps the choice deterministic.
	reps := make(map[string]Member)
	var canonicalIDs []string
	var collapsed []Member

	for _, m := range members {
		if m.Record.ID == "" {
			return Result{}, fmt.Errorf("group %s: member with empty ID", groupKey)
		}
		if m.Resolution.InputID != m.Record.ID {
			return Result{}, fmt.Errorf("group %s: resolution for %s attached to member %s",
				groupKey, m.Resolution.InputID, m.Record.ID)
		}

		if !m.Resolution.Resolved() {
			res.Outcomes = append(res.Outcomes, types.MergeOutcome{
				GroupKey:         groupKey,
				MergeeID:         m.Record.ID,
				MergeeName:       m.Record.Name,
				MergeeCreatedRaw: m.Record.RawCreatedAt,
				Status:           types.OutcomeSkippedUnresolved,
				Detail:           fmt.Sprintf("alias chain %s: final=%s", m.Resolution.Status, m.Resolution.FinalID),
			})
			continue
		}

		canonical := m.Resolution.FinalID
		existing, ok := reps[canonical]
		if !ok {
			reps[canonical] = m
			canonicalIDs = append(canonicalIDs, canonical)
			continue
		}

		if better(m, existing) {
			reps[canonical] = m
			collapsed = append(collapsed, existing)
		} else {
			collapsed = append(collapsed, m)
		}
	}

	// Collapse rows name the final representative, so they are emitted only
	// once every member has been seen.
	for _, m := range collapsed {
		canonical := m.Resolution.FinalID
		rep := reps[canonical]
		res.Outcomes = append(res.Outcomes, types.MergeOutcome{
			GroupKey:          groupKey,
			PrimaryID:         canonical,
			PrimaryName:       rep.Record.Name,
			PrimaryCreatedRaw: rep.Record.RawCreatedAt,
			MergeeID:          m.Record.ID,
			MergeeName:        m.Record.Name,
			MergeeCreatedRaw:  m.Record.RawCreatedAt,
			Status:            types.OutcomeSkippedCanonical,
			Detail:            fmt.Sprintf("already resolves to %s", canonical),
		})
	}

	res.Representatives = make(map[string]types.Record, len(reps))
	for canonical, m := range reps {
		res.Representatives[canonical] = m.Record
	}

	if len(canonicalIDs) < 2 {
		return res, nil
	}

	primary, reason := choosePrimary(canonicalIDs, reps)

	mergees := make([]string, 0, len(canonicalIDs)-1)
	for _, id := range canonicalIDs {
		if id != primary {
			mergees = append(mergees, id)
		}
	}
	types.SortIDs(mergees)

	res.Plan = &types.MergePlan{
		GroupKey:  groupKey,
		PrimaryID: primary,
		MergeeIDs: mergees,
		Reason:    reason,
	}
	return res, nil
}

// better reports whether a should represent the canonical ID instead of b.
// The live record itself wins; otherwise the smaller raw ID does.
func better(a, b Member) bool {
	aLive := a.Record.ID == a.Resolution.FinalID
	bLive := b.Record.ID == b.Resolution.FinalID
	if aLive != bLive {
		return aLive
	}
	return types.CompareIDs(a.Record.ID, b.Record.ID) < 0
}

// choosePrimary picks the surviving record: the earliest available creation
// time, falling back to the numerically smallest canonical ID when no member
// has one. Equal timestamps break toward the smaller ID.
func choosePrimary(canonicalIDs []string, reps map[string]Member) (string, types.PrimaryReason) {
	ordered := append([]string(nil), canonicalIDs...)
	sort.Slice(ordered, func(i, j int) bool {
		a, b := reps[ordered[i]].Record, reps[ordered[j]].Record
		switch {
		case a.CreatedAt != nil && b.CreatedAt == nil:
			return true
		case a.CreatedAt == nil && b.CreatedAt != nil:
			return false
		case a.CreatedAt != nil && b.CreatedAt != nil && !a.CreatedAt.Equal(*b.CreatedAt):
			return a.CreatedAt.Before(*b.CreatedAt)
		}
		return types.CompareIDs(ordered[i], ordered[j]) < 0
	})

	primary := ordered[0]
	if reps[primary].Record.CreatedAt != nil {
		return primary, types.ReasonOldestCreated
	}
	return primary, types.ReasonSmallestID
}
