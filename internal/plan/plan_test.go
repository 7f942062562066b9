package plan

import (
	"reflect"
	"testing"
	"time"

	"github.com/halvari/crmdedup/internal/types"
)

func live(id string) types.CanonicalResolution {
	return types.CanonicalResolution{InputID: id, FinalID: id, Status: types.ResolutionLive}
}

func redirected(id, final string) types.CanonicalResolution {
	return types.CanonicalResolution{InputID: id, FinalID: final, Hops: []string{final}, Status: types.ResolutionRedirected}
}

func cyclic(id string) types.CanonicalResolution {
	return types.CanonicalResolution{InputID: id, FinalID: id, Status: types.ResolutionCycle}
}

func member(id, name, created string, res types.CanonicalResolution) Member {
	rec := types.Record{ID: id, Name: name, RawCreatedAt: created}
	if created != "" {
		ts, err := time.Parse("2006-01-02", created)
		if err != nil {
			panic(err)
		}
		rec.CreatedAt = &ts
	}
	return Member{Record: rec, Resolution: res}
}

func TestBuildPrimaryByOldestCreated(t *testing.T) {
	members := []Member{
		member("12345", "Alpha", "2020-02-12", live("12345")),
		member("67890", "Alpha Oy", "2021-01-01", live("67890")),
		member("54321", "Alpha Ab", "", live("54321")),
	}

	res, err := Build("name:alpha", members)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if res.Plan == nil {
		t.Fatal("expected a plan")
	}
	if res.Plan.PrimaryID != "12345" {
		t.Errorf("primary = %s, want 12345", res.Plan.PrimaryID)
	}
	if res.Plan.Reason != types.ReasonOldestCreated {
		t.Errorf("reason = %s, want oldest-created", res.Plan.Reason)
	}
	if !reflect.DeepEqual(res.Plan.MergeeIDs, []string{"54321", "67890"}) {
		t.Errorf("mergees = %v, want ascending [54321 67890]", res.Plan.MergeeIDs)
	}
	if len(res.Outcomes) != 0 {
		t.Errorf("unexpected outcomes: %+v", res.Outcomes)
	}
	if err := res.Plan.Validate(); err != nil {
		t.Errorf("plan fails validation: %v", err)
	}
}

func TestBuildPrimaryBySmallestIDWhenNoCreated(t *testing.T) {
	members := []Member{
		member("67890", "Beta", "", live("67890")),
		member("12345", "Beta Oy", "", live("12345")),
		member("54321", "Beta Ab", "", live("54321")),
	}

	res, err := Build("name:beta", members)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if res.Plan == nil {
		t.Fatal("expected a plan")
	}
	if res.Plan.PrimaryID != "12345" {
		t.Errorf("primary = %s, want numerically smallest 12345", res.Plan.PrimaryID)
	}
	if res.Plan.Reason != types.ReasonSmallestID {
		t.Errorf("reason = %s, want smallest-id", res.Plan.Reason)
	}
}

func TestBuildSingleCreatedMemberWins(t *testing.T) {
	members := []Member{
		member("900", "Gamma", "", live("900")),
		member("50", "Gamma Oy", "", live("50")),
		member("700", "Gamma Ab", "2022-06-01", live("700")),
	}

	res, err := Build("name:gamma", members)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if res.Plan.PrimaryID != "700" {
		t.Errorf("primary = %s, want the only member with a creation time", res.Plan.PrimaryID)
	}
	if res.Plan.Reason != types.ReasonOldestCreated {
		t.Errorf("reason = %s", res.Plan.Reason)
	}
}

func TestBuildEqualTimestampsBreakTowardSmallerID(t *testing.T) {
	members := []Member{
		member("300", "Delta", "2020-01-01", live("300")),
		member("200", "Delta Oy", "2020-01-01", live("200")),
	}

	res, err := Build("name:delta", members)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if res.Plan.PrimaryID != "200" {
		t.Errorf("primary = %s, want 200", res.Plan.PrimaryID)
	}
}

func TestBuildCollapsesSharedCanonical(t *testing.T) {
	// 2 is an alias of 1, so the group holds only two real records.
	members := []Member{
		member("1", "Epsilon", "2019-01-01", live("1")),
		member("2", "Epsilon Oy", "2019-06-01", redirected("2", "1")),
		member("3", "Epsilon Ab", "2020-01-01", live("3")),
	}

	res, err := Build("domain:epsilon.fi", members)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if res.Plan == nil {
		t.Fatal("expected a plan")
	}
	if res.Plan.PrimaryID != "1" || !reflect.DeepEqual(res.Plan.MergeeIDs, []string{"3"}) {
		t.Errorf("plan = %+v, want primary 1 merging 3", res.Plan)
	}

	if len(res.Outcomes) != 1 {
		t.Fatalf("outcomes = %+v, want one collapse row", res.Outcomes)
	}
	oc := res.Outcomes[0]
	if oc.Status != types.OutcomeSkippedCanonical {
		t.Errorf("status = %s", oc.Status)
	}
	if oc.MergeeID != "2" || oc.PrimaryID != "1" {
		t.Errorf("collapse row = %+v", oc)
	}
	if oc.PrimaryName != "Epsilon" {
		t.Errorf("collapse row should name the representative, got %q", oc.PrimaryName)
	}
}

func TestBuildLiveRecordRepresentsItsCanonicalID(t *testing.T) {
	// 8 is older but is only an alias of 7; the live record represents 7.
	members := []Member{
		member("8", "Zeta Oy", "2015-01-01", redirected("8", "7")),
		member("7", "Zeta", "2019-01-01", live("7")),
		member("9", "Zeta Ab", "2020-01-01", live("9")),
	}

	res, err := Build("name:zeta", members)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if res.Plan.PrimaryID != "7" {
		t.Errorf("primary = %s, want 7", res.Plan.PrimaryID)
	}
	if len(res.Outcomes) != 1 || res.Outcomes[0].MergeeID != "8" {
		t.Fatalf("outcomes = %+v", res.Outcomes)
	}
	if res.Outcomes[0].PrimaryName != "Zeta" {
		t.Errorf("representative name = %q, want the live record's name", res.Outcomes[0].PrimaryName)
	}
}

func TestBuildPlansOnCanonicalIDs(t *testing.T) {
	// 100 has been merged into 200, which is outside the group. The plan
	// must reference 200, never the stale raw ID.
	members := []Member{
		member("100", "Eta", "2018-01-01", redirected("100", "200")),
		member("300", "Eta Oy", "2020-01-01", live("300")),
	}

	res, err := Build("name:eta", members)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if res.Plan == nil {
		t.Fatal("expected a plan")
	}
	if res.Plan.PrimaryID != "200" {
		t.Errorf("primary = %s, want canonical 200", res.Plan.PrimaryID)
	}
	if !reflect.DeepEqual(res.Plan.MergeeIDs, []string{"300"}) {
		t.Errorf("mergees = %v", res.Plan.MergeeIDs)
	}
	if res.Representatives["200"].Name != "Eta" {
		t.Errorf("representative for 200 = %+v, want the alias record that found it", res.Representatives["200"])
	}
}

func TestBuildSkipsUnresolvedMembers(t *testing.T) {
	members := []Member{
		member("1", "Theta", "", live("1")),
		member("2", "Theta Oy", "", cyclic("2")),
	}

	res, err := Build("name:theta", members)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if res.Plan != nil {
		t.Errorf("expected no plan with a single resolvable member, got %+v", res.Plan)
	}
	if len(res.Outcomes) != 1 {
		t.Fatalf("outcomes = %+v", res.Outcomes)
	}
	if res.Outcomes[0].Status != types.OutcomeSkippedUnresolved {
		t.Errorf("status = %s, want skipped-unresolved", res.Outcomes[0].Status)
	}
	if res.Outcomes[0].MergeeID != "2" {
		t.Errorf("row = %+v", res.Outcomes[0])
	}
}

func TestBuildNoPlanBelowTwoCanonical(t *testing.T) {
	members := []Member{
		member("1", "Iota", "", live("1")),
		member("2", "Iota Oy", "", redirected("2", "1")),
	}

	res, err := Build("name:iota", members)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if res.Plan != nil {
		t.Errorf("expected no plan when the whole group collapses, got %+v", res.Plan)
	}
	if len(res.Outcomes) != 1 || res.Outcomes[0].Status != types.OutcomeSkippedCanonical {
		t.Errorf("outcomes = %+v", res.Outcomes)
	}
}

func TestBuildRejectsMismatchedResolution(t *testing.T) {
	members := []Member{
		{Record: types.Record{ID: "1"}, Resolution: live("2")},
	}
	if _, err := Build("name:kappa", members); err == nil {
		t.Error("expected an error for a resolution attached to the wrong member")
	}
}

func TestBuildDeterministic(t *testing.T) {
	members := []Member{
		member("5", "Lambda", "", live("5")),
		member("3", "Lambda Oy", "", live("3")),
		member("4", "Lambda Ab", "", redirected("4", "3")),
	}

	first, err := Build("name:lambda", members)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	second, err := Build("name:lambda", members)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated builds differ:\n%+v\n%+v", first, second)
	}
}
