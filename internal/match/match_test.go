package match

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"github.com/halvari/crmdedup/internal/crm"
	"github.com/halvari/crmdedup/internal/types"
)

type fakeContactIndex struct {
	domains map[string][]string
	err     error
}

func (f *fakeContactIndex) DomainsFor(_ context.Context, recordID string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.domains[recordID], nil
}

func TestGroupsByDomain(t *testing.T) {
	records := []types.Record{
		{ID: "1", Name: "Example", Domain: "example.com"},
		{ID: "2", Name: "Example Corp", Domain: "www.Example.com"},
		{ID: "3", Name: "Other", Domain: "other.com"},
	}
	m := New(nil, nil)
	groups, err := m.Groups(context.Background(), records, []types.MatchStrategy{types.StrategyDomain})
	if err != nil {
		t.Fatalf("Groups: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	g := groups[0]
	if g.Key.Strategy != types.StrategyDomain || g.Key.Key != "example.com" {
		t.Errorf("unexpected group key: %s", g.Key)
	}
	if !reflect.DeepEqual(g.MemberIDs(), []string{"1", "2"}) {
		t.Errorf("unexpected members: %v", g.MemberIDs())
	}
}

func TestRecordsWithoutKeyAreExcluded(t *testing.T) {
	records := []types.Record{
		{ID: "1", Name: "A"},
		{ID: "2", Name: "B"},
		{ID: "3", Name: "C", Domain: "shared.com"},
		{ID: "4", Name: "D", Domain: "shared.com"},
	}
	m := New(nil, nil)
	groups, err := m.Groups(context.Background(), records, []types.MatchStrategy{types.StrategyDomain})
	if err != nil {
		t.Fatalf("Groups: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d: empty domains must never group", len(groups))
	}
	if groups[0].Key.Key != "shared.com" {
		t.Errorf("unexpected key %q", groups[0].Key.Key)
	}
}

func TestGroupsByNameKeyIsSuffixInsensitive(t *testing.T) {
	records := []types.Record{
		{ID: "1", Name: "Bluugo"},
		{ID: "2", Name: "Bluugo Oy"},
		{ID: "3", Name: "Totally Different"},
	}
	m := New(nil, nil)
	groups, err := m.Groups(context.Background(), records, []types.MatchStrategy{types.StrategyName})
	if err != nil {
		t.Fatalf("Groups: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if groups[0].Key.Key != "bluugo" {
		t.Errorf("key = %q, want %q", groups[0].Key.Key, "bluugo")
	}
	if !reflect.DeepEqual(groups[0].MemberIDs(), []string{"1", "2"}) {
		t.Errorf("unexpected members: %v", groups[0].MemberIDs())
	}
}

func TestGroupsByBusinessID(t *testing.T) {
	records := []types.Record{
		{ID: "1", Name: "A", BusinessID: "fi 1234567-8"},
		{ID: "2", Name: "B", BusinessID: "FI12345678"},
		{ID: "3", Name: "C", BusinessID: "FI0000000"},
	}
	m := New(nil, nil)
	groups, err := m.Groups(context.Background(), records, []types.MatchStrategy{types.StrategyBusinessID})
	if err != nil {
		t.Fatalf("Groups: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if groups[0].Key.Key != "FI12345678" {
		t.Errorf("key = %q, want %q", groups[0].Key.Key, "FI12345678")
	}
}

func TestContactEmailDomainStrategy(t *testing.T) {
	records := []types.Record{
		{ID: "10", Name: "Nameless A"},
		{ID: "11", Name: "Nameless B"},
		{ID: "12", Name: "Has Domain", Domain: "bluugo.fi"},
	}
	contacts := &fakeContactIndex{domains: map[string][]string{
		"10": {"gmail.com", "bluugo.fi", "bluugo.fi", "hotmail.com"},
		"11": {"bluugo.fi"},
		// 12 has a real domain and must not be derived at all.
		"12": {"elsewhere.io", "elsewhere.io"},
	}}
	m := New(contacts, nil)
	groups, err := m.Groups(context.Background(), records, []types.MatchStrategy{types.StrategyContactEmailDomain})
	if err != nil {
		t.Fatalf("Groups: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	g := groups[0]
	if g.Key.Key != "bluugo.fi" {
		t.Errorf("derived key = %q, want %q", g.Key.Key, "bluugo.fi")
	}
	if !reflect.DeepEqual(g.MemberIDs(), []string{"10", "11"}) {
		t.Errorf("unexpected members: %v", g.MemberIDs())
	}
}

func TestDominantDomainTieBreak(t *testing.T) {
	// Equal counts must resolve lexicographically, never by map order.
	got := dominantDomain([]string{"zeta.com", "alpha.com"})
	if got != "alpha.com" {
		t.Errorf("dominantDomain = %q, want %q", got, "alpha.com")
	}
	if dominantDomain([]string{"gmail.com", "gmail.com"}) != "" {
		t.Error("freemail-only contact domains should derive nothing")
	}
}

func TestContactStrategyRequiresIndex(t *testing.T) {
	m := New(nil, nil)
	_, err := m.Groups(context.Background(), []types.Record{{ID: "1"}},
		[]types.MatchStrategy{types.StrategyContactEmailDomain})
	if err == nil {
		t.Fatal("expected an error without a contact index")
	}
}

func TestContactLookupErrorPropagates(t *testing.T) {
	contacts := &fakeContactIndex{err: &crm.TransientError{StatusCode: 503, Message: "down"}}
	m := New(contacts, nil)
	_, err := m.Groups(context.Background(), []types.Record{{ID: "1", Name: "A"}},
		[]types.MatchStrategy{types.StrategyContactEmailDomain})
	if err == nil {
		t.Fatal("expected contact lookup failure to propagate")
	}
}

func TestGroupsDeterministicOrder(t *testing.T) {
	records := []types.Record{
		{ID: "5", Name: "Zeta", Domain: "zeta.com"},
		{ID: "6", Name: "Zeta Oy", Domain: "zeta.com"},
		{ID: "1", Name: "Alpha", Domain: "alpha.com"},
		{ID: "2", Name: "Alpha Ab", Domain: "alpha.com"},
	}
	strategies := []types.MatchStrategy{types.StrategyName, types.StrategyDomain}
	m := New(nil, nil)

	first, err := m.Groups(context.Background(), records, strategies)
	if err != nil {
		t.Fatalf("Groups: %v", err)
	}
	second, err := m.Groups(context.Background(), records, strategies)
	if err != nil {
		t.Fatalf("Groups: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("two runs over the same input produced different output")
	}

	var keys []string
	for _, g := range first {
		keys = append(keys, g.Key.String())
	}
	want := []string{"domain:alpha.com", "domain:zeta.com", "name:alpha", "name:zeta"}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("group order = %v, want %v", keys, want)
	}
}

func TestDuplicateRecordIDsCollapse(t *testing.T) {
	records := []types.Record{
		{ID: "1", Name: "Example", Domain: "example.com"},
		{ID: "1", Name: "Example", Domain: "example.com"},
		{ID: "2", Name: "Example Corp", Domain: "example.com"},
	}
	m := New(nil, nil)
	groups, err := m.Groups(context.Background(), records, []types.MatchStrategy{types.StrategyDomain})
	if err != nil {
		t.Fatalf("Groups: %v", err)
	}
	if len(groups) != 1 || len(groups[0].Members) != 2 {
		t.Fatalf("expected one group of 2 unique members, got %+v", groups)
	}
}

func TestEveryGroupSatisfiesInvariants(t *testing.T) {
	records := []types.Record{
		{ID: "1", Name: "A", Domain: "a.com"},
		{ID: "2", Name: "B", Domain: "a.com"},
		{ID: "3", Name: "C", Domain: "c.com"},
		{ID: "4", Name: "Bluugo"},
		{ID: "5", Name: "Bluugo Oy"},
	}
	m := New(nil, nil)
	groups, err := m.Groups(context.Background(), records,
		[]types.MatchStrategy{types.StrategyDomain, types.StrategyName})
	if err != nil {
		t.Fatalf("Groups: %v", err)
	}
	for i := range groups {
		if err := groups[i].Validate(); err != nil {
			t.Errorf("group %s violates invariants: %v", groups[i].Key, err)
		}
	}
}

func ExampleMatcher_Groups() {
	records := []types.Record{
		{ID: "1", Name: "Example", Domain: "example.com"},
		{ID: "2", Name: "Example Corp", Domain: "example.com"},
	}
	m := New(nil, nil)
	groups, _ := m.Groups(context.Background(), records, []types.MatchStrategy{types.StrategyDomain})
	for _, g := range groups {
		fmt.Println(g.Key, g.MemberIDs())
	}
	// Output: domain:example.com [1 2]
}
