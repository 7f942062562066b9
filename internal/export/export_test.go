package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/halvari/crmdedup/internal/types"
)

func lines(rows ...string) string {
	return strings.Join(rows, "\n") + "\n"
}

func TestWriteCompaniesPlain(t *testing.T) {
	records := []types.Record{
		{ID: "10", Name: "Acme Oy", Domain: "acme.fi", BusinessID: "FI123", RawCreatedAt: "2019-10-30T03:30:17.883Z"},
		{ID: "11", Name: "Beta"},
	}

	var buf bytes.Buffer
	if err := WriteCompanies(&buf, records, nil); err != nil {
		t.Fatalf("WriteCompanies() error = %v", err)
	}

	want := lines(
		"id;name;domain;business_id;created;canonical_id;canonical_status",
		"10;Acme Oy;acme.fi;FI123;2019-10-30T03:30:17.883Z;;",
		"11;Beta;;;;;",
	)
	if buf.String() != want {
		t.Errorf("WriteCompanies() =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestWriteCompaniesResolved(t *testing.T) {
	records := []types.Record{
		{ID: "10", Name: "Acme"},
		{ID: "12", Name: "Acme Old"},
		{ID: "13", Name: "Orphan"},
	}
	resolutions := map[string]types.CanonicalResolution{
		"10": {InputID: "10", FinalID: "10", Status: types.ResolutionLive},
		"12": {InputID: "12", FinalID: "10", Hops: []string{"12", "10"}, Status: types.ResolutionRedirected},
	}

	var buf bytes.Buffer
	if err := WriteCompanies(&buf, records, resolutions); err != nil {
		t.Fatalf("WriteCompanies() error = %v", err)
	}

	want := lines(
		"id;name;domain;business_id;created;canonical_id;canonical_status",
		"10;Acme;;;;10;live",
		"12;Acme Old;;;;10;redirected",
		"13;Orphan;;;;;",
	)
	if buf.String() != want {
		t.Errorf("WriteCompanies() =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestWriteCompaniesQuotesDelimiter(t *testing.T) {
	records := []types.Record{
		{ID: "10", Name: "Acme; Inc"},
	}

	var buf bytes.Buffer
	if err := WriteCompanies(&buf, records, nil); err != nil {
		t.Fatalf("WriteCompanies() error = %v", err)
	}
	if !strings.Contains(buf.String(), `"Acme; Inc"`) {
		t.Errorf("WriteCompanies() should quote fields containing the delimiter:\n%s", buf.String())
	}
}

func TestWriteGroupsOrdering(t *testing.T) {
	groups := []types.DuplicateGroup{
		{
			Key: types.MatchKey{Strategy: types.StrategyName, Key: "acme"},
			Members: []types.Record{
				{ID: "30", Name: "Acme Oy"},
				{ID: "4", Name: "Acme AB"},
			},
		},
		{
			Key: types.MatchKey{Strategy: types.StrategyDomain, Key: "acme.fi"},
			Members: []types.Record{
				// Same name twice: the numeric-aware id tie-break decides.
				{ID: "10", Name: "Acme", Domain: "acme.fi", BusinessID: "FI1"},
				{ID: "9", Name: "Acme", Domain: "acme.fi"},
			},
		},
	}

	var buf bytes.Buffer
	if err := WriteGroups(&buf, groups); err != nil {
		t.Fatalf("WriteGroups() error = %v", err)
	}

	want := lines(
		"id;domain;name;business_id;match_type;match_key",
		"9;acme.fi;Acme;;domain;acme.fi",
		"10;acme.fi;Acme;FI1;domain;acme.fi",
		"4;;Acme AB;;name;acme",
		"30;;Acme Oy;;name;acme",
	)
	if buf.String() != want {
		t.Errorf("WriteGroups() =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestWriteFuzzyPairsNumericOrder(t *testing.T) {
	pairs := []types.FuzzyPair{
		{IDA: "10", IDB: "20", Score: 88, Reason: "name"},
		{IDA: "9", IDB: "100", Score: 95, Reason: "domain-root"},
		{IDA: "9", IDB: "11", Score: 92, Reason: "name"},
	}

	var buf bytes.Buffer
	if err := WriteFuzzyPairs(&buf, pairs); err != nil {
		t.Fatalf("WriteFuzzyPairs() error = %v", err)
	}

	want := lines(
		"id1;id2;score;reason",
		"9;11;92;name",
		"9;100;95;domain-root",
		"10;20;88;name",
	)
	if buf.String() != want {
		t.Errorf("WriteFuzzyPairs() =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestWriteMergeLogPreservesOrder(t *testing.T) {
	outcomes := []types.MergeOutcome{
		{
			GroupKey:          "domain:acme.fi",
			PrimaryID:         "10",
			PrimaryName:       "Acme",
			PrimaryCreatedRaw: "2019-10-30T03:30:17.883Z",
			MergeeID:          "12",
			MergeeName:        "Acme Oy",
			MergeeCreatedRaw:  "2021-01-01T00:00:00Z",
			Status:            types.OutcomeMerged,
		},
		{
			GroupKey:  "domain:acme.fi",
			PrimaryID: "10",
			MergeeID:  "14",
			Status:    types.OutcomeFailedOther,
			Detail:    "not exported",
		},
	}

	var buf bytes.Buffer
	if err := WriteMergeLog(&buf, outcomes); err != nil {
		t.Fatalf("WriteMergeLog() error = %v", err)
	}

	want := lines(
		"group_key;primary_id;primary_name;primary_created;mergee_id;mergee_name;mergee_created;status",
		"domain:acme.fi;10;Acme;2019-10-30T03:30:17.883Z;12;Acme Oy;2021-01-01T00:00:00Z;merged",
		"domain:acme.fi;10;;;14;;;failed-other",
	)
	if buf.String() != want {
		t.Errorf("WriteMergeLog() =\n%s\nwant\n%s", buf.String(), want)
	}
}
