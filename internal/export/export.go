// Package export renders inventory, duplicate-detection, and merge data as
// semicolon-delimited CSV, the layout the spreadsheets downstream of the
// dedup workflow expect. Writers take an io.Writer; opening and closing
// files belongs to the caller.
package export

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"

	"github.com/halvari/crmdedup/internal/types"
)

var (
	companyHeader = []string{"id", "name", "domain", "business_id", "created", "canonical_id", "canonical_status"}
	groupHeader   = []string{"id", "domain", "name", "business_id", "match_type", "match_key"}
	pairHeader    = []string{"id1", "id2", "score", "reason"}
	mergeHeader   = []string{"group_key", "primary_id", "primary_name", "primary_created", "mergee_id", "mergee_name", "mergee_created", "status"}
)

func newWriter(w io.Writer) *csv.Writer {
	cw := csv.NewWriter(w)
	cw.Comma = ';'
	return cw
}

// WriteCompanies dumps the full inventory in input order. resolutions is
// keyed by record ID and fills the canonical columns for rows that have a
// chain resolution; pass nil for a plain dump with those columns empty.
func WriteCompanies(w io.Writer, records []types.Record, resolutions map[string]types.CanonicalResolution) error {
	cw := newWriter(w)
	if err := cw.Write(companyHeader); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{r.ID, r.Name, r.Domain, r.BusinessID, r.RawCreatedAt, "", ""}
		if res, ok := resolutions[r.ID]; ok {
			row[5] = res.FinalID
			row[6] = string(res.Status)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteGroups flattens duplicate groups to one row per member, ordered by
// (match_type, match_key, name, id) so groups from different strategies
// land in contiguous, diffable blocks.
func WriteGroups(w io.Writer, groups []types.DuplicateGroup) error {
	type row struct {
		strategy string
		key      string
		rec      types.Record
	}
	var rows []row
	for _, g := range groups {
		for _, m := range g.Members {
			rows = append(rows, row{strategy: string(g.Key.Strategy), key: g.Key.Key, rec: m})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.strategy != b.strategy {
			return a.strategy < b.strategy
		}
		if a.key != b.key {
			return a.key < b.key
		}
		if a.rec.Name != b.rec.Name {
			return a.rec.Name < b.rec.Name
		}
		return types.CompareIDs(a.rec.ID, b.rec.ID) < 0
	})

	cw := newWriter(w)
	if err := cw.Write(groupHeader); err != nil {
		return err
	}
	for _, r := range rows {
		out := []string{r.rec.ID, r.rec.Domain, r.rec.Name, r.rec.BusinessID, r.strategy, r.key}
		if err := cw.Write(out); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFuzzyPairs writes candidate pairs ordered by (id1, id2),
// numeric-aware so "9" sorts before "10".
func WriteFuzzyPairs(w io.Writer, pairs []types.FuzzyPair) error {
	sorted := make([]types.FuzzyPair, len(pairs))
	copy(sorted, pairs)
	sort.Slice(sorted, func(i, j int) bool {
		if c := types.CompareIDs(sorted[i].IDA, sorted[j].IDA); c != 0 {
			return c < 0
		}
		return types.CompareIDs(sorted[i].IDB, sorted[j].IDB) < 0
	})

	cw := newWriter(w)
	if err := cw.Write(pairHeader); err != nil {
		return err
	}
	for _, p := range sorted {
		row := []string{p.IDA, p.IDB, strconv.Itoa(p.Score), p.Reason}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteMergeLog writes outcomes in the order they were decided. The audit
// database keeps the Detail column; this report carries the fields the
// original spreadsheet review worked from.
func WriteMergeLog(w io.Writer, outcomes []types.MergeOutcome) error {
	cw := newWriter(w)
	if err := cw.Write(mergeHeader); err != nil {
		return err
	}
	for _, o := range outcomes {
		row := []string{
			o.GroupKey,
			o.PrimaryID,
			o.PrimaryName,
			o.PrimaryCreatedRaw,
			o.MergeeID,
			o.MergeeName,
			o.MergeeCreatedRaw,
			string(o.Status),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
