package similarity

import (
	"math"
	"sort"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"

	"github.com/halvari/crmdedup/internal/normalize"
	"github.com/halvari/crmdedup/internal/types"
)

// Pair reasons, in the order the scorer assigns them.
const (
	reasonIdenticalKey = "identical-name-key"
	reasonNameDomain   = "name+domain"
	reasonNameRoot     = "name+domain-root"
	reasonNameTokens   = "name-tokens"
)

// Domain evidence weights. The exact-domain bonus outranks the root bonus;
// both are small enough that name evidence stays the deciding factor.
const (
	domainExactBonus = 10
	domainRootBonus  = 5
)

// Domain disagreement thresholds: a strongly conflicting root rejects the
// pair outright, a moderately conflicting one rejects unless the names are
// near-identical. Root length difference erodes trust fast because roots are
// short strings.
const (
	rootRejectBelow   = 60
	rootSuspectBelow  = 80
	nameScoreOverride = 98
	rootLengthPenalty = 5
)

// entry is a record with every derived form the scorer needs, computed once.
type entry struct {
	rec    types.Record
	norm   string
	key    string
	sorted string
	sig    []string
	domain string
	root   string
}

func newEntry(rec types.Record) entry {
	norm := normalize.Name(rec.Name)
	domain := normalize.Domain(rec.Domain)
	return entry{
		rec:    rec,
		norm:   norm,
		key:    strings.ReplaceAll(norm, " ", ""),
		sorted: sortTokens(norm),
		sig:    normalize.SignificantTokens(norm),
		domain: domain,
		root:   normalize.DomainRoot(domain),
	}
}

// sortTokens rebuilds a normalized name with its tokens in sorted order, so
// "bluugo solutions" and "solutions bluugo" compare as equals.
func sortTokens(norm string) string {
	tokens := strings.Fields(norm)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

var (
	diceMetric = metrics.NewSorensenDice()
	rootMetric = metrics.NewJaroWinkler()
)

// nameScore is the 0-100 token-set similarity of two normalized names: the
// better of the verbatim and token-sorted Sørensen–Dice comparisons.
func nameScore(a, b entry) int {
	if a.norm == "" || b.norm == "" {
		return 0
	}
	plain := strutil.Similarity(a.norm, b.norm, diceMetric)
	sorted := strutil.Similarity(a.sorted, b.sorted, diceMetric)
	return int(math.Round(math.Max(plain, sorted) * 100))
}

// passesPrefilter is the cheap rejection before any string metric runs: the
// names must share at least one significant token.
func passesPrefilter(a, b entry) bool {
	return normalize.HasSignificantOverlap(a.norm, b.norm)
}

// scorePair combines name and domain evidence into one 0-100 score for a
// pair that already passed the prefilter. ok is false when the pair is
// rejected: conflicting domain roots, or a final score below minScore.
func scorePair(a, b entry, minScore int) (score int, reason string, ok bool) {
	// Identical keys after suffix stripping are the strongest signal there
	// is: "Bluugo" vs "Bluugo Oy" scores 100 regardless of domains.
	if a.key != "" && a.key == b.key {
		return 100, reasonIdenticalKey, true
	}

	score = nameScore(a, b)

	// Domain roots only veto when the names differ; identical normalized
	// names are allowed to live on different domains.
	if a.norm != b.norm && a.root != "" && b.root != "" {
		rootScore := int(math.Round(strutil.Similarity(a.root, b.root, rootMetric) * 100))
		lengthDiff := len(a.root) - len(b.root)
		if lengthDiff < 0 {
			lengthDiff = -lengthDiff
		}
		adjusted := rootScore - lengthDiff*rootLengthPenalty
		if adjusted < rootRejectBelow {
			return 0, "", false
		}
		if adjusted < rootSuspectBelow && score < nameScoreOverride {
			return 0, "", false
		}
	}

	reason = reasonNameTokens
	switch {
	case a.domain != "" && a.domain == b.domain:
		score += domainExactBonus
		reason = reasonNameDomain
	case a.root != "" && a.root == b.root:
		score += domainRootBonus
		reason = reasonNameRoot
	}
	if score > 100 {
		score = 100
	}

	if score < minScore {
		return 0, "", false
	}
	return score, reason, true
}
