package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halvari/crmdedup/internal/types"
)

func entryFor(id, name, domain string) entry {
	return newEntry(types.Record{ID: id, Name: name, Domain: domain})
}

func TestScorePairIdenticalKey(t *testing.T) {
	a := entryFor("1", "Bluugo", "")
	b := entryFor("2", "Bluugo Oy", "")
	require.True(t, passesPrefilter(a, b))

	score, reason, ok := scorePair(a, b, 90)
	require.True(t, ok)
	assert.Equal(t, 100, score)
	assert.Equal(t, reasonIdenticalKey, reason)
}

func TestPrefilterRequiresSignificantOverlap(t *testing.T) {
	a := entryFor("1", "University of the Arts Helsinki", "")
	b := entryFor("2", "University of Oslo Library", "")
	assert.False(t, passesPrefilter(a, b),
		"names sharing only stopwords must not reach scoring")

	c := entryFor("3", "Bluugo Solutions", "")
	d := entryFor("4", "Bluugo", "")
	assert.True(t, passesPrefilter(c, d))
}

func TestScorePairDomainRootVeto(t *testing.T) {
	a := entryFor("1", "Bluugo Solutions", "bluugo.fi")
	b := entryFor("2", "Bluugo Solution", "rivalbrand.com")
	require.True(t, passesPrefilter(a, b))

	_, _, ok := scorePair(a, b, 90)
	assert.False(t, ok, "strongly conflicting domain roots must veto a near-identical name")
}

func TestScorePairIdenticalKeyBeatsDomainVeto(t *testing.T) {
	// Identical normalized keys are accepted regardless of domains.
	a := entryFor("1", "Audionova", "audionova.dk")
	b := entryFor("2", "Audionova Oy", "totally-elsewhere.com")
	score, reason, ok := scorePair(a, b, 90)
	require.True(t, ok)
	assert.Equal(t, 100, score)
	assert.Equal(t, reasonIdenticalKey, reason)
}

func TestScorePairDomainBonus(t *testing.T) {
	a := entryFor("1", "Bluugo Solutions", "bluugo.fi")
	b := entryFor("2", "Bluugo Solution", "bluugo.fi")
	score, reason, ok := scorePair(a, b, 90)
	require.True(t, ok)
	assert.Equal(t, reasonNameDomain, reason)
	assert.Equal(t, 100, score)
}

func TestScorePairBelowThresholdRejected(t *testing.T) {
	a := entryFor("1", "Bluugo Solutions", "")
	b := entryFor("2", "Bluugo Logistics", "")
	_, _, ok := scorePair(a, b, 99)
	assert.False(t, ok)
}

func TestScorePairEmptyNamesNeverMatch(t *testing.T) {
	a := entryFor("1", "", "audionova.dk")
	b := entryFor("2", "", "audionova.dk")
	_, _, ok := scorePair(a, b, 90)
	assert.False(t, ok, "domain evidence alone must not manufacture a pair")
}

func TestSortTokens(t *testing.T) {
	assert.Equal(t, "bluugo solutions", sortTokens("solutions bluugo"))
	assert.Equal(t, "", sortTokens(""))
}
