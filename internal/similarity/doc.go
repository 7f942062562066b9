// Package similarity finds approximate-duplicate company pairs using
// blocking and deterministic string scoring.
//
// # Overview
//
// Exact-key matching (package match) catches records that agree on a domain,
// a name key, or a business ID. Everything else (typos, reorderings,
// descriptor words) needs approximate comparison, and comparing every record
// against every other record is quadratic. This package bounds that cost with
// blocking: records are assigned to buckets keyed by cheap fingerprints, and
// only records sharing a bucket are compared pairwise.
//
// # Blocking
//
// Each record lands in one bucket per significant name token ("token:bluugo")
// and one for its registrable domain root ("domain:audionova"). Buckets
// larger than MaxBucketSize are skipped entirely and reported in the result:
// a silent quadratic blowup on a mega-bucket ("token:consulting") is worse
// than an honest gap in coverage.
//
// # Scoring
//
// A candidate pair must first share at least one significant (non-stopword)
// name token. Scoring then combines:
//
//   - token-set name similarity (Sørensen–Dice, verbatim and token-sorted)
//   - an exact rule: identical normalized name keys score 100 outright,
//     which is what makes "Bluugo" and "Bluugo Oy" a certain match
//   - domain evidence: a bonus for an identical domain or domain root, and
//     a veto for strongly conflicting roots (two different real companies
//     with similar names usually disagree on domains)
//
// Weights and thresholds are fixed constants; there is no randomness and no
// time dependence anywhere, so the same input and config always produce the
// same Report, bit for bit, regardless of worker count.
//
// # Output
//
// Pairs at or above MinScore are returned in canonical (id, id) order
// together with the skipped buckets, the number of comparisons performed,
// and a truncation flag when MaxPairs capped the output. Downstream, package
// cluster turns these pairs into connected components for merge planning.
package similarity
