// Package cluster groups fuzzy candidate pairs into connected components.
//
// Pairs are edges in an undirected graph over record IDs. A connected
// component is one prospective merge group: if A~B and B~C scored as
// candidates, all three belong together even though A~C was never compared
// directly. Components are computed with a disjoint-set forest and each
// cluster carries the pairs that connected it, so a reviewer can always see
// why a record ended up in a group.
package cluster

import (
	"sort"

	"github.com/halvari/crmdedup/internal/types"
)

// unionFind is a disjoint-set forest with path compression and union by size.
type unionFind struct {
	parent map[string]string
	size   map[string]int
}

func newUnionFind() *unionFind {
	return &unionFind{
		parent: make(map[string]string),
		size:   make(map[string]int),
	}
}

func (u *unionFind) add(id string) {
	if _, ok := u.parent[id]; !ok {
		u.parent[id] = id
		u.size[id] = 1
	}
}

func (u *unionFind) find(id string) string {
	root := id
	for u.parent[root] != root {
		root = u.parent[root]
	}
	for u.parent[id] != root {
		id, u.parent[id] = u.parent[id], root
	}
	return root
}

func (u *unionFind) union(a, b string) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if u.size[ra] < u.size[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	u.size[ra] += u.size[rb]
}

// Clusters partitions the pair graph into connected components. Every ID
// that appears in a valid pair lands in exactly one cluster. Members are
// sorted by ID, edges canonically, and clusters by their smallest member,
// so the same input always yields the same output.
func Clusters(pairs []types.FuzzyPair) []types.Cluster {
	uf := newUnionFind()
	seen := make(map[string]bool, len(pairs))
	valid := pairs[:0:0]
	for _, p := range pairs {
		if p.IDA == "" || p.IDB == "" || p.IDA == p.IDB {
			continue
		}
		key := p.IDA + "|" + p.IDB
		if p.IDB < p.IDA {
			key = p.IDB + "|" + p.IDA
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		valid = append(valid, p)
		uf.add(p.IDA)
		uf.add(p.IDB)
		uf.union(p.IDA, p.IDB)
	}

	members := make(map[string][]string)
	for id := range uf.parent {
		root := uf.find(id)
		members[root] = append(members[root], id)
	}
	edges := make(map[string][]types.FuzzyPair)
	for _, p := range valid {
		root := uf.find(p.IDA)
		edges[root] = append(edges[root], p)
	}

	out := make([]types.Cluster, 0, len(members))
	for root, ids := range members {
		types.SortIDs(ids)
		es := edges[root]
		sort.Slice(es, func(i, j int) bool {
			if c := types.CompareIDs(es[i].IDA, es[j].IDA); c != 0 {
				return c < 0
			}
			return types.CompareIDs(es[i].IDB, es[j].IDB) < 0
		})
		out = append(out, types.Cluster{Members: ids, Edges: es})
	}
	sort.Slice(out, func(i, j int) bool {
		return types.CompareIDs(out[i].Members[0], out[j].Members[0]) < 0
	})
	return out
}
