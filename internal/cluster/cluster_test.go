package cluster

import (
	"reflect"
	"testing"

	"github.com/halvari/crmdedup/internal/types"
)

func pair(a, b string, score int) types.FuzzyPair {
	return types.FuzzyPair{IDA: a, IDB: b, Score: score, Reason: "name-tokens"}
}

func TestClustersTransitiveClosure(t *testing.T) {
	// A-B and B-C connect A, B and C even though A-C was never compared.
	pairs := []types.FuzzyPair{
		pair("1", "2", 95),
		pair("2", "3", 92),
		pair("7", "8", 100),
	}

	clusters := Clusters(pairs)
	if len(clusters) != 2 {
		t.Fatalf("expected 2 clusters, got %d: %+v", len(clusters), clusters)
	}
	if !reflect.DeepEqual(clusters[0].Members, []string{"1", "2", "3"}) {
		t.Errorf("cluster 0 members = %v", clusters[0].Members)
	}
	if !reflect.DeepEqual(clusters[1].Members, []string{"7", "8"}) {
		t.Errorf("cluster 1 members = %v", clusters[1].Members)
	}
	if len(clusters[0].Edges) != 2 || len(clusters[1].Edges) != 1 {
		t.Errorf("edges not preserved: %+v", clusters)
	}
}

func TestClustersPartitionProperty(t *testing.T) {
	pairs := []types.FuzzyPair{
		pair("10", "20", 90),
		pair("20", "30", 90),
		pair("40", "50", 90),
		pair("50", "60", 90),
		pair("60", "40", 90),
		pair("70", "80", 90),
	}

	clusters := Clusters(pairs)

	seen := make(map[string]int)
	for _, c := range clusters {
		for _, id := range c.Members {
			seen[id]++
		}
	}
	for _, p := range pairs {
		for _, id := range []string{p.IDA, p.IDB} {
			if seen[id] != 1 {
				t.Errorf("ID %s appears in %d clusters, want exactly 1", id, seen[id])
			}
		}
	}

	// Every edge stays inside the cluster that contains its endpoints.
	for _, c := range clusters {
		member := make(map[string]bool)
		for _, id := range c.Members {
			member[id] = true
		}
		for _, e := range c.Edges {
			if !member[e.IDA] || !member[e.IDB] {
				t.Errorf("edge %+v crosses cluster %v", e, c.Members)
			}
		}
	}
}

func TestClustersDeterministicOrder(t *testing.T) {
	pairs := []types.FuzzyPair{
		pair("300", "100", 90),
		pair("9", "200", 90),
	}

	first := Clusters(pairs)
	second := Clusters(pairs)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated runs differ:\n%+v\n%+v", first, second)
	}

	// Smallest member decides cluster order; IDs compare numerically.
	if first[0].Members[0] != "9" {
		t.Errorf("cluster order = %+v, want the 9/200 cluster first", first)
	}
	if !reflect.DeepEqual(first[1].Members, []string{"100", "300"}) {
		t.Errorf("cluster 1 members = %v", first[1].Members)
	}
}

func TestClustersIgnoresDegeneratePairs(t *testing.T) {
	pairs := []types.FuzzyPair{
		pair("1", "1", 100),
		pair("", "2", 100),
		pair("3", "", 100),
	}
	if got := Clusters(pairs); len(got) != 0 {
		t.Errorf("expected no clusters from degenerate pairs, got %+v", got)
	}
}

func TestClustersDeduplicatesEdges(t *testing.T) {
	pairs := []types.FuzzyPair{
		pair("1", "2", 95),
		pair("1", "2", 95),
		pair("2", "1", 95),
	}

	clusters := Clusters(pairs)
	if len(clusters) != 1 {
		t.Fatalf("expected 1 cluster, got %+v", clusters)
	}
	if len(clusters[0].Edges) != 1 {
		t.Errorf("expected duplicate edges to collapse, got %+v", clusters[0].Edges)
	}
}

func TestClustersEmptyInput(t *testing.T) {
	if got := Clusters(nil); len(got) != 0 {
		t.Errorf("expected no clusters, got %+v", got)
	}
}
