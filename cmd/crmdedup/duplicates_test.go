package main

import (
	"testing"

	"github.com/spf13/cobra"

	"github.com/halvari/crmdedup/internal/types"
)

func TestStrategiesFlag(t *testing.T) {
	configured := []types.MatchStrategy{types.StrategyDomain}

	cmd := &cobra.Command{}
	cmd.Flags().StringP("strategy", "s", "", "")

	got, err := strategiesFlag(cmd, configured)
	if err != nil {
		t.Fatalf("strategiesFlag() error = %v", err)
	}
	if len(got) != 1 || got[0] != types.StrategyDomain {
		t.Errorf("strategies without flag = %v, want configured [domain]", got)
	}

	if err := cmd.Flags().Set("strategy", "name, business-id"); err != nil {
		t.Fatalf("Set(strategy) error = %v", err)
	}
	got, err = strategiesFlag(cmd, configured)
	if err != nil {
		t.Fatalf("strategiesFlag() error = %v", err)
	}
	if len(got) != 2 || got[0] != types.StrategyName || got[1] != types.StrategyBusinessID {
		t.Errorf("strategies = %v, want [name business-id]", got)
	}

	if err := cmd.Flags().Set("strategy", "geography"); err != nil {
		t.Fatalf("Set(strategy) error = %v", err)
	}
	if _, err := strategiesFlag(cmd, configured); err == nil {
		t.Error("strategiesFlag() with an unknown strategy should fail")
	}
}
