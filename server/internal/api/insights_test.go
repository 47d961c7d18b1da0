package api

import (
	"testing"

	"github.com/quizfunnel/quizfunnel/server/internal/experiment"
)

func report(a, b experiment.VariantMetrics, v experiment.StatisticalAnalysis) experiment.Report {
	a.Variant, b.Variant = experiment.ArmA, experiment.ArmB
	return experiment.Report{TestName: "t", TimeRange: experiment.Range7d, VariantA: a, VariantB: b, StatisticalAnalysis: v}
}

func keys(hints []Insight) []string {
	out := make([]string, len(hints))
	for i, h := range hints {
		out[i] = h.Key
	}
	return out
}

func TestComputeInsights(t *testing.T) {
	healthy := experiment.VariantMetrics{Visitors: 100, Leads: 10, QuizStarts: 80, BounceRate: 20}
	tests := []struct {
		name string
		r    experiment.Report
		want []string
	}{
		{
			"no traffic",
			report(experiment.VariantMetrics{}, experiment.VariantMetrics{}, experiment.StatisticalAnalysis{Winner: experiment.WinnerTie}),
			[]string{"no_traffic"},
		},
		{
			"small sample without conversions",
			report(experiment.VariantMetrics{Visitors: 10, QuizStarts: 9, BounceRate: 10},
				experiment.VariantMetrics{Visitors: 40, QuizStarts: 30, BounceRate: 25},
				experiment.StatisticalAnalysis{Winner: experiment.WinnerTie}),
			[]string{"insufficient_sample", "no_conversions", "tie"},
		},
		{
			"significant winner",
			report(healthy, healthy, experiment.StatisticalAnalysis{ConfidenceLevel: 95, IsSignificant: true, Winner: experiment.WinnerB}),
			[]string{"significant_winner"},
		},
		{
			"leaning with high bounce",
			report(healthy,
				experiment.VariantMetrics{Visitors: 100, Leads: 12, QuizStarts: 20, BounceRate: 80},
				experiment.StatisticalAnalysis{ConfidenceLevel: 40, Winner: experiment.WinnerB}),
			[]string{"high_bounce_B", "leaning_winner"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := keys(computeInsights(tt.r))
			if len(got) != len(tt.want) {
				t.Fatalf("keys = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("keys = %v, want %v", got, tt.want)
					break
				}
			}
		})
	}
}

func TestComputeInsights_Ordering(t *testing.T) {
	r := report(experiment.VariantMetrics{Visitors: 5, BounceRate: 100},
		experiment.VariantMetrics{Visitors: 5, BounceRate: 100},
		experiment.StatisticalAnalysis{Winner: experiment.WinnerTie})
	hints := computeInsights(r)
	last := -1
	for _, h := range hints {
		rank, ok := levelRank[h.Level]
		if !ok {
			t.Fatalf("unknown level %q", h.Level)
		}
		if rank < last {
			t.Fatalf("hints out of order: %v", keys(hints))
		}
		last = rank
	}
	if hints[len(hints)-1].Key != "tie" {
		t.Errorf("last hint = %s, want tie", hints[len(hints)-1].Key)
	}
}
