package experiment

import (
	"fmt"
	"time"
)

// Report is the downloadable export of one evaluation.
type Report struct {
	TestName            string              `json:"testName"`
	TimeRange           TimeRange           `json:"timeRange"`
	GeneratedAt         time.Time           `json:"generatedAt"`
	VariantA            VariantMetrics      `json:"variantA"`
	VariantB            VariantMetrics      `json:"variantB"`
	StatisticalAnalysis StatisticalAnalysis `json:"statisticalAnalysis"`
}

// StatisticalAnalysis is the verdict as it appears in a Report.
type StatisticalAnalysis struct {
	ConfidenceLevel float64 `json:"confidenceLevel"`
	IsSignificant   bool    `json:"isSignificant"`
	Winner          string  `json:"winner"`
}

// BuildReport shapes an evaluation of exp for export.
func BuildReport(exp Experiment, ev Evaluation, generatedAt time.Time) Report {
	return Report{
		TestName:    exp.Name,
		TimeRange:   ev.Window.Range,
		GeneratedAt: generatedAt.UTC(),
		VariantA:    ev.A,
		VariantB:    ev.B,
		StatisticalAnalysis: StatisticalAnalysis{
			ConfidenceLevel: ev.Verdict.ConfidencePercent,
			IsSignificant:   ev.Verdict.IsSignificant,
			Winner:          ev.Verdict.Winner,
		},
	}
}

// Verdict returns the report's analysis as a Verdict.
func (r Report) Verdict() Verdict {
	return Verdict{
		ConfidencePercent: r.StatisticalAnalysis.ConfidenceLevel,
		IsSignificant:     r.StatisticalAnalysis.IsSignificant,
		Winner:            r.StatisticalAnalysis.Winner,
	}
}

// Lift is B's conversion rate relative to A's, in percent.
func (r Report) Lift() float64 {
	return Evaluation{A: r.VariantA, B: r.VariantB}.Lift()
}

// Filename is the download name for r.
func (r Report) Filename() string {
	return ReportFilename(r.TimeRange, r.GeneratedAt)
}

// ReportFilename builds ab-test-report-{range}-{YYYY-MM-DD}.json.
func ReportFilename(r TimeRange, at time.Time) string {
	return fmt.Sprintf("ab-test-report-%s-%s.json", r, at.UTC().Format("2006-01-02"))
}
