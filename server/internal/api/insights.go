package api

import (
	"fmt"
	"sort"

	"github.com/quizfunnel/quizfunnel/server/internal/experiment"
)

// highBounceRate is the bounce percentage above which an arm gets a warning.
const highBounceRate = 70.0

// Insight is one human-readable hint about an experiment report. The
// dashboard shows Title as a chip; Detail explains it in plain language.
type Insight struct {
	// Key is a stable machine-readable identifier.
	Key string `json:"key"`
	// Level is "critical" | "warning" | "info"
	Level string `json:"level"`
	Title string `json:"title"`
	// Detail is the full explanation shown on click/hover.
	Detail string `json:"detail"`
	// Value is an optional number tied to the hint (confidence, bounce %).
	Value *float64 `json:"value,omitempty"`
}

var levelRank = map[string]int{"critical": 0, "warning": 1, "info": 2}

// computeInsights derives hints from a report, critical first, then
// warnings, then info.
func computeInsights(r experiment.Report) []Insight {
	a, b := r.VariantA, r.VariantB
	verdict := r.Verdict()
	var hints []Insight

	if a.Visitors == 0 && b.Visitors == 0 {
		return []Insight{{
			Key:   "no_traffic",
			Level: "critical",
			Title: "No traffic",
			Detail: fmt.Sprintf(
				"Neither variant received a visitor in the %s window. "+
					"Check that both landing pages fire the PageView event with the right pixel "+
					"or variant tag, and that the window is not too narrow.",
				r.TimeRange),
		}}
	}

	if a.Visitors < experiment.MinSampleSize || b.Visitors < experiment.MinSampleSize {
		needA := max(0, experiment.MinSampleSize-a.Visitors)
		needB := max(0, experiment.MinSampleSize-b.Visitors)
		hints = append(hints, Insight{
			Key:   "insufficient_sample",
			Level: "warning",
			Title: "Not enough visitors",
			Detail: fmt.Sprintf(
				"A result needs at least %d visitors per variant. "+
					"Variant A has %d (needs %d more), variant B has %d (needs %d more). "+
					"Until both reach the minimum the confidence stays at 0%%.",
				experiment.MinSampleSize, a.Visitors, needA, b.Visitors, needB),
		})
	}

	if a.Leads == 0 && b.Leads == 0 {
		hints = append(hints, Insight{
			Key:   "no_conversions",
			Level: "warning",
			Title: "No conversions yet",
			Detail: "Visitors are arriving but no Lead event was recorded on either variant. " +
				"Confirm the lead form fires the Lead event, or widen the window.",
		})
	}

	for _, arm := range []experiment.VariantMetrics{a, b} {
		if arm.Visitors > 0 && arm.BounceRate > highBounceRate {
			v := arm.BounceRate
			hints = append(hints, Insight{
				Key:   "high_bounce_" + arm.Variant,
				Level: "warning",
				Title: fmt.Sprintf("%.0f%% bounce on %s", arm.BounceRate, arm.Variant),
				Detail: fmt.Sprintf(
					"%.1f%% of visitors on variant %s (%s) never started the quiz. "+
						"The page may load slowly or the call to action may be hard to find.",
					arm.BounceRate, arm.Variant, arm.Route),
				Value: &v,
			})
		}
	}

	conf := verdict.ConfidencePercent
	switch {
	case verdict.IsSignificant:
		hints = append(hints, Insight{
			Key:   "significant_winner",
			Level: "info",
			Title: fmt.Sprintf("Variant %s wins", verdict.Winner),
			Detail: fmt.Sprintf(
				"Variant %s converts better with %.0f%% confidence (lift of B over A: %.1f%%). "+
					"The result is statistically significant; you can roll it out.",
				verdict.Winner, conf, r.Lift()),
			Value: &conf,
		})
	case verdict.Winner == experiment.WinnerTie:
		hints = append(hints, Insight{
			Key:   "tie",
			Level: "info",
			Title: "No difference yet",
			Detail: "Both variants convert at the same rate, or there is not enough data to tell them apart. " +
				"Keep the test running.",
		})
	default:
		hints = append(hints, Insight{
			Key:   "leaning_winner",
			Level: "info",
			Title: fmt.Sprintf("Leaning %s", verdict.Winner),
			Detail: fmt.Sprintf(
				"Variant %s is ahead, but confidence is only %.0f%%. "+
					"A result counts as significant from %.0f%%; keep collecting data before deciding.",
				verdict.Winner, conf, experiment.SignificantConfidence),
			Value: &conf,
		})
	}

	sort.SliceStable(hints, func(i, j int) bool {
		return levelRank[hints[i].Level] < levelRank[hints[j].Level]
	})
	return hints
}
