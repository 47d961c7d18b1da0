package experiment

import (
	"math"

	"github.com/quizfunnel/quizfunnel/pkg/types"
)

// MinSampleSize is the smallest per-arm visitor count for which a verdict is
// computed.
const MinSampleSize = 30

// z thresholds and the confidence each one maps to.
const (
	z95 = 1.96
	z90 = 1.65
	z80 = 1.28

	linearSlope   = 40.0
	linearCeiling = 75.0

	// SignificantConfidence is the confidence at which a result counts as
	// significant.
	SignificantConfidence = 95.0
)

// VariantMetrics is the aggregate for one arm over a window.
type VariantMetrics struct {
	Variant         string  `json:"variant"`
	Route           string  `json:"route"`
	Description     string  `json:"description"`
	PixelID         string  `json:"pixelId"`
	Visitors        int     `json:"visitors"`
	ConversionRate  float64 `json:"conversionRate"`
	QuizStarts      int     `json:"quizStarts"`
	QuizCompletions int     `json:"quizCompletions"`
	Leads           int     `json:"leads"`
	Sales           int     `json:"sales"`
	BounceRate      float64 `json:"bounceRate"`
	Revenue         float64 `json:"revenue"`
}

// Verdict is the outcome of the significance test.
type Verdict struct {
	ConfidencePercent float64 `json:"confidenceLevel"`
	IsSignificant     bool    `json:"isSignificant"`
	Winner            string  `json:"winner"`
}

// Evaluation is both arms plus the verdict for one window.
type Evaluation struct {
	Window  Window         `json:"-"`
	A       VariantMetrics `json:"variantA"`
	B       VariantMetrics `json:"variantB"`
	Verdict Verdict        `json:"verdict"`
}

// ComputeVariantMetrics aggregates the events attributed to arm inside w.
// unitPrice prices each Purchase event.
func ComputeVariantMetrics(arm Arm, unitPrice float64, events []types.Event, w Window) VariantMetrics {
	m := VariantMetrics{
		Variant:     arm.ID,
		Route:       arm.Route,
		Description: arm.Description,
		PixelID:     arm.PixelID,
	}
	sessions := make(map[string]struct{})
	pageViews := 0
	for _, ev := range events {
		if !w.Contains(ev.Timestamp) || !Belongs(ev, arm) {
			continue
		}
		if id := ev.CustomData.SessionID; id != "" {
			sessions[id] = struct{}{}
		}
		switch ev.EventName {
		case types.EventPageView:
			pageViews++
		case types.EventQuizStart:
			m.QuizStarts++
		case types.EventQuizComplete:
			m.QuizCompletions++
		case types.EventLead:
			m.Leads++
		case types.EventPurchase:
			m.Sales++
		}
	}

	m.Visitors = max(len(sessions), pageViews)
	if m.Visitors > 0 {
		v := float64(m.Visitors)
		m.ConversionRate = float64(m.Leads) / v * 100
		m.BounceRate = math.Max(0, float64(m.Visitors-m.QuizStarts)/v*100)
	}
	m.Revenue = float64(m.Sales) * unitPrice
	return m
}

// EvaluateSignificance compares the conversion rates of two arms.
//
// The winner is decided by raw rate even when the result is not significant;
// only the sample guard forces a tie.
func EvaluateSignificance(a, b VariantMetrics) Verdict {
	if a.Visitors < MinSampleSize || b.Visitors < MinSampleSize {
		return Verdict{Winner: WinnerTie}
	}
	na, nb := float64(a.Visitors), float64(b.Visitors)
	rateA := float64(a.Leads) / na
	rateB := float64(b.Leads) / nb

	pooled := float64(a.Leads+b.Leads) / (na + nb)
	se := math.Sqrt(pooled * (1 - pooled) * (1/na + 1/nb))
	z := 0.0
	if se > 0 && !math.IsNaN(se) {
		z = math.Abs(rateA-rateB) / se
	}

	confidence := bucket(z)
	v := Verdict{
		ConfidencePercent: confidence,
		IsSignificant:     confidence >= SignificantConfidence,
		Winner:            WinnerTie,
	}
	switch {
	case rateA > rateB:
		v.Winner = WinnerA
	case rateB > rateA:
		v.Winner = WinnerB
	}
	return v
}

func bucket(z float64) float64 {
	switch {
	case z > z95:
		return 95
	case z > z90:
		return 90
	case z > z80:
		return 80
	}
	return math.Min(z*linearSlope, linearCeiling)
}

// Evaluate computes both arms of exp over w and their verdict.
func Evaluate(exp Experiment, events []types.Event, w Window) Evaluation {
	a := ComputeVariantMetrics(exp.VariantA, exp.UnitPrice, events, w)
	b := ComputeVariantMetrics(exp.VariantB, exp.UnitPrice, events, w)
	return Evaluation{
		Window:  w,
		A:       a,
		B:       b,
		Verdict: EvaluateSignificance(a, b),
	}
}

// Lift is B's conversion rate relative to A's, in percent. It is 0 when A has
// no conversions.
func (e Evaluation) Lift() float64 {
	if e.A.ConversionRate == 0 {
		return 0
	}
	return (e.B.ConversionRate - e.A.ConversionRate) / e.A.ConversionRate * 100
}
