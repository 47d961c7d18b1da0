package alerts

import (
	"strconv"
	"strings"

	"github.com/quizfunnel/quizfunnel/server/internal/experiment"
)

// evalCondition evaluates a rule condition string against an experiment report.
//
// Supported expressions (field operator value):
//
//	confidence >= 95
//	visitors_a < 30
//	visitors_b < 30
//	leads_a == 0
//	conversion_rate_a < 2
//	conversion_rate_b > 10
//	bounce_rate_b > 70
//	lift > 20
//	winner == B
//	winner != tie
//	significant == true
//
// Returns (fires bool, triggering value float64).
// Returns (false, 0) if the expression cannot be parsed or the field is unknown.
func evalCondition(cond string, r experiment.Report) (bool, float64) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return false, 0
	}
	field, op, rhs := parts[0], parts[1], parts[2]

	switch field {
	case "winner":
		return compareString(r.StatisticalAnalysis.Winner, op, rhs), r.StatisticalAnalysis.ConfidenceLevel

	case "significant":
		want, err := strconv.ParseBool(rhs)
		if err != nil {
			return false, 0
		}
		got := r.StatisticalAnalysis.IsSignificant
		switch op {
		case "==":
			return got == want, r.StatisticalAnalysis.ConfidenceLevel
		case "!=":
			return got != want, r.StatisticalAnalysis.ConfidenceLevel
		}
		return false, 0

	default:
		v, ok := numericField(field, r)
		if !ok {
			return false, 0
		}
		threshold, err := strconv.ParseFloat(rhs, 64)
		if err != nil {
			return false, 0
		}
		return compareFloat(v, op, threshold), v
	}
}

// numericField maps a field name to its value in the report.
func numericField(field string, r experiment.Report) (float64, bool) {
	a, b := r.VariantA, r.VariantB
	switch field {
	case "confidence":
		return r.StatisticalAnalysis.ConfidenceLevel, true
	case "lift":
		return r.Lift(), true
	case "visitors_a":
		return float64(a.Visitors), true
	case "visitors_b":
		return float64(b.Visitors), true
	case "leads_a":
		return float64(a.Leads), true
	case "leads_b":
		return float64(b.Leads), true
	case "conversion_rate_a":
		return a.ConversionRate, true
	case "conversion_rate_b":
		return b.ConversionRate, true
	case "bounce_rate_a":
		return a.BounceRate, true
	case "bounce_rate_b":
		return b.BounceRate, true
	case "revenue_a":
		return a.Revenue, true
	case "revenue_b":
		return b.Revenue, true
	}
	return 0, false
}

// validCondition reports whether cond parses into a known field and operator.
func validCondition(cond string) bool {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return false
	}
	field, op, rhs := parts[0], parts[1], parts[2]
	switch field {
	case "winner":
		return op == "==" || op == "!="
	case "significant":
		_, err := strconv.ParseBool(rhs)
		return err == nil && (op == "==" || op == "!=")
	}
	if _, ok := numericField(field, experiment.Report{}); !ok {
		return false
	}
	if _, err := strconv.ParseFloat(rhs, 64); err != nil {
		return false
	}
	switch op {
	case ">", ">=", "<", "<=", "==", "!=":
		return true
	}
	return false
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	case "!=":
		return v != threshold
	default:
		return false
	}
}

func compareString(v, op, want string) bool {
	switch op {
	case "==":
		return strings.EqualFold(v, want)
	case "!=":
		return !strings.EqualFold(v, want)
	default:
		return false
	}
}
