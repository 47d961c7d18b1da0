package experiment

import (
	"time"

	"github.com/quizfunnel/quizfunnel/pkg/types"
)

// Trend lengths, in days.
const (
	DefaultTrendDays = 7
	MaxTrendDays     = 90
)

// TrendPoint is one day of an experiment's trend, both arms side by side.
type TrendPoint struct {
	// Day is the UTC date of End.
	Day         string    `json:"day"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	VisitorsA   int       `json:"visitorsA"`
	VisitorsB   int       `json:"visitorsB"`
	LeadsA      int       `json:"leadsA"`
	LeadsB      int       `json:"leadsB"`
	ConversionA float64   `json:"conversionA"`
	ConversionB float64   `json:"conversionB"`
}

// TrendSince is the earliest timestamp DailyTrend reads for days at now.
func TrendSince(now time.Time, days int) time.Time {
	return now.Add(-time.Duration(clampTrendDays(days)) * day)
}

func clampTrendDays(days int) int {
	switch {
	case days <= 0:
		return DefaultTrendDays
	case days > MaxTrendDays:
		return MaxTrendDays
	}
	return days
}

// DailyTrend buckets events into the last days 24h periods ending at now,
// oldest first. Bucket i covers [now-(days-i)*24h, now-(days-i-1)*24h); the
// newest bucket is open-ended so skewed future stamps land in it. days
// outside 1..MaxTrendDays is clamped, with 0 meaning DefaultTrendDays.
//
// Visitors are distinct session ids on PageView events, and conversion is
// leads over visitors in percent.
func DailyTrend(exp Experiment, events []types.Event, now time.Time, days int) []TrendPoint {
	days = clampTrendDays(days)
	first := TrendSince(now, days)

	type tally struct {
		sessions map[string]struct{}
		leads    int
	}
	type bucket struct{ a, b tally }
	buckets := make([]bucket, days)
	for i := range buckets {
		buckets[i] = bucket{
			a: tally{sessions: make(map[string]struct{})},
			b: tally{sessions: make(map[string]struct{})},
		}
	}

	for _, ev := range events {
		if ev.Timestamp.Before(first) {
			continue
		}
		i := int(ev.Timestamp.Sub(first) / day)
		if i >= days {
			i = days - 1
		}
		for _, side := range []struct {
			arm Arm
			acc *tally
		}{
			{exp.VariantA, &buckets[i].a},
			{exp.VariantB, &buckets[i].b},
		} {
			if !Belongs(ev, side.arm) {
				continue
			}
			switch ev.EventName {
			case types.EventPageView:
				if id := ev.CustomData.SessionID; id != "" {
					side.acc.sessions[id] = struct{}{}
				}
			case types.EventLead:
				side.acc.leads++
			}
		}
	}

	out := make([]TrendPoint, days)
	for i, b := range buckets {
		start := first.Add(time.Duration(i) * day)
		end := start.Add(day)
		out[i] = TrendPoint{
			Day:         end.UTC().Format("2006-01-02"),
			Start:       start.UTC(),
			End:         end.UTC(),
			VisitorsA:   len(b.a.sessions),
			VisitorsB:   len(b.b.sessions),
			LeadsA:      b.a.leads,
			LeadsB:      b.b.leads,
			ConversionA: percent(b.a.leads, len(b.a.sessions)),
			ConversionB: percent(b.b.leads, len(b.b.sessions)),
		}
	}
	return out
}

func percent(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d) * 100
}
