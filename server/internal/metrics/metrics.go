package metrics

import (
	"fmt"
	"io"
	"sort"
	"sync/atomic"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/quizfunnel/quizfunnel/server/internal/experiment"
)

const namespace = "quizfunnel"

// Label names.
const (
	labelExperiment = "experiment"
	labelVariant    = "variant"
)

// Counters are process-lifetime totals updated by the API handlers.
type Counters struct {
	EventsIngested atomic.Uint64
	EventsRejected atomic.Uint64
	ResultsSaved   atomic.Uint64
	RateLimited    atomic.Uint64
}

// ContentType is the Content-Type of Write's output.
var ContentType = string(expfmt.NewFormat(expfmt.TypeTextPlain))

// armGauge reads one per-arm value from VariantMetrics.
type armGauge struct {
	name string
	help string
	get  func(experiment.VariantMetrics) float64
}

var armGauges = []armGauge{
	{"experiment_visitors", "Unique visitors attributed to the arm.", func(m experiment.VariantMetrics) float64 { return float64(m.Visitors) }},
	{"experiment_quiz_starts", "QuizStart events attributed to the arm.", func(m experiment.VariantMetrics) float64 { return float64(m.QuizStarts) }},
	{"experiment_quiz_completions", "QuizComplete events attributed to the arm.", func(m experiment.VariantMetrics) float64 { return float64(m.QuizCompletions) }},
	{"experiment_leads", "Lead events attributed to the arm.", func(m experiment.VariantMetrics) float64 { return float64(m.Leads) }},
	{"experiment_sales", "Purchase events attributed to the arm.", func(m experiment.VariantMetrics) float64 { return float64(m.Sales) }},
	{"experiment_conversion_rate_percent", "Leads per visitor, in percent.", func(m experiment.VariantMetrics) float64 { return m.ConversionRate }},
	{"experiment_bounce_rate_percent", "Visitors that never started the quiz, in percent.", func(m experiment.VariantMetrics) float64 { return m.BounceRate }},
	{"experiment_revenue", "Sales times unit price.", func(m experiment.VariantMetrics) float64 { return m.Revenue }},
}

// Families builds metric families for reports and counters, sorted by name.
// counters may be nil.
func Families(reports []experiment.Report, counters *Counters) []*dto.MetricFamily {
	sorted := append([]experiment.Report(nil), reports...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].TestName < sorted[j].TestName })

	var out []*dto.MetricFamily
	for _, g := range armGauges {
		mf := family(g.name, g.help, dto.MetricType_GAUGE)
		for _, r := range sorted {
			for _, m := range []experiment.VariantMetrics{r.VariantA, r.VariantB} {
				mf.Metric = append(mf.Metric, gauge(g.get(m),
					labelPair(labelExperiment, r.TestName), labelPair(labelVariant, m.Variant)))
			}
		}
		out = append(out, mf)
	}

	confidence := family("experiment_confidence_percent", "Coarse significance confidence.", dto.MetricType_GAUGE)
	significant := family("experiment_significant", "1 when the experiment reached significance.", dto.MetricType_GAUGE)
	for _, r := range sorted {
		l := labelPair(labelExperiment, r.TestName)
		confidence.Metric = append(confidence.Metric, gauge(r.StatisticalAnalysis.ConfidenceLevel, l))
		sig := 0.0
		if r.StatisticalAnalysis.IsSignificant {
			sig = 1
		}
		significant.Metric = append(significant.Metric, gauge(sig, l))
	}
	out = append(out, confidence, significant)

	if counters != nil {
		out = append(out,
			counterFamily("events_ingested_total", "Events accepted by the ingest endpoint.", counters.EventsIngested.Load()),
			counterFamily("events_rejected_total", "Events rejected by validation.", counters.EventsRejected.Load()),
			counterFamily("ingest_rate_limited_total", "Ingest requests refused by the rate limiter.", counters.RateLimited.Load()),
			counterFamily("quiz_results_saved_total", "Quiz results persisted.", counters.ResultsSaved.Load()),
		)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].GetName() < out[j].GetName() })
	return out
}

// Write encodes families to w in the text exposition format.
func Write(w io.Writer, families []*dto.MetricFamily) error {
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if len(mf.Metric) == 0 {
			continue
		}
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("metrics: encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

func family(name, help string, typ dto.MetricType) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: ptr(namespace + "_" + name),
		Help: ptr(help),
		Type: typ.Enum(),
	}
}

func counterFamily(name, help string, v uint64) *dto.MetricFamily {
	mf := family(name, help, dto.MetricType_COUNTER)
	mf.Metric = []*dto.Metric{{Counter: &dto.Counter{Value: ptr(float64(v))}}}
	return mf
}

func gauge(v float64, labels ...*dto.LabelPair) *dto.Metric {
	return &dto.Metric{Label: labels, Gauge: &dto.Gauge{Value: ptr(v)}}
}

func labelPair(name, value string) *dto.LabelPair {
	return &dto.LabelPair{Name: ptr(name), Value: ptr(value)}
}

func ptr[T any](v T) *T { return &v }
