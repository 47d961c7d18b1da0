package metrics

import (
	"bytes"
	"strings"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/quizfunnel/quizfunnel/server/internal/experiment"
)

func sampleReport(name string, significant bool) experiment.Report {
	return experiment.Report{
		TestName: name,
		VariantA: experiment.VariantMetrics{Variant: "A", Visitors: 120, Leads: 12, ConversionRate: 10, Revenue: 79.8, Sales: 2},
		VariantB: experiment.VariantMetrics{Variant: "B", Visitors: 100, Leads: 30, ConversionRate: 30, BounceRate: 20},
		StatisticalAnalysis: experiment.StatisticalAnalysis{
			ConfidenceLevel: 95,
			IsSignificant:   significant,
			Winner:          "B",
		},
	}
}

func parse(t *testing.T, b []byte) map[string]*dto.MetricFamily {
	t.Helper()
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("parse exposition: %v\n%s", err, b)
	}
	return mfs
}

func value(mf *dto.MetricFamily, labels map[string]string) (float64, bool) {
	if mf == nil {
		return 0, false
	}
next:
	for _, m := range mf.GetMetric() {
		for k, v := range labels {
			found := false
			for _, lp := range m.GetLabel() {
				if lp.GetName() == k && lp.GetValue() == v {
					found = true
				}
			}
			if !found {
				continue next
			}
		}
		switch {
		case m.Gauge != nil:
			return m.Gauge.GetValue(), true
		case m.Counter != nil:
			return m.Counter.GetValue(), true
		}
	}
	return 0, false
}

func TestWrite_RoundTrip(t *testing.T) {
	var c Counters
	c.EventsIngested.Add(42)
	c.ResultsSaved.Add(3)

	var buf bytes.Buffer
	fams := Families([]experiment.Report{sampleReport("zeta", false), sampleReport("alpha", true)}, &c)
	if err := Write(&buf, fams); err != nil {
		t.Fatalf("Write: %v", err)
	}
	mfs := parse(t, buf.Bytes())

	tests := []struct {
		metric string
		labels map[string]string
		want   float64
	}{
		{"quizfunnel_experiment_visitors", map[string]string{"experiment": "alpha", "variant": "A"}, 120},
		{"quizfunnel_experiment_visitors", map[string]string{"experiment": "zeta", "variant": "B"}, 100},
		{"quizfunnel_experiment_conversion_rate_percent", map[string]string{"experiment": "alpha", "variant": "B"}, 30},
		{"quizfunnel_experiment_revenue", map[string]string{"experiment": "alpha", "variant": "A"}, 79.8},
		{"quizfunnel_experiment_bounce_rate_percent", map[string]string{"experiment": "zeta", "variant": "B"}, 20},
		{"quizfunnel_experiment_confidence_percent", map[string]string{"experiment": "zeta"}, 95},
		{"quizfunnel_experiment_significant", map[string]string{"experiment": "alpha"}, 1},
		{"quizfunnel_experiment_significant", map[string]string{"experiment": "zeta"}, 0},
		{"quizfunnel_events_ingested_total", nil, 42},
		{"quizfunnel_quiz_results_saved_total", nil, 3},
		{"quizfunnel_events_rejected_total", nil, 0},
	}
	for _, tt := range tests {
		got, ok := value(mfs[tt.metric], tt.labels)
		if !ok {
			t.Errorf("%s%v: not found", tt.metric, tt.labels)
			continue
		}
		if got != tt.want {
			t.Errorf("%s%v = %v, want %v", tt.metric, tt.labels, got, tt.want)
		}
	}
	if typ := mfs["quizfunnel_events_ingested_total"].GetType(); typ != dto.MetricType_COUNTER {
		t.Errorf("events_ingested_total type = %v, want COUNTER", typ)
	}
}

func TestWrite_NoReportsSkipsEmptyFamilies(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, Families(nil, nil)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected empty exposition, got:\n%s", buf.String())
	}
}

func TestFamilies_SortedByName(t *testing.T) {
	fams := Families([]experiment.Report{sampleReport("x", false)}, &Counters{})
	for i := 1; i < len(fams); i++ {
		if fams[i-1].GetName() > fams[i].GetName() {
			t.Fatalf("families not sorted: %s before %s", fams[i-1].GetName(), fams[i].GetName())
		}
	}
	for _, f := range fams {
		if !strings.HasPrefix(f.GetName(), "quizfunnel_") {
			t.Errorf("family %s lacks namespace", f.GetName())
		}
	}
}

func TestContentType(t *testing.T) {
	if !strings.HasPrefix(ContentType, "text/plain") {
		t.Errorf("ContentType = %q", ContentType)
	}
}
