package alerts

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quizfunnel/quizfunnel/server/internal/config"
	"github.com/quizfunnel/quizfunnel/server/internal/experiment"
)

const (
	defaultCooldown   = 15 * time.Minute
	maxHistoryLen     = 200
	recentWindowHours = 1
)

// Alert states.
const (
	StateFiring   = "firing"
	StateResolved = "resolved"
)

// Alert represents a single alert event produced by the rule engine.
type Alert struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	Experiment string     `json:"experiment"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"` // "firing" | "resolved"
}

// Engine evaluates alert rules against experiment reports and delivers
// webhook notifications when rules fire or resolve.
//
// Engine is safe for concurrent use.
type Engine struct {
	mu       sync.Mutex
	rules    []config.AlertRule
	webhooks []config.WebhookConfig
	active   map[string]*Alert    // key: "ruleName:experiment"
	lastFire map[string]time.Time // last fire time per key (for cooldown)
	history  []*Alert             // recently resolved alerts
	client   *http.Client
	now      func() time.Time
	deliverF func(Alert)
}

// New creates an Engine from the server alert configuration.
// An Engine with empty rules is valid; Evaluate becomes a no-op.
func New(cfg config.AlertsConfig) *Engine {
	e := &Engine{
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
	}
	e.deliverF = e.deliver
	e.setRules(cfg)
	return e
}

// Reload replaces rules and webhooks. Firing alerts whose rule no longer
// exists are dropped without a resolve notification.
func (e *Engine) Reload(cfg config.AlertsConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setRules(cfg)
	names := make(map[string]bool, len(e.rules))
	for _, r := range e.rules {
		names[r.Name] = true
	}
	for key, a := range e.active {
		if !names[a.RuleName] {
			delete(e.active, key)
		}
	}
}

// setRules must be called with e.mu held or before e is shared.
func (e *Engine) setRules(cfg config.AlertsConfig) {
	e.rules = e.rules[:0]
	for _, r := range cfg.Rules {
		if !validCondition(r.Condition) {
			slog.Warn("alerts: skipping rule with invalid condition",
				"rule", r.Name, "condition", r.Condition)
			continue
		}
		e.rules = append(e.rules, r)
	}
	e.webhooks = append([]config.WebhookConfig(nil), cfg.Webhooks...)
}

// Evaluate tests all rules that apply to report's experiment.
// Alerts that fire are stored and webhook delivery is triggered asynchronously.
// Alerts that were firing but whose condition is now false are resolved.
func (e *Engine) Evaluate(report experiment.Report) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	for _, rule := range e.rules {
		if rule.Experiment != "" && rule.Experiment != report.TestName {
			continue
		}
		key := rule.Name + ":" + report.TestName
		fires, value := evalCondition(rule.Condition, report)

		if fires {
			if _, firing := e.active[key]; firing {
				continue
			}
			cooldown := rule.Cooldown
			if cooldown <= 0 {
				cooldown = defaultCooldown
			}
			if last, ok := e.lastFire[key]; ok && now.Sub(last) < cooldown {
				continue
			}
			sev := rule.Severity
			if sev == "" {
				sev = "warning"
			}
			a := &Alert{
				ID:         uuid.NewString(),
				RuleName:   rule.Name,
				Experiment: report.TestName,
				Severity:   sev,
				Value:      value,
				Message: fmt.Sprintf("[%s] %s fired on %s: %s (value %.2f)",
					sev, rule.Name, report.TestName, rule.Condition, value),
				FiredAt: now,
				State:   StateFiring,
			}
			e.active[key] = a
			e.lastFire[key] = now

			slog.Warn("alerts: fired",
				"rule", rule.Name,
				"experiment", report.TestName,
				"value", value,
				"severity", sev,
			)
			go e.deliverF(*a)
			continue
		}

		if a, ok := e.active[key]; ok {
			resolved := now
			a.State = StateResolved
			a.ResolvedAt = &resolved
			delete(e.active, key)

			e.history = append(e.history, a)
			if len(e.history) > maxHistoryLen {
				e.history = e.history[len(e.history)-maxHistoryLen:]
			}

			slog.Info("alerts: resolved",
				"rule", rule.Name,
				"experiment", report.TestName,
			)
			go e.deliverF(*a)
		}
	}
}

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour, newest first.
func (e *Engine) Active() []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindowHours * time.Hour)
	out := make([]Alert, 0, len(e.active))

	for _, a := range e.active {
		out = append(out, *a)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].FiredAt.After(out[j].FiredAt)
	})
	return out
}
