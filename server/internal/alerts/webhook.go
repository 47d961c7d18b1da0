package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

// Webhook types.
const (
	WebhookSlack = "slack"
	WebhookTeams = "teams"
	WebhookHTTP  = "http"
)

type slackMessage struct {
	Text string `json:"text"`
}

type teamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type teamsSection struct {
	Facts []teamsFact `json:"facts"`
}

// teamsCard is a legacy Office 365 connector MessageCard.
type teamsCard struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	ThemeColor string         `json:"themeColor"`
	Summary    string         `json:"summary"`
	Title      string         `json:"title"`
	Text       string         `json:"text"`
	Sections   []teamsSection `json:"sections"`
}

type httpEnvelope struct {
	Alert Alert `json:"alert"`
}

// payloadFor builds the JSON body for one webhook type, or false for an
// unknown type.
func payloadFor(kind string, a Alert) (any, bool) {
	switch kind {
	case WebhookSlack:
		text := fmt.Sprintf("*%s* %s", severityLabel(a.Severity), a.Message)
		if a.State == StateResolved {
			text = fmt.Sprintf("*[RESOLVED]* %s on %s", a.RuleName, a.Experiment)
		}
		return slackMessage{Text: text}, true
	case WebhookTeams:
		return teamsCard{
			Type:       "MessageCard",
			Context:    "http://schema.org/extensions",
			ThemeColor: severityColor(a.Severity),
			Summary:    a.RuleName,
			Title:      fmt.Sprintf("Experiment alert: %s (%s)", a.RuleName, a.State),
			Text:       a.Message,
			Sections: []teamsSection{{Facts: []teamsFact{
				{Name: "Experiment", Value: a.Experiment},
				{Name: "Severity", Value: strings.ToUpper(a.Severity)},
				{Name: "Value", Value: strconv.FormatFloat(a.Value, 'f', 2, 64)},
			}}},
		}, true
	case WebhookHTTP:
		return httpEnvelope{Alert: a}, true
	}
	return nil, false
}

// deliver sends a to every configured webhook. Failures are logged and never
// reach the caller.
func (e *Engine) deliver(a Alert) {
	e.mu.Lock()
	hooks := e.webhooks
	e.mu.Unlock()

	for _, wh := range hooks {
		url := wh.URL()
		if url == "" {
			continue
		}
		payload, ok := payloadFor(wh.Type, a)
		if !ok {
			slog.Warn("alerts: unknown webhook type, skipping", "type", wh.Type)
			continue
		}
		if err := e.post(url, payload); err != nil {
			slog.Error("alerts: webhook delivery failed",
				"type", wh.Type,
				"rule", a.RuleName,
				"experiment", a.Experiment,
				"err", err,
			)
			continue
		}
		slog.Debug("alerts: webhook delivered", "type", wh.Type, "rule", a.RuleName, "state", a.State)
	}
}

func (e *Engine) post(url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.client.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func severityLabel(s string) string {
	switch s {
	case "critical", "warning":
		return "[" + strings.ToUpper(s) + "]"
	}
	return "[INFO]"
}

var severityColors = map[string]string{
	"critical": "FF4F6A",
	"warning":  "FFAB40",
}

func severityColor(s string) string {
	if c, ok := severityColors[s]; ok {
		return c
	}
	return "00D4FF"
}
