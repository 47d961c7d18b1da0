package types

import "time"

// Analytics event names counted by the experiment evaluator.
const (
	EventPageView     = "PageView"
	EventQuizStart    = "QuizStart"
	EventQuizComplete = "QuizComplete"
	EventLead         = "Lead"
	EventPurchase     = "Purchase"
)

// Event is one analytics event as delivered by the capture pipeline.
// JSON field names follow the capture pipeline's wire format.
type Event struct {
	EventName  string     `json:"eventName"`
	Timestamp  time.Time  `json:"timestamp"`
	CustomData CustomData `json:"customData"`
}

// CustomData holds the optional attribution fields. Any of them may be empty
// depending on which instrumentation path produced the event.
type CustomData struct {
	SessionID string `json:"session_id,omitempty"`
	PixelID   string `json:"pixel_id,omitempty"`
	Page      string `json:"page,omitempty"`
	Variant   string `json:"variant,omitempty"`
}
