package event

import (
	"time"
)

type Event interface {
	Message() string
	// Source names the session or component that raised the event.
	Source() string
	OccurredAt() time.Time
	// Image is an optional PNG capture of the page.
	Image() []byte
}

type BaseEvent struct {
	message    string
	source     string
	occurredAt time.Time
	image      []byte
}

func (b BaseEvent) Message() string       { return b.message }
func (b BaseEvent) Source() string        { return b.source }
func (b BaseEvent) OccurredAt() time.Time { return b.occurredAt }
func (b BaseEvent) Image() []byte         { return b.image }

func Text(source, message string) BaseEvent {
	return BaseEvent{message: message, source: source, occurredAt: time.Now()}
}

func WithScreenshot(source, message string, png []byte) BaseEvent {
	return BaseEvent{message: message, source: source, occurredAt: time.Now(), image: png}
}

type FinishReason string

const (
	FinishedOK      FinishReason = "ok"
	FinishedDefeat  FinishReason = "defeat"
	FinishedGoal    FinishReason = "goal"
	FinishedEnded   FinishReason = "ended"
	FinishedAborted FinishReason = "aborted"
	FinishedTimeout FinishReason = "timeout"
	FinishedError   FinishReason = "error"
)

type BattleStartedEvent struct {
	BaseEvent
	SessionID string
	Mode      string
}

func BattleStarted(be BaseEvent, sessionID, mode string) BattleStartedEvent {
	return BattleStartedEvent{BaseEvent: be, SessionID: sessionID, Mode: mode}
}

type BattleFinishedEvent struct {
	BaseEvent
	SessionID string
	Reason    FinishReason
	Outcome   string
	Turns     int
	Honors    int
	Seconds   float64
}

func BattleFinished(be BaseEvent, sessionID string, reason FinishReason, outcome string, turns, honors int, seconds float64) BattleFinishedEvent {
	return BattleFinishedEvent{
		BaseEvent: be,
		SessionID: sessionID,
		Reason:    reason,
		Outcome:   outcome,
		Turns:     turns,
		Honors:    honors,
		Seconds:   seconds,
	}
}

// AutomationHaltedEvent is raised once the runner stops for good and needs an
// operator.
type AutomationHaltedEvent struct {
	BaseEvent
	Reason string
}

func AutomationHalted(be BaseEvent, reason string) AutomationHaltedEvent {
	return AutomationHaltedEvent{BaseEvent: be, Reason: reason}
}

type NgrokTunnelEvent struct {
	BaseEvent
	URL string
}

func NgrokTunnel(url string) NgrokTunnelEvent {
	return NgrokTunnelEvent{BaseEvent: Text("raidbot", "Status page available at "+url), URL: url}
}
