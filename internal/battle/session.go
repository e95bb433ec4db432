package battle

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/vietdungdev/raidbot/internal/config"
)

var (
	// ErrBattleLoadFailure means the engagement control never appeared and
	// neither the document nor the network showed the encounter state.
	ErrBattleLoadFailure = errors.New("battle failed to load")
	// ErrBattleTimeout means the session wall-clock budget elapsed.
	ErrBattleTimeout = errors.New("battle timed out")
	// ErrSessionInvalidated means the client was redirected to a login or
	// landing surface. The engine reports it through Result.SessionInvalidated;
	// the runner turns it into this error.
	ErrSessionInvalidated = errors.New("game session invalidated")
)

// Mode selects the engagement strategy.
type Mode int

const (
	ModeHandsOff Mode = iota
	ModePerTurn
)

func (m Mode) String() string {
	switch m {
	case ModeHandsOff:
		return config.ModeHandsOff
	case ModePerTurn:
		return config.ModePerTurn
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case config.ModeHandsOff, "":
		return ModeHandsOff, nil
	case config.ModePerTurn:
		return ModePerTurn, nil
	default:
		return ModeHandsOff, fmt.Errorf("unknown battle mode %q", s)
	}
}

// Outcome is the terminal state reached by a session.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeVictory
	OutcomeDefeat
	OutcomeTimeout
	OutcomeAborted
	OutcomeGoalReached
	// OutcomeEnded means the encounter was closed elsewhere (empty result,
	// failed rematch or an "already ended" popup).
	OutcomeEnded
)

func (o Outcome) String() string {
	switch o {
	case OutcomeVictory:
		return "victory"
	case OutcomeDefeat:
		return "defeat"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeAborted:
		return "aborted"
	case OutcomeGoalReached:
		return "goal reached"
	case OutcomeEnded:
		return "ended"
	default:
		return "unknown"
	}
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Result is the outcome of one session.
type Result struct {
	Outcome            Outcome `json:"outcome"`
	DurationSeconds    float64 `json:"durationSeconds"`
	Turns              int     `json:"turns"`
	Honors             int     `json:"honors"`
	HonorReached       bool    `json:"honorReached"`
	RaidEnded          bool    `json:"raidEnded,omitempty"`
	SessionInvalidated bool    `json:"sessionInvalidated,omitempty"`
}

// Session is one encounter attempt. It is owned by the caller, created per
// encounter and discarded once Engine.Run returns.
type Session struct {
	ID        string
	Mode      Mode
	StartTime time.Time
	MaxWait   time.Duration

	stopped atomic.Bool
}

func NewSession(mode Mode, maxWait time.Duration) *Session {
	return &Session{
		ID:      uuid.NewString(),
		Mode:    mode,
		MaxWait: maxWait,
	}
}

// Stop requests cooperative cancellation. The loop polls the flag once per
// tick; in-flight document operations complete first.
func (s *Session) Stop() {
	s.stopped.Store(true)
}

func (s *Session) Stopped() bool {
	return s.stopped.Load()
}

func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*100) / 100
}
