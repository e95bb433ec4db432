package battle

import (
	"log/slog"
	"sync"
	"time"

	"github.com/vietdungdev/raidbot/internal/health"
	"github.com/vietdungdev/raidbot/internal/packet"
)

// ProgressRecord is the state shared between the classifier callback and the
// loop. Terminal flags are set once and never cleared within a session.
type ProgressRecord struct {
	mu sync.Mutex

	networkTurn          int
	bossDied             bool
	partyWiped           bool
	battleConcluded      bool
	attackResultReceived bool
	sawActivity          bool
	first                packet.Kind

	activity *health.StallMonitor
	now      func() time.Time
}

// ProgressSnapshot is a consistent copy read at the top of a tick.
type ProgressSnapshot struct {
	NetworkTurn     int
	BossDied        bool
	PartyWiped      bool
	BattleConcluded bool
	LastActivity    time.Time
	SawActivity     bool
	// FirstTerminal is whichever of BossDied and PartyWiped fired first.
	FirstTerminal packet.Kind
}

func NewProgressRecord(logger *slog.Logger, now func() time.Time, stallThreshold time.Duration) *ProgressRecord {
	p := &ProgressRecord{
		activity: health.NewStallMonitor(logger, stallThreshold),
		now:      now,
	}
	p.activity.Anchor(now())
	return p
}

// Apply is the bus handler. Applying the same event twice is harmless.
func (p *ProgressRecord) Apply(e packet.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e.Kind != packet.KindJoinError {
		p.activity.Touch(p.now())
		p.sawActivity = true
	}
	if e.Turn > p.networkTurn {
		p.networkTurn = e.Turn
	}

	switch e.Kind {
	case packet.KindAttackResolved:
		p.attackResultReceived = true
	case packet.KindBossDied:
		p.bossDied = true
		if p.first == 0 {
			p.first = packet.KindBossDied
		}
	case packet.KindPartyWiped:
		p.partyWiped = true
		if p.first == 0 {
			p.first = packet.KindPartyWiped
		}
	case packet.KindBattleConcluded:
		p.battleConcluded = true
	}
}

func (p *ProgressRecord) Snapshot() ProgressSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ProgressSnapshot{
		NetworkTurn:     p.networkTurn,
		BossDied:        p.bossDied,
		PartyWiped:      p.partyWiped,
		BattleConcluded: p.battleConcluded,
		LastActivity:    p.activity.LastActivity(),
		SawActivity:     p.sawActivity,
		FirstTerminal:   p.first,
	}
}

// ConsumeAttackResult reports whether an attack result arrived since the last
// call and resets the flag.
func (p *ProgressRecord) ConsumeAttackResult() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := p.attackResultReceived
	p.attackResultReceived = false
	return v
}

// Touch moves the activity clock to t, used to anchor the stall window at
// the moment the hands-off control is clicked and after a stall reload.
func (p *ProgressRecord) Touch(t time.Time) {
	p.activity.Anchor(t)
}

// Stalled reports whether the hands-off activity window was exceeded at now.
func (p *ProgressRecord) Stalled(now time.Time) bool {
	return p.activity.Stalled(now)
}

// Ended reports whether any terminal flag is set.
func (s ProgressSnapshot) Ended() bool {
	return s.BossDied || s.PartyWiped || s.BattleConcluded
}

// Outcome of a terminal network signal; victory vs defeat is decided by
// whichever signal fired first.
func (s ProgressSnapshot) TerminalOutcome() Outcome {
	switch s.FirstTerminal {
	case packet.KindBossDied:
		return OutcomeVictory
	case packet.KindPartyWiped:
		return OutcomeDefeat
	}
	if s.BossDied {
		return OutcomeVictory
	}
	if s.PartyWiped {
		return OutcomeDefeat
	}
	return OutcomeVictory
}
