package packet

import "fmt"

// Kind identifies a domain event derived from intercepted traffic.
type Kind int

const (
	KindTurnAdvanced Kind = iota + 1
	KindAttackResolved
	KindAbilityUsed
	KindSummonUsed
	KindBossDied
	KindPartyWiped
	KindBattleConcluded
	KindJoinError
)

func (k Kind) String() string {
	switch k {
	case KindTurnAdvanced:
		return "TurnAdvanced"
	case KindAttackResolved:
		return "AttackResolved"
	case KindAbilityUsed:
		return "AbilityUsed"
	case KindSummonUsed:
		return "SummonUsed"
	case KindBossDied:
		return "BossDied"
	case KindPartyWiped:
		return "PartyWiped"
	case KindBattleConcluded:
		return "BattleConcluded"
	case KindJoinError:
		return "JoinError"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// JoinErrorKind classifies the popup returned when joining an encounter fails.
type JoinErrorKind string

const (
	JoinErrorRaidEnded   JoinErrorKind = "raid-ended"
	JoinErrorRaidFull    JoinErrorKind = "raid-full"
	JoinErrorNotEnoughAP JoinErrorKind = "not-enough-ap"
	JoinErrorUnknown     JoinErrorKind = "unknown"
)

// Event is one typed domain event. Turn is the turn number reported by the
// payload, 0 when the payload carried none.
type Event struct {
	Kind      Kind
	Turn      int
	JoinError JoinErrorKind
	URL       string
}

func TurnAdvanced(turn int) Event { return Event{Kind: KindTurnAdvanced, Turn: turn} }

func AttackResolved(turn int) Event { return Event{Kind: KindAttackResolved, Turn: turn} }

func BossDied(turn int) Event { return Event{Kind: KindBossDied, Turn: turn} }

func PartyWiped(turn int) Event { return Event{Kind: KindPartyWiped, Turn: turn} }

func BattleConcluded() Event { return Event{Kind: KindBattleConcluded} }

func JoinError(kind JoinErrorKind) Event { return Event{Kind: KindJoinError, JoinError: kind} }

// IsTerminal reports whether the event ends the encounter on its own.
func (e Event) IsTerminal() bool {
	return e.Kind == KindBossDied || e.Kind == KindPartyWiped || e.Kind == KindBattleConcluded
}
