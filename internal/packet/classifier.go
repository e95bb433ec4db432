package packet

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

type endpoint int

const (
	endpointStart endpoint = iota + 1
	endpointAttack
	endpointAbility
	endpointSummon
	endpointResult
	endpointJoin
)

var endpointPatterns = []struct {
	pattern  *regexp.Regexp
	endpoint endpoint
}{
	{regexp.MustCompile(`/rest/(multi)?raid/start\.json`), endpointStart},
	{regexp.MustCompile(`/rest/(multi)?raid/normal_attack_result\.json`), endpointAttack},
	{regexp.MustCompile(`/rest/(multi)?raid/ability_result\.json`), endpointAbility},
	{regexp.MustCompile(`/rest/(multi)?raid/summon_result\.json`), endpointSummon},
	{regexp.MustCompile(`/result(multi)?/(content/index|data)`), endpointResult},
	{regexp.MustCompile(`/quest/(battle_key_check|check_multi_start)`), endpointJoin},
}

func matchEndpoint(url string) (endpoint, bool) {
	for _, p := range endpointPatterns {
		if p.pattern.MatchString(url) {
			return p.endpoint, true
		}
	}
	return 0, false
}

// Recognized reports whether url is an endpoint the classifier decodes. The
// network source uses it to skip fetching bodies nobody reads.
func Recognized(url string) bool {
	_, ok := matchEndpoint(url)
	return ok
}

// Classify turns one raw message into at most one domain event. Messages
// that match no known endpoint, or whose payload cannot be decoded, are
// ignored.
func Classify(m RawMessage) (Event, bool) {
	ep, ok := matchEndpoint(m.URL)
	if !ok {
		return Event{}, false
	}

	// The result page is HTML/JSON depending on the client build, its arrival
	// alone is the signal.
	if ep == endpointResult {
		e := BattleConcluded()
		e.URL = m.URL
		return e, true
	}

	if !gjson.ValidBytes(m.Payload) {
		return Event{}, false
	}
	payload := gjson.ParseBytes(m.Payload)

	var e Event
	switch ep {
	case endpointStart:
		turn := turnOf(payload)
		if turn <= 0 {
			return Event{}, false
		}
		e = TurnAdvanced(turn)
	case endpointAttack:
		e = classifyCombatResult(payload, KindAttackResolved)
	case endpointAbility:
		e = classifyCombatResult(payload, KindAbilityUsed)
	case endpointSummon:
		e = classifyCombatResult(payload, KindSummonUsed)
	case endpointJoin:
		if e, ok = classifyJoin(payload); !ok {
			return Event{}, false
		}
	}
	e.URL = m.URL
	return e, true
}

// classifyCombatResult scans the recorded commands in order. The first "win"
// or "lose" decides the event; anything after it in the same payload is an
// animation artifact and is ignored.
func classifyCombatResult(payload gjson.Result, fallback Kind) Event {
	e := Event{Kind: fallback, Turn: turnOf(payload)}
	payload.Get("scenario").ForEach(func(_, cmd gjson.Result) bool {
		switch cmd.Get("cmd").String() {
		case "win":
			e.Kind = KindBossDied
			return false
		case "lose":
			e.Kind = KindPartyWiped
			return false
		}
		return true
	})
	return e
}

func turnOf(payload gjson.Result) int {
	if t := payload.Get("status.turn"); t.Exists() {
		return int(t.Int())
	}
	return int(payload.Get("turn").Int())
}

var apWord = regexp.MustCompile(`\bap\b`)

func classifyJoin(payload gjson.Result) (Event, bool) {
	popup := payload.Get("popup")
	if !popup.Exists() {
		return Event{}, false
	}
	body := strings.ToLower(popup.Get("body").String())
	switch {
	case body == "":
		return JoinError(JoinErrorUnknown), true
	case strings.Contains(body, "already ended"), strings.Contains(body, "has ended"):
		return JoinError(JoinErrorRaidEnded), true
	case strings.Contains(body, "full"):
		return JoinError(JoinErrorRaidFull), true
	case apWord.MatchString(body), strings.Contains(body, "not enough"):
		return JoinError(JoinErrorNotEnoughAP), true
	default:
		return JoinError(JoinErrorUnknown), true
	}
}

// Classifier connects a raw message Source to a session Bus.
type Classifier struct {
	logger *slog.Logger
}

func NewClassifier(logger *slog.Logger) *Classifier {
	return &Classifier{logger: logger}
}

// Attach starts classifying every message delivered by src onto bus. The
// returned detach function removes the subscription.
func (c *Classifier) Attach(src Source, bus *Bus) (detach func()) {
	return src.Subscribe(func(m RawMessage) {
		e, ok := Classify(m)
		if !ok {
			return
		}
		if c.logger != nil {
			level := slog.LevelDebug
			if e.IsTerminal() {
				level = slog.LevelInfo
			}
			c.logger.Log(context.Background(), level, "Network event", slog.String("kind", e.Kind.String()), slog.Int("turn", e.Turn))
		}
		bus.Publish(e)
	})
}
