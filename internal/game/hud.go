package game

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/vietdungdev/raidbot/internal/battle"
	"github.com/vietdungdev/raidbot/internal/config"
)

var (
	digitClass = regexp.MustCompile(`num-info(\d)`)
	nonDigit   = regexp.MustCompile(`\D`)
)

// ParseBattleHUD reads the turn counter and the honor total from the HUD
// markup. The turn is drawn as one element per digit; the digits are joined in
// document order. No digits means turn 0. Honors stay nil when the HUD has no
// honor block.
func ParseBattleHUD(html string, m config.Markers) (battle.SampledState, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return battle.SampledState{}, err
	}

	var st battle.SampledState
	var digits strings.Builder
	doc.Find(m.TurnDigit).Each(func(_ int, s *goquery.Selection) {
		class, _ := s.Attr("class")
		if match := digitClass.FindStringSubmatch(class); match != nil {
			digits.WriteString(match[1])
		}
	})
	if digits.Len() > 0 {
		if turn, err := strconv.Atoi(digits.String()); err == nil {
			st.Turn = turn
		}
	}

	if sel := doc.Find(m.Honors).First(); sel.Length() > 0 {
		if raw := nonDigit.ReplaceAllString(sel.Text(), ""); raw != "" {
			if honors, err := strconv.Atoi(raw); err == nil {
				st.Honors = &honors
			}
		}
	}
	return st, nil
}
