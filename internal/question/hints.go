package question

import "strings"

// MaxHintLevel is the deepest progressive hint.
const MaxHintLevel = 3

// Hints holds up to three progressive hints. Legacy carries the older
// single-hint field, which stands in for level 1 when Level1 is empty.
type Hints struct {
	Level1 *string `json:"hint1,omitempty"`
	Level2 *string `json:"hint2,omitempty"`
	Level3 *string `json:"hint3,omitempty"`
	Legacy *string `json:"hint,omitempty"`
}

// HintAt returns the hint text for level 1..3.
func HintAt(q *Question, level int) (string, bool) {
	if q == nil {
		return "", false
	}
	var p *string
	switch level {
	case 1:
		p = q.Hints.Level1
		if blank(p) {
			p = q.Hints.Legacy
		}
	case 2:
		p = q.Hints.Level2
	case 3:
		p = q.Hints.Level3
	default:
		return "", false
	}
	if blank(p) {
		return "", false
	}
	return *p, true
}

// AvailableHints counts the levels that have text, stopping at the first gap
// since hints unlock strictly in order.
func AvailableHints(q *Question) int {
	n := 0
	for level := 1; level <= MaxHintLevel; level++ {
		if _, ok := HintAt(q, level); !ok {
			break
		}
		n = level
	}
	return n
}

func blank(p *string) bool {
	return p == nil || strings.TrimSpace(*p) == ""
}
