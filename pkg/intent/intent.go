// Package intent turns free-form player text into a structured action.
//
// Parsing is an ordered list of independent classifiers; the first one that
// recognises the text wins. The result carries a fixed per-phrasing
// confidence so callers can decide whether to act on it directly.
package intent

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/DoyleJ11/gameroom/pkg/domain"
	"golang.org/x/text/cases"
)

// Confidence weights per phrasing. Only their order relative to the routing
// threshold matters.
const (
	ConfidencePass       = 0.95
	ConfidenceLoot       = 0.85
	ConfidenceOpen       = 0.85
	ConfidenceAttack     = 0.8
	ConfidenceSearch     = 0.8
	ConfidenceMoveCoord  = 0.8
	ConfidenceMoveTarget = 0.7
	ConfidenceHold       = 0.7
)

// DirectThreshold is the confidence at which a parsed action is submitted
// without asking the player to confirm it.
const DirectThreshold = 0.8

type classifier func(text string) (domain.Action, float64, bool)

// classifiers run in priority order.
var classifiers = []classifier{
	classifyPass,
	classifyAttack,
	classifyLoot,
	classifyOpen,
	classifySearch,
	classifyMove,
	classifyHold,
}

// Parse classifies text on behalf of actorID (which may be empty). ok is
// false when no phrasing matched; that is not an error.
func Parse(text, actorID string) (domain.ParsedAction, bool) {
	norm := normalize(text)
	if norm == "" {
		return domain.ParsedAction{}, false
	}
	for _, classify := range classifiers {
		if action, confidence, ok := classify(norm); ok {
			return domain.ParsedAction{Action: action, ActorID: actorID, Confidence: confidence}, true
		}
	}
	return domain.ParsedAction{}, false
}

var (
	passPattern   = regexp.MustCompile(`^(?:i(?:'ll|\s+will|\s+shall)?\s+)?(?:just\s+)?(?:pass|skip|wait|end\s+(?:my\s+)?turn|do\s+nothing)(?:\s+(?:this|my|the)\s+turn)?$`)
	attackPattern = regexp.MustCompile(`\b(?:attack|strike|hit|stab|slash|shoot|punch|swing\s+at|fire\s+at)\b\s*(?:at\s+|on\s+)?(.*)$`)
	lootPattern   = regexp.MustCompile(`\b(?:loot|take|grab|pick\s+up|steal|collect)\b\s*(.*)$`)
	openPattern   = regexp.MustCompile(`\b(?:open|unlock)\b\s*(.*)$`)
	searchPattern = regexp.MustCompile(`\b(?:search|examine|inspect|investigate|look(?:\s+(?:at|around|in|inside|into|under|for))?)\b\s*(.*)$`)
	movePattern   = regexp.MustCompile(`\b(?:move|go|walk|run|step|head|dash|approach|advance)\b\s*(?:(?:over\s+)?to(?:wards?)?\s+|into\s+)?(.*)$`)
	coordPattern  = regexp.MustCompile(`\bto\s*\(?\s*(-?\d+)\s*,\s*(-?\d+)\s*\)?`)
	holdPattern   = regexp.MustCompile(`\b(?:hold|delay|ready|wait\s+(?:until|till|for))\b`)
	triggerRegexp = regexp.MustCompile(`\b(?:until|till|when|after|if|for)\s+(.+)$`)
	endOfRound    = regexp.MustCompile(`^(?:the\s+)?end\s+of\s+(?:the\s+)?round$`)
)

func classifyPass(text string) (domain.Action, float64, bool) {
	if !passPattern.MatchString(text) {
		return domain.Action{}, 0, false
	}
	return domain.Action{Kind: domain.ActionPass}, ConfidencePass, true
}

func classifyAttack(text string) (domain.Action, float64, bool) {
	return targeted(attackPattern, domain.ActionAttack, ConfidenceAttack, text)
}

func classifyLoot(text string) (domain.Action, float64, bool) {
	return targeted(lootPattern, domain.ActionLoot, ConfidenceLoot, text)
}

func classifyOpen(text string) (domain.Action, float64, bool) {
	return targeted(openPattern, domain.ActionOpen, ConfidenceOpen, text)
}

func classifySearch(text string) (domain.Action, float64, bool) {
	return targeted(searchPattern, domain.ActionSearch, ConfidenceSearch, text)
}

func classifyMove(text string) (domain.Action, float64, bool) {
	m := movePattern.FindStringSubmatch(text)
	if m == nil {
		return domain.Action{}, 0, false
	}
	// An explicit coordinate beats a named destination.
	if c := coordPattern.FindStringSubmatch(m[0]); c != nil {
		x, errX := strconv.Atoi(c[1])
		y, errY := strconv.Atoi(c[2])
		if errX == nil && errY == nil {
			return domain.Action{Kind: domain.ActionMove, Destination: &domain.Coord{X: x, Y: y}}, ConfidenceMoveCoord, true
		}
	}
	return domain.Action{Kind: domain.ActionMove, Target: cleanTarget(m[1])}, ConfidenceMoveTarget, true
}

func classifyHold(text string) (domain.Action, float64, bool) {
	loc := holdPattern.FindStringIndex(text)
	if loc == nil {
		return domain.Action{}, 0, false
	}
	action := domain.Action{Kind: domain.ActionHold, HoldType: domain.HoldEnd}
	if m := triggerRegexp.FindStringSubmatch(text[loc[0]:]); m != nil {
		trigger := strings.TrimSpace(m[1])
		if !endOfRound.MatchString(trigger) {
			action.HoldType = domain.HoldUntil
			action.Trigger = trigger
		}
	}
	return action, ConfidenceHold, true
}

func targeted(p *regexp.Regexp, kind domain.ActionKind, confidence float64, text string) (domain.Action, float64, bool) {
	m := p.FindStringSubmatch(text)
	if m == nil {
		return domain.Action{}, 0, false
	}
	return domain.Action{Kind: kind, Target: cleanTarget(m[1])}, confidence, true
}

var leadingArticles = []string{"the ", "a ", "an ", "that ", "this ", "my "}

func cleanTarget(s string) string {
	s = strings.TrimSpace(s)
	for _, sep := range []string{" with ", " using "} {
		if i := strings.Index(s, sep); i >= 0 {
			s = s[:i]
		}
	}
	for _, art := range leadingArticles {
		if strings.HasPrefix(s, art) {
			s = strings.TrimPrefix(s, art)
			break
		}
	}
	return strings.TrimSpace(s)
}

func normalize(text string) string {
	text = cases.Fold().String(text)
	text = strings.NewReplacer("’", "'", "‘", "'").Replace(text)
	text = strings.Join(strings.Fields(text), " ")
	return strings.TrimRight(text, ".!?;: ")
}
