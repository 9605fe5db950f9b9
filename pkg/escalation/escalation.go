// Package escalation decides how much archived context the next task gets.
//
// The decision is a keyword heuristic over the previous result. It misses
// phrasings it does not know and fires on benign uses of words like
// "previous"; both are accepted.
package escalation

import (
	"strings"

	"gitclauder/pkg/protocol"
)

// DefaultKeywords signal that the agent lacked context. Matching is
// case-insensitive substring search.
var DefaultKeywords = []string{
	"i don't know",
	"i don’t know",
	"not enough information",
	"insufficient information",
	"mentioned earlier",
	"not found",
	"previous",
	"earlier",
	"context",
	"わかりません",
	"分かりません",
	"情報が不足",
	"前回",
	"以前",
	"先ほど",
	"コンテキスト",
	"見つかりません",
}

// Analyzer maps a task outcome to the next priority level.
type Analyzer struct {
	keywords []string
}

// New returns an Analyzer using keywords, or DefaultKeywords when none are
// given. Blank entries are ignored.
func New(keywords ...string) *Analyzer {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	a := &Analyzer{keywords: make([]string, 0, len(keywords))}
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			a.keywords = append(a.keywords, k)
		}
	}
	return a
}

// Keywords returns the normalized keyword set.
func (a *Analyzer) Keywords() []string {
	out := make([]string, len(a.keywords))
	copy(out, a.keywords)
	return out
}

// Decide returns LevelWarm for a failed task or a result that matches any
// keyword, and LevelHot otherwise.
func (a *Analyzer) Decide(resultText string, success bool) protocol.Level {
	if !success {
		return protocol.LevelWarm
	}
	if _, ok := a.Match(resultText); ok {
		return protocol.LevelWarm
	}
	return protocol.LevelHot
}

// Match reports the first keyword found in text.
func (a *Analyzer) Match(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, k := range a.keywords {
		if strings.Contains(lower, k) {
			return k, true
		}
	}
	return "", false
}
