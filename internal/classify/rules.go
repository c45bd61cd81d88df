package classify

import (
	"regexp"
	"strings"
)

// Rule is one category's keyword set.
type Rule struct {
	Category string
	Keywords []string
}

// DefaultRules is the built-in category rule set, used when the config
// defines none.
func DefaultRules() []Rule {
	return []Rule{
		{Category: "earnings", Keywords: []string{
			"earnings", "revenue", "profit", "quarterly", "financial results",
			"reported earnings", "q1", "q2", "q3", "q4", "fiscal", "eps",
		}},
		{Category: "executive", Keywords: []string{
			"ceo", "executive", "appoint", "resign", "leadership", "board of directors",
			"chief executive", "president", "chairman", "cfo", "cto",
		}},
		{Category: "legal", Keywords: []string{
			"lawsuit", "legal", "court", "settlement", "sue", "judge", "regulation",
			"sec", "ftc", "antitrust", "investigation", "fine", "penalty",
		}},
		{Category: "product", Keywords: []string{
			"product", "launch", "release", "unveil", "announce", "new service",
			"update", "version", "feature", "beta", "rollout",
		}},
		{Category: "market", Keywords: []string{
			"market share", "competitor", "industry", "sector performance", "trend",
			"market cap", "stock price", "shares", "trading", "analyst",
		}},
	}
}

// DefaultCategory is assigned when no rule matches at all.
const DefaultCategory = "general"

type compiledRule struct {
	category string
	pattern  *regexp.Regexp
}

// RuleEngine is the deterministic keyword matcher of the rule stage.
// Scoring weights follow title mentions over body mentions; the result
// is reproducible for identical text and rule versions.
type RuleEngine struct {
	rules     []compiledRule
	minScore  float64
	threshold float64
}

// NewRuleEngine compiles the rule set. minScore is the floor below
// which a category is not considered a candidate at all; threshold is
// the specificity bar a single category must clear for the rule stage
// to decide on its own.
func NewRuleEngine(rules []Rule, minScore, threshold float64) *RuleEngine {
	e := &RuleEngine{minScore: minScore, threshold: threshold}
	for _, r := range rules {
		var parts []string
		for _, kw := range r.Keywords {
			kw = strings.TrimSpace(strings.ToLower(kw))
			if kw == "" {
				continue
			}
			parts = append(parts, `\b`+regexp.QuoteMeta(kw)+`\b`)
		}
		if len(parts) == 0 {
			continue
		}
		e.rules = append(e.rules, compiledRule{
			category: r.Category,
			pattern:  regexp.MustCompile(strings.Join(parts, "|")),
		})
	}
	return e
}

// Outcome is the rule stage's verdict over all categories.
type Outcome struct {
	// Scores holds the per-category keyword-density score for every
	// category that scored above zero.
	Scores map[string]float64
	// Best is the highest-scoring category (ties broken by rule
	// order, keeping evaluation deterministic). Empty when nothing
	// matched.
	Best      string
	BestScore float64
	// Decisive is true when exactly one category cleared the
	// specificity threshold.
	Decisive bool
}

// Candidates counts categories that cleared the candidate floor.
func (o Outcome) Candidates() int {
	return len(o.Scores)
}

// Evaluate scores the article text against every rule. Title hits
// weigh 0.4 each, body hits 0.2, capped at 1.0.
func (e *RuleEngine) Evaluate(title, body string) Outcome {
	titleLower := strings.ToLower(title)
	bodyLower := strings.ToLower(body)

	out := Outcome{Scores: make(map[string]float64)}
	decisiveCount := 0

	for _, r := range e.rules {
		titleHits := len(r.pattern.FindAllString(titleLower, -1))
		bodyHits := len(r.pattern.FindAllString(bodyLower, -1))

		score := float64(titleHits)*0.4 + float64(bodyHits)*0.2
		if score > 1.0 {
			score = 1.0
		}
		if score < e.minScore {
			continue
		}

		out.Scores[r.category] = score
		if score > out.BestScore {
			out.Best = r.category
			out.BestScore = score
		}
		if score >= e.threshold {
			decisiveCount++
		}
	}

	out.Decisive = decisiveCount == 1
	return out
}
