// Package classify assigns a category to collected articles using a
// two-stage procedure: a deterministic keyword rule engine first, and
// an external model second when the rules alone are not specific
// enough. Every result carries a method tag recording which path
// produced it.
package classify

import (
	"context"
	"log"
	"unicode/utf8"
)

// Method tags.
const (
	MethodRule         = "rule"
	MethodModel        = "model"
	MethodHybrid       = "hybrid"
	MethodRuleFallback = "rule-fallback"
	// MethodError marks an article persisted without a usable
	// classification because the attempt was interrupted. Applied by
	// the caller, never returned from Classify.
	MethodError = "error"
)

// maxModelChars bounds the text sent to the model endpoint.
const maxModelChars = 4000

// Result is a finished classification.
type Result struct {
	Category   string
	Confidence float64
	Method     string
	// Scores carries the rule stage's per-category scores, for
	// reporting and debugging.
	Scores map[string]float64
}

// Classifier runs the hybrid decision procedure.
type Classifier struct {
	rules       *RuleEngine
	predictor   Predictor
	modelWeight float64
}

// New builds a classifier. predictor may be nil, in which case every
// non-decisive article falls back to the best rule guess. modelWeight
// is the model's share in the hybrid confidence blend.
func New(rules *RuleEngine, predictor Predictor, modelWeight float64) *Classifier {
	if modelWeight <= 0 || modelWeight > 1 {
		modelWeight = 0.7
	}
	return &Classifier{rules: rules, predictor: predictor, modelWeight: modelWeight}
}

// Classify decides a category for the given article text.
//
// The rule stage runs first. If exactly one category clears the
// specificity threshold the rule verdict is final. Otherwise the model
// is consulted; its label is blended with the rule score for the same
// category when the rules produced candidates. If the model is absent
// or fails, the best rule guess is used, tagged rule-fallback.
//
// A non-nil error is returned only for context cancellation; model
// failures degrade to the fallback path instead.
func (c *Classifier) Classify(ctx context.Context, title, body string) (Result, error) {
	outcome := c.rules.Evaluate(title, body)

	if outcome.Decisive {
		return Result{
			Category:   outcome.Best,
			Confidence: outcome.BestScore,
			Method:     MethodRule,
			Scores:     outcome.Scores,
		}, nil
	}

	if c.predictor == nil {
		return c.fallback(outcome), nil
	}

	text := title + "\n\n" + body
	if len(text) > maxModelChars {
		cut := maxModelChars
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}

	label, score, err := c.predictor.Predict(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		log.Printf("classify: model prediction failed, using rule fallback: %v", err)
		return c.fallback(outcome), nil
	}

	if outcome.Candidates() == 0 {
		return Result{
			Category:   label,
			Confidence: score,
			Method:     MethodModel,
			Scores:     outcome.Scores,
		}, nil
	}

	// Blend the model's confidence with the rule score for the label
	// it chose. A label the rules never scored contributes zero from
	// the rule side, so agreement raises confidence and disagreement
	// lowers it.
	blended := c.modelWeight*score + (1-c.modelWeight)*outcome.Scores[label]
	return Result{
		Category:   label,
		Confidence: blended,
		Method:     MethodHybrid,
		Scores:     outcome.Scores,
	}, nil
}

func (c *Classifier) fallback(outcome Outcome) Result {
	if outcome.Best == "" {
		return Result{
			Category:   DefaultCategory,
			Confidence: 0,
			Method:     MethodRuleFallback,
			Scores:     outcome.Scores,
		}
	}
	return Result{
		Category:   outcome.Best,
		Confidence: outcome.BestScore,
		Method:     MethodRuleFallback,
		Scores:     outcome.Scores,
	}
}
