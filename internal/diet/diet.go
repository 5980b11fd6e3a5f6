// Package diet builds a feeding plan from an analysis.
//
// Plans are assembled additively: every triggered rule appends its strings
// and nothing is merged, so two conditions recommending the same food list it
// twice. Deduplication exists only as the explicit WithDedupe option.
package diet

import (
	"go.uber.org/zap"

	"github.com/gmsas95/vetscan/internal/analyzer"
	"github.com/gmsas95/vetscan/internal/rules"
)

// Plan is the diet recommendation payload.
type Plan struct {
	GeneralRecommendations []string              `json:"general_recommendations"`
	FoodSuggestions        []string              `json:"food_suggestions"`
	FoodsToAvoid           []string              `json:"foods_to_avoid"`
	Supplements            []string              `json:"supplements"`
	FeedingSchedule        rules.FeedingSchedule `json:"feeding_schedule"`
	HydrationTips          []string              `json:"hydration_tips"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithDedupe drops repeated strings from each list after assembly, keeping
// the first occurrence.
func WithDedupe() Option {
	return func(e *Engine) {
		e.dedupe = true
	}
}

// Engine applies the diet tables of a rule set.
type Engine struct {
	rules  *rules.RuleSet
	logger *zap.Logger
	dedupe bool
}

// NewEngine creates an engine. A nil rule set selects rules.Default().
func NewEngine(rs *rules.RuleSet, logger *zap.Logger, opts ...Option) *Engine {
	if rs == nil {
		rs = rules.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{rules: rs, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Recommend never fails. A nil analysis yields the baseline plan with the
// fallback food suggestions.
func (e *Engine) Recommend(a *analyzer.Analysis) *Plan {
	d := e.rules.Diet
	plan := &Plan{
		GeneralRecommendations: clone(d.Baseline.GeneralRecommendations),
		FoodSuggestions:        []string{},
		FoodsToAvoid:           clone(d.Baseline.FoodsToAvoid),
		Supplements:            []string{},
		FeedingSchedule:        d.Baseline.FeedingSchedule,
		HydrationTips:          clone(d.Baseline.HydrationTips),
	}

	if a != nil {
		for _, rule := range d.Conditions {
			if !a.HasCondition(rule.Condition) {
				continue
			}
			plan.FoodSuggestions = append(plan.FoodSuggestions, rule.FoodSuggestions...)
			plan.Supplements = append(plan.Supplements, rule.Supplements...)
			plan.GeneralRecommendations = append(plan.GeneralRecommendations, rule.GeneralRecommendations...)
		}
		for _, rule := range d.Medications {
			if !a.HasCategory(rule.Category) {
				continue
			}
			plan.Supplements = append(plan.Supplements, rule.Supplements...)
			plan.GeneralRecommendations = append(plan.GeneralRecommendations, rule.GeneralRecommendations...)
		}
	}

	if len(plan.FoodSuggestions) == 0 {
		plan.FoodSuggestions = append(plan.FoodSuggestions, d.FallbackFoodSuggestions...)
	}

	if e.dedupe {
		plan.GeneralRecommendations = dedupe(plan.GeneralRecommendations)
		plan.FoodSuggestions = dedupe(plan.FoodSuggestions)
		plan.FoodsToAvoid = dedupe(plan.FoodsToAvoid)
		plan.Supplements = dedupe(plan.Supplements)
		plan.HydrationTips = dedupe(plan.HydrationTips)
	}

	e.logger.Info("Diet recommendations generated",
		zap.Int("food_suggestions", len(plan.FoodSuggestions)),
		zap.Int("supplements", len(plan.Supplements)),
		zap.Bool("dedupe", e.dedupe),
	)
	return plan
}

func clone(s []string) []string {
	return append([]string{}, s...)
}

func dedupe(s []string) []string {
	seen := make(map[string]bool, len(s))
	out := s[:0]
	for _, v := range s {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
