// Package rules holds the keyword and pattern tables that drive prescription
// analysis and diet planning. Tables are plain data (rules.yaml, embedded at
// build time) so they can be listed, diffed and tested independently of the
// engines that consume them. A loaded RuleSet is never mutated and is safe to
// share between goroutines.
package rules

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultYAML []byte

// MedicationCategory labels a group of medication keywords.
type MedicationCategory string

const (
	Antibiotics     MedicationCategory = "antibiotics"
	PainRelievers   MedicationCategory = "pain_relievers"
	AllergyMeds     MedicationCategory = "allergy_meds"
	ParasiteControl MedicationCategory = "parasite_control"
	Supplements     MedicationCategory = "supplements"
	HeartMeds       MedicationCategory = "heart_meds"
	EyeMeds         MedicationCategory = "eye_meds"
)

// Condition is a medical condition tag.
type Condition string

const (
	Infection   Condition = "infection"
	Arthritis   Condition = "arthritis"
	Allergy     Condition = "allergy"
	Dental      Condition = "dental"
	Digestive   Condition = "digestive"
	Respiratory Condition = "respiratory"
	Cardiac     Condition = "cardiac"
)

var (
	knownCategories = map[MedicationCategory]bool{
		Antibiotics: true, PainRelievers: true, AllergyMeds: true, ParasiteControl: true,
		Supplements: true, HeartMeds: true, EyeMeds: true,
	}
	knownConditions = map[Condition]bool{
		Infection: true, Arthritis: true, Allergy: true, Dental: true,
		Digestive: true, Respiratory: true, Cardiac: true,
	}
)

// MedicationRule maps a category to the keywords that identify it.
type MedicationRule struct {
	Category MedicationCategory `yaml:"category"`
	Keywords []string           `yaml:"keywords"`
}

// ConditionRule maps a condition to the keywords that identify it.
type ConditionRule struct {
	Condition Condition `yaml:"condition"`
	Keywords  []string  `yaml:"keywords"`
}

// DosageRule is a dosage regex and the unit reported for its matches.
type DosageRule struct {
	Pattern string `yaml:"pattern"`
	Unit    string `yaml:"unit"`

	re *regexp.Regexp
}

// Regexp returns the compiled pattern.
func (r DosageRule) Regexp() *regexp.Regexp { return r.re }

// PatternRule is a bare regex with a human-readable label.
type PatternRule struct {
	Pattern string

	re *regexp.Regexp
}

// Regexp returns the compiled pattern.
func (r PatternRule) Regexp() *regexp.Regexp { return r.re }

// Label renders the pattern for display, turning `\s*` markers into spaces.
func (r PatternRule) Label() string {
	return strings.ReplaceAll(r.Pattern, `\s*`, " ")
}

// FeedingSchedule is the default meal and medication timing.
type FeedingSchedule struct {
	Breakfast       string `yaml:"breakfast" json:"breakfast"`
	Lunch           string `yaml:"lunch" json:"lunch"`
	Dinner          string `yaml:"dinner" json:"dinner"`
	MedicationTimes string `yaml:"medication_times" json:"medication_times"`
}

// DietBaseline is the content every plan starts from.
type DietBaseline struct {
	GeneralRecommendations []string        `yaml:"general_recommendations"`
	FoodsToAvoid           []string        `yaml:"foods_to_avoid"`
	FeedingSchedule        FeedingSchedule `yaml:"feeding_schedule"`
	HydrationTips          []string        `yaml:"hydration_tips"`
}

// DietConditionRule lists what a detected condition adds to a plan.
type DietConditionRule struct {
	Condition              Condition `yaml:"condition"`
	FoodSuggestions        []string  `yaml:"food_suggestions"`
	Supplements            []string  `yaml:"supplements"`
	GeneralRecommendations []string  `yaml:"general_recommendations"`
}

// DietMedicationRule lists what a detected medication category adds to a plan.
type DietMedicationRule struct {
	Category               MedicationCategory `yaml:"category"`
	Supplements            []string           `yaml:"supplements"`
	GeneralRecommendations []string           `yaml:"general_recommendations"`
}

// DietRules groups the diet tables.
type DietRules struct {
	Baseline                DietBaseline         `yaml:"baseline"`
	Conditions              []DietConditionRule  `yaml:"conditions"`
	Medications             []DietMedicationRule `yaml:"medications"`
	FallbackFoodSuggestions []string             `yaml:"fallback_food_suggestions"`
}

// RuleSet is a validated, compiled set of tables.
type RuleSet struct {
	Medications         []MedicationRule
	Conditions          []ConditionRule
	Dosage              []DosageRule
	Duration            []PatternRule
	SpecialInstructions []PatternRule
	Diet                DietRules

	source []byte
}

type document struct {
	Medications         []MedicationRule `yaml:"medications"`
	Conditions          []ConditionRule  `yaml:"conditions"`
	Dosage              []DosageRule     `yaml:"dosage"`
	Duration            []string         `yaml:"duration"`
	SpecialInstructions []string         `yaml:"special_instructions"`
	Diet                DietRules        `yaml:"diet"`
}

var (
	defaultSet  *RuleSet
	defaultOnce sync.Once
)

// Default returns the embedded rule set. The embedded tables are covered by
// tests, so a parse failure here is a build defect and panics.
func Default() *RuleSet {
	defaultOnce.Do(func() {
		rs, err := Parse(defaultYAML)
		if err != nil {
			panic(fmt.Sprintf("rules: embedded tables invalid: %v", err))
		}
		defaultSet = rs
	})
	return defaultSet
}

// LoadFile reads and validates a rule file. An empty path yields Default().
func LoadFile(path string) (*RuleSet, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return Parse(data)
}

// Parse decodes, validates and compiles YAML rule tables.
func Parse(data []byte) (*RuleSet, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}

	rs := &RuleSet{
		Medications: doc.Medications,
		Conditions:  doc.Conditions,
		Dosage:      doc.Dosage,
		Diet:        doc.Diet,
		source:      append([]byte(nil), data...),
	}

	for _, m := range rs.Medications {
		if !knownCategories[m.Category] {
			return nil, fmt.Errorf("unknown medication category %q", m.Category)
		}
		if len(m.Keywords) == 0 {
			return nil, fmt.Errorf("medication category %q has no keywords", m.Category)
		}
	}
	for _, c := range rs.Conditions {
		if !knownConditions[c.Condition] {
			return nil, fmt.Errorf("unknown condition %q", c.Condition)
		}
		if len(c.Keywords) == 0 {
			return nil, fmt.Errorf("condition %q has no keywords", c.Condition)
		}
	}

	for i := range rs.Dosage {
		re, err := compile(rs.Dosage[i].Pattern)
		if err != nil {
			return nil, fmt.Errorf("dosage pattern %q: %w", rs.Dosage[i].Pattern, err)
		}
		if rs.Dosage[i].Unit == "" {
			return nil, fmt.Errorf("dosage pattern %q has no unit", rs.Dosage[i].Pattern)
		}
		rs.Dosage[i].re = re
	}

	var err error
	if rs.Duration, err = compilePatterns("duration", doc.Duration); err != nil {
		return nil, err
	}
	if rs.SpecialInstructions, err = compilePatterns("special instruction", doc.SpecialInstructions); err != nil {
		return nil, err
	}

	for _, c := range rs.Diet.Conditions {
		if !knownConditions[c.Condition] {
			return nil, fmt.Errorf("diet rule for unknown condition %q", c.Condition)
		}
	}
	for _, m := range rs.Diet.Medications {
		if !knownCategories[m.Category] {
			return nil, fmt.Errorf("diet rule for unknown medication category %q", m.Category)
		}
	}
	if len(rs.Diet.FallbackFoodSuggestions) == 0 {
		return nil, fmt.Errorf("diet.fallback_food_suggestions must not be empty")
	}
	if len(rs.Diet.Baseline.GeneralRecommendations) == 0 {
		return nil, fmt.Errorf("diet.baseline.general_recommendations must not be empty")
	}

	return rs, nil
}

func compilePatterns(kind string, patterns []string) ([]PatternRule, error) {
	out := make([]PatternRule, 0, len(patterns))
	for _, p := range patterns {
		re, err := compile(p)
		if err != nil {
			return nil, fmt.Errorf("%s pattern %q: %w", kind, p, err)
		}
		out = append(out, PatternRule{Pattern: p, re: re})
	}
	return out, nil
}

// unicodeSpace covers unicode.IsSpace plus the \x1c-\x1f separators. RE2's \s
// is ASCII only and misses the NBSPs that PDF text layers are full of.
const unicodeSpace = `\s\v\x{1c}-\x{1f}\x{85}\p{Z}`

// compile widens \s (and \S outside classes) to Unicode whitespace before
// compiling. Rule patterns keep their original text for Label.
func compile(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile(widenSpace(pattern))
}

func widenSpace(pattern string) string {
	var b strings.Builder
	inClass := false
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch {
		case c == '\\' && i+1 < len(pattern):
			next := pattern[i+1]
			i++
			switch {
			case next == 's' && inClass:
				b.WriteString(unicodeSpace)
			case next == 's':
				b.WriteString("[" + unicodeSpace + "]")
			case next == 'S' && !inClass:
				b.WriteString("[^" + unicodeSpace + "]")
			default:
				b.WriteByte(c)
				b.WriteByte(next)
			}
			continue
		case c == '[' && !inClass:
			inClass = true
			b.WriteByte(c)
			// a leading ] or ^] is literal
			if i+1 < len(pattern) && pattern[i+1] == '^' {
				i++
				b.WriteByte('^')
			}
			if i+1 < len(pattern) && pattern[i+1] == ']' {
				i++
				b.WriteByte(']')
			}
			continue
		case c == ']' && inClass:
			inClass = false
		}
		b.WriteByte(c)
	}
	return b.String()
}

// Source returns the YAML the set was parsed from.
func (rs *RuleSet) Source() []byte {
	return append([]byte(nil), rs.source...)
}

// KeywordCount returns the number of medication and condition keywords.
func (rs *RuleSet) KeywordCount() (medications, conditions int) {
	for _, m := range rs.Medications {
		medications += len(m.Keywords)
	}
	for _, c := range rs.Conditions {
		conditions += len(c.Keywords)
	}
	return medications, conditions
}
