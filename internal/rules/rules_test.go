package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Tables(t *testing.T) {
	rs := Default()
	require.NotNil(t, rs)
	assert.Same(t, rs, Default())

	var cats []MedicationCategory
	for _, m := range rs.Medications {
		cats = append(cats, m.Category)
	}
	assert.Equal(t, []MedicationCategory{
		Antibiotics, PainRelievers, AllergyMeds, ParasiteControl, Supplements, HeartMeds, EyeMeds,
	}, cats)

	var conds []Condition
	for _, c := range rs.Conditions {
		conds = append(conds, c.Condition)
	}
	assert.Equal(t, []Condition{
		Infection, Arthritis, Allergy, Dental, Digestive, Respiratory, Cardiac,
	}, conds)

	meds, condKeywords := rs.KeywordCount()
	assert.Equal(t, 31, meds)
	assert.Equal(t, 35, condKeywords)

	assert.Len(t, rs.Dosage, 8)
	assert.Len(t, rs.Duration, 4)
	assert.Len(t, rs.SpecialInstructions, 5)
	for _, d := range rs.Dosage {
		assert.NotNil(t, d.Regexp(), d.Pattern)
	}
}

func TestDefault_MedicationKeywords(t *testing.T) {
	rs := Default()
	tests := []struct {
		category MedicationCategory
		keywords []string
	}{
		{Antibiotics, []string{"amoxicillin", "cephalexin", "doxycycline", "enrofloxacin", "metronidazole"}},
		{PainRelievers, []string{"carprofen", "meloxicam", "gabapentin", "tramadol", "aspirin"}},
		{AllergyMeds, []string{"cetirizine", "diphenhydramine", "prednisone", "cytopoint", "apoquel"}},
		{ParasiteControl, []string{"ivermectin", "milbemycin", "praziquantel", "selamectin", "fipronil"}},
		{Supplements, []string{"glucosamine", "omega-3", "probiotics", "cosequin", "dasuquin"}},
		{HeartMeds, []string{"enalapril", "furosemide", "pimobendan"}},
		{EyeMeds, []string{"ophthalmic", "gentamicin", "tobramycin"}},
	}
	for i, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			assert.Equal(t, tt.category, rs.Medications[i].Category)
			assert.Equal(t, tt.keywords, rs.Medications[i].Keywords)
		})
	}
}

func TestPatternRule_Label(t *testing.T) {
	rs := Default()
	var labels []string
	for _, p := range rs.SpecialInstructions {
		labels = append(labels, p.Label())
	}
	assert.Equal(t, []string{"with food", "after meals", "empty stomach", "do not crush", "with water"}, labels)
}

func TestDefault_DietTables(t *testing.T) {
	diet := Default().Diet
	assert.Len(t, diet.Baseline.GeneralRecommendations, 4)
	assert.Len(t, diet.Baseline.FoodsToAvoid, 3)
	assert.Len(t, diet.Baseline.HydrationTips, 3)
	assert.Equal(t, "7:00-8:00 AM - Main meal with any morning supplements", diet.Baseline.FeedingSchedule.Breakfast)
	assert.Equal(t, "Administer medications with meals unless otherwise directed", diet.Baseline.FeedingSchedule.MedicationTimes)

	var order []Condition
	for _, c := range diet.Conditions {
		order = append(order, c.Condition)
	}
	assert.Equal(t, []Condition{Infection, Arthritis, Digestive, Allergy}, order)
	assert.Len(t, diet.FallbackFoodSuggestions, 4)
}

func TestParse_Errors(t *testing.T) {
	base := `
diet:
  baseline:
    general_recommendations: [x]
  fallback_food_suggestions: [y]
`
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"bad yaml", "medications: [", "decode rules"},
		{"unknown category", "medications:\n  - category: vitamins\n    keywords: [a]\n" + base, "unknown medication category"},
		{"empty keywords", "conditions:\n  - condition: dental\n    keywords: []\n" + base, "has no keywords"},
		{"bad regex", "dosage:\n  - pattern: '(\\d+'\n    unit: mg\n" + base, "dosage pattern"},
		{"missing unit", "dosage:\n  - pattern: 'x'\n" + base, "has no unit"},
		{"bad duration", "duration: ['(']\n" + base, "duration pattern"},
		{"no fallback", "diet:\n  baseline:\n    general_recommendations: [x]\n", "fallback_food_suggestions"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadFile(t *testing.T) {
	rs, err := LoadFile("")
	require.NoError(t, err)
	assert.Same(t, Default(), rs)

	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, Default().Source(), 0644))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.NotSame(t, Default(), loaded)
	assert.Equal(t, Default().Medications, loaded.Medications)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestWidenSpace(t *testing.T) {
	tests := []struct {
		pattern string
		want    string
	}{
		{`with\s*food`, "with[" + unicodeSpace + "]*food"},
		{`[\s,]+`, "[" + unicodeSpace + ",]+"},
		{`\S+`, "[^" + unicodeSpace + "]+"},
		{`\\s`, `\\s`},
		{`[]\s]`, "[]" + unicodeSpace + "]"},
		{`(\d+)\s*mg`, "(\\d+)[" + unicodeSpace + "]*mg"},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			assert.Equal(t, tt.want, widenSpace(tt.pattern))
		})
	}
}

func TestCompile_UnicodeWhitespace(t *testing.T) {
	re, err := compile(`(\d+)\s*mg`)
	require.NoError(t, err)

	for _, sep := range []string{" ", "\t", "\u00a0", "\u2009", "\u3000", "\v", "\x1f", "\u0085"} {
		assert.Equal(t, []string{"250" + sep + "mg", "250"}, re.FindStringSubmatch("give 250"+sep+"mg"), "%q", sep)
	}

	re, err = compile(`\S+`)
	require.NoError(t, err)
	assert.Equal(t, "with", re.FindString("with\u00a0food"))
}

func TestDefault_PatternsMatchNBSP(t *testing.T) {
	rs := Default()
	assert.True(t, rs.SpecialInstructions[0].Regexp().MatchString("with\u00a0food"))
	assert.Equal(t, "with food", rs.SpecialInstructions[0].Label())
	assert.True(t, rs.Dosage[0].Regexp().MatchString("250\u00a0mg"))
}
