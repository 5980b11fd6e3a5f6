// Package analyzer turns raw prescription text into structured findings using
// the keyword and pattern tables from the rules package.
//
// Matching is plain substring search on the lower-cased text, so a keyword
// embedded in a longer word still counts ("gi" inside "giving"). That is a
// known precision limitation kept for output compatibility.
package analyzer

import (
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/gmsas95/vetscan/internal/rules"
)

const (
	maxConfidence   = 95
	medicationScore = 20
	conditionScore  = 15
	dosageScore     = 10
	maxDosageScore  = 30
	floorConfidence = 10

	sampleRunes = 500
)

// NoMedicationsNote is added when text was present but no medication matched.
const NoMedicationsNote = "No specific medications detected. Please verify the prescription manually."

// MedicationEntry is one keyword hit.
type MedicationEntry struct {
	Name        string                   `json:"name"`
	Category    rules.MedicationCategory `json:"category"`
	FoundInText bool                     `json:"found_in_text"`
}

// DosageInstruction is one regex match from the dosage table.
type DosageInstruction struct {
	Amount string `json:"amount"`
	Unit   string `json:"unit"`
	Match  string `json:"match"`
}

// Analysis is the structured result for one document.
type Analysis struct {
	Medications         []MedicationEntry   `json:"medications"`
	DosageInstructions  []DosageInstruction `json:"dosage_instructions"`
	DetectedConditions  []rules.Condition   `json:"detected_conditions"`
	Frequency           []string            `json:"frequency"`
	Duration            string              `json:"duration"`
	SpecialInstructions []string            `json:"special_instructions"`
	ConfidenceScore     int                 `json:"confidence_score"`
	RawTextSample       string              `json:"raw_text_sample"`
	GeneralNotes        []string            `json:"general_notes,omitempty"`
}

// HasCondition reports whether c was detected.
func (a *Analysis) HasCondition(c rules.Condition) bool {
	for _, d := range a.DetectedConditions {
		if d == c {
			return true
		}
	}
	return false
}

// HasCategory reports whether any medication of category c was detected.
func (a *Analysis) HasCategory(c rules.MedicationCategory) bool {
	for _, m := range a.Medications {
		if m.Category == c {
			return true
		}
	}
	return false
}

// Analyzer is stateless apart from its rule set and is safe for concurrent use.
type Analyzer struct {
	rules  *rules.RuleSet
	logger *zap.Logger
}

// New creates an analyzer. A nil rule set selects rules.Default().
func New(rs *rules.RuleSet, logger *zap.Logger) *Analyzer {
	if rs == nil {
		rs = rules.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{rules: rs, logger: logger}
}

// Analyze never fails; empty text yields an empty, zero-confidence analysis.
func (a *Analyzer) Analyze(text string) *Analysis {
	result := &Analysis{
		Medications:         []MedicationEntry{},
		DosageInstructions:  []DosageInstruction{},
		DetectedConditions:  []rules.Condition{},
		Frequency:           []string{},
		SpecialInstructions: []string{},
		RawTextSample:       rawSample(text),
	}

	lower := strings.ToLower(text)

	result.Medications = a.findMedications(lower)
	result.DetectedConditions = a.findConditions(lower)
	result.DosageInstructions = a.findDosages(lower)
	result.Duration = a.findDuration(lower)
	result.SpecialInstructions = a.findSpecialInstructions(lower)

	result.ConfidenceScore = confidence(len(result.Medications), len(result.DetectedConditions), len(result.DosageInstructions))
	if len(result.Medications) == 0 && strings.TrimSpace(text) != "" {
		result.GeneralNotes = []string{NoMedicationsNote}
		result.ConfidenceScore = max(result.ConfidenceScore, floorConfidence)
	}

	a.logger.Info("Analysis completed",
		zap.Int("medications", len(result.Medications)),
		zap.Int("conditions", len(result.DetectedConditions)),
		zap.Int("dosages", len(result.DosageInstructions)),
		zap.Int("confidence", result.ConfidenceScore),
	)
	return result
}

func (a *Analyzer) findMedications(lower string) []MedicationEntry {
	// Casers carry state and must not be shared across goroutines.
	title := cases.Title(language.English)
	meds := []MedicationEntry{}
	for _, rule := range a.rules.Medications {
		for _, kw := range rule.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				meds = append(meds, MedicationEntry{
					Name:        title.String(kw),
					Category:    rule.Category,
					FoundInText: true,
				})
			}
		}
	}
	return meds
}

func (a *Analyzer) findConditions(lower string) []rules.Condition {
	conds := []rules.Condition{}
	seen := make(map[rules.Condition]bool)
	for _, rule := range a.rules.Conditions {
		for _, kw := range rule.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				if !seen[rule.Condition] {
					seen[rule.Condition] = true
					conds = append(conds, rule.Condition)
				}
				break
			}
		}
	}
	return conds
}

func (a *Analyzer) findDosages(lower string) []DosageInstruction {
	dosages := []DosageInstruction{}
	for _, rule := range a.rules.Dosage {
		re := rule.Regexp()
		for _, m := range re.FindAllStringSubmatch(lower, -1) {
			amount := "1"
			if re.NumSubexp() > 0 {
				amount = m[1]
			}
			dosages = append(dosages, DosageInstruction{Amount: amount, Unit: rule.Unit, Match: m[0]})
		}
	}
	return dosages
}

func (a *Analyzer) findDuration(lower string) string {
	for _, rule := range a.rules.Duration {
		if m := rule.Regexp().FindString(lower); m != "" {
			return m
		}
	}
	return ""
}

func (a *Analyzer) findSpecialInstructions(lower string) []string {
	found := []string{}
	for _, rule := range a.rules.SpecialInstructions {
		if rule.Regexp().MatchString(lower) {
			found = append(found, rule.Label())
		}
	}
	return found
}

func confidence(meds, conds, doses int) int {
	dosage := min(doses*dosageScore, maxDosageScore)
	return min(maxConfidence, meds*medicationScore+conds*conditionScore+dosage)
}

func rawSample(text string) string {
	if utf8.RuneCountInString(text) <= sampleRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:sampleRunes]) + "..."
}
