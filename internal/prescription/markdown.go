package prescription

import (
	"fmt"
	"strings"

	"github.com/gmsas95/vetscan/internal/analyzer"
)

// Markdown renders the report for terminal display.
func (r *Report) Markdown() string {
	var sb strings.Builder
	a := r.PrescriptionAnalysis
	if a == nil {
		a = &analyzer.Analysis{}
	}

	fmt.Fprintf(&sb, "# Prescription analysis: %s\n\n", r.UploadedFile)
	fmt.Fprintf(&sb, "**Confidence:** %d%%", a.ConfidenceScore)
	if r.Strategy != "" {
		fmt.Fprintf(&sb, " · **Extracted with:** `%s`", r.Strategy)
	}
	sb.WriteString("\n\n")

	for _, note := range a.GeneralNotes {
		fmt.Fprintf(&sb, "> %s\n\n", note)
	}

	sb.WriteString("## Medications\n\n")
	if len(a.Medications) == 0 {
		sb.WriteString("_None detected._\n\n")
	} else {
		sb.WriteString("| Name | Category |\n|---|---|\n")
		for _, m := range a.Medications {
			fmt.Fprintf(&sb, "| %s | %s |\n", m.Name, strings.ReplaceAll(string(m.Category), "_", " "))
		}
		sb.WriteString("\n")
	}

	conditions := make([]string, len(a.DetectedConditions))
	for i, c := range a.DetectedConditions {
		conditions[i] = string(c)
	}
	writeList(&sb, "Conditions", conditions)

	dosages := make([]string, len(a.DosageInstructions))
	for i, d := range a.DosageInstructions {
		dosages[i] = fmt.Sprintf("%s %s (`%s`)", d.Amount, d.Unit, d.Match)
	}
	writeList(&sb, "Dosage", dosages)

	if a.Duration != "" {
		fmt.Fprintf(&sb, "**Duration:** %s\n\n", a.Duration)
	}
	writeList(&sb, "Special instructions", a.SpecialInstructions)

	if p := r.DietRecommendations; p != nil {
		sb.WriteString("---\n\n# Diet recommendations\n\n")
		writeList(&sb, "General", p.GeneralRecommendations)
		writeList(&sb, "Suggested foods", p.FoodSuggestions)
		writeList(&sb, "Avoid", p.FoodsToAvoid)
		writeList(&sb, "Supplements", p.Supplements)

		sb.WriteString("## Feeding schedule\n\n")
		fmt.Fprintf(&sb, "- **Breakfast:** %s\n", p.FeedingSchedule.Breakfast)
		fmt.Fprintf(&sb, "- **Lunch:** %s\n", p.FeedingSchedule.Lunch)
		fmt.Fprintf(&sb, "- **Dinner:** %s\n", p.FeedingSchedule.Dinner)
		fmt.Fprintf(&sb, "- **Medication:** %s\n\n", p.FeedingSchedule.MedicationTimes)

		writeList(&sb, "Hydration", p.HydrationTips)
	}
	return sb.String()
}

func writeList(sb *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "## %s\n\n", title)
	for _, item := range items {
		fmt.Fprintf(sb, "- %s\n", item)
	}
	sb.WriteString("\n")
}
