package tools

import (
	"fmt"
	"strings"

	"github.com/carelink/clinassist/internal/model"
)

// Fixed sentinels for absent record sections. Tools degrade to these instead
// of erroring: data completeness is never a failure.
const (
	NoAllergySentinel    = "No allergy information available for this patient."
	NoConditionSentinel  = "No condition information available for this patient."
	NoDiagnosticSentinel = "No diagnostic report information available for this patient."
	NoPatientSentinel    = "No patient information has been loaded."
)

const unknownValue = "Unknown"

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return unknownValue
	}
	return s
}

func joinOrUnknown(items []string) string {
	if len(items) == 0 {
		return unknownValue
	}
	return strings.Join(items, ", ")
}

// PatientSummary renders the seven demographic/insurance fields. Absent
// fields render as "Unknown" so the block's shape is always the same.
func PatientSummary(snap *model.PatientSnapshot) string {
	if snap == nil {
		snap = &model.PatientSnapshot{}
	}
	lines := []string{
		"Name: " + orUnknown(snap.Name),
		"Date of Birth: " + orUnknown(snap.DOB),
		"Medical Record Number: " + orUnknown(snap.MRN),
		"Insurance Provider: " + orUnknown(snap.InsuranceProvider),
		"Member ID: " + orUnknown(snap.MemberID),
		"Group Number: " + orUnknown(snap.GroupNumber),
		"Effective Date: " + orUnknown(snap.EffectiveDate),
	}
	return strings.Join(lines, "\n")
}

func AllergySummary(snap *model.PatientSnapshot) string {
	if snap == nil || snap.Allergy == nil {
		return NoAllergySentinel
	}
	allergy := snap.Allergy
	lines := []string{
		"Allergy: " + orUnknown(allergy.Name),
		fmt.Sprintf("Status: %s (%s)", orUnknown(allergy.ClinicalStatus), orUnknown(allergy.VerificationStatus)),
		"Onset Date: " + orUnknown(allergy.OnsetDate),
		"Recorded Date: " + orUnknown(allergy.RecordedDate),
	}
	if len(allergy.Categories) > 0 {
		lines = append(lines, "Category: "+strings.Join(allergy.Categories, ", "))
	}
	if len(allergy.Reactions) > 0 {
		lines = append(lines, "Reactions:")
		for _, reaction := range allergy.Reactions {
			if reaction.Description != "" {
				lines = append(lines, "  - "+reaction.Description)
			}
			if len(reaction.Manifestations) > 0 {
				lines = append(lines, "    Manifestations: "+strings.Join(reaction.Manifestations, ", "))
			}
		}
	}
	return strings.Join(lines, "\n")
}

func ConditionSummary(snap *model.PatientSnapshot) string {
	if snap == nil || snap.Condition == nil {
		return NoConditionSentinel
	}
	condition := snap.Condition
	lines := []string{
		"Condition: " + orUnknown(condition.Name),
		fmt.Sprintf("Status: %s (%s)", orUnknown(condition.ClinicalStatus), orUnknown(condition.VerificationStatus)),
		"Onset Date: " + orUnknown(condition.OnsetDate),
		"Recorded Date: " + orUnknown(condition.RecordedDate),
	}
	if len(condition.Categories) > 0 {
		lines = append(lines, "Categories: "+strings.Join(condition.Categories, ", "))
	}
	if len(condition.Notes) > 0 {
		lines = append(lines, "Clinical Notes:")
		for _, note := range condition.Notes {
			lines = append(lines, "  "+note)
		}
	}
	return strings.Join(lines, "\n")
}

func DiagnosticSummary(snap *model.PatientSnapshot) string {
	if snap == nil || snap.DiagnosticReport == nil {
		return NoDiagnosticSentinel
	}
	report := snap.DiagnosticReport
	lines := []string{
		"Diagnostic Report: " + orUnknown(report.Name),
		"Status: " + orUnknown(report.Status),
		"Date: " + orUnknown(report.EffectiveDate),
		"Issued: " + orUnknown(report.IssuedDate),
		"Categories: " + joinOrUnknown(report.Categories),
		"Providers: " + joinOrUnknown(report.Providers),
	}
	if len(report.Results) > 0 {
		lines = append(lines, "Results:")
		for _, result := range report.Results {
			lines = append(lines, "  - "+result)
		}
	}
	return strings.Join(lines, "\n")
}

// ICDCodingSummary concatenates the allergy, diagnostic-report and condition
// summaries for tasks that need the full cross-domain picture at once.
func ICDCodingSummary(snap *model.PatientSnapshot) string {
	return strings.Join([]string{
		AllergySummary(snap),
		DiagnosticSummary(snap),
		ConditionSummary(snap),
	}, "\n\n")
}
