package fhir

import (
	"fmt"
	"strings"

	"github.com/carelink/clinassist/internal/model"
)

// Resources arrive as generic JSON maps. The helpers below walk them without
// a full FHIR model: only the handful of paths the snapshot needs are read,
// and every missing path degrades to the zero value.

func getString(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func getMap(m map[string]interface{}, key string) map[string]interface{} {
	if m == nil {
		return nil
	}
	out, _ := m[key].(map[string]interface{})
	return out
}

func getList(m map[string]interface{}, key string) []interface{} {
	if m == nil {
		return nil
	}
	out, _ := m[key].([]interface{})
	return out
}

func mapAt(list []interface{}, idx int) map[string]interface{} {
	if idx < 0 || idx >= len(list) {
		return nil
	}
	out, _ := list[idx].(map[string]interface{})
	return out
}

// codeableText resolves a CodeableConcept to display text: the concept's own
// text when present, otherwise the first coding's display.
func codeableText(concept map[string]interface{}) string {
	if concept == nil {
		return ""
	}
	if text := getString(concept, "text"); text != "" {
		return text
	}
	return getString(mapAt(getList(concept, "coding"), 0), "display")
}

func stringList(list []interface{}) []string {
	out := make([]string, 0, len(list))
	for _, raw := range list {
		if s, ok := raw.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func flattenPatient(res map[string]interface{}, snap *model.PatientSnapshot) error {
	if getString(res, "resourceType") != "Patient" {
		return fmt.Errorf("unexpected resource type %q, want Patient", getString(res, "resourceType"))
	}
	snap.Name = patientName(getList(res, "name"))
	snap.DOB = getString(res, "birthDate")
	snap.MRN = patientMRN(getList(res, "identifier"))
	return nil
}

// patientName prefers the official name, then falls back to the first entry.
// Assembled from given + family when no preformatted text exists.
func patientName(names []interface{}) string {
	var chosen map[string]interface{}
	for _, raw := range names {
		name, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if getString(name, "use") == "official" {
			chosen = name
			break
		}
	}
	if chosen == nil {
		chosen = mapAt(names, 0)
	}
	if chosen == nil {
		return ""
	}
	if text := getString(chosen, "text"); text != "" {
		return text
	}
	parts := stringList(getList(chosen, "given"))
	if family := getString(chosen, "family"); family != "" {
		parts = append(parts, family)
	}
	return strings.Join(parts, " ")
}

func patientMRN(identifiers []interface{}) string {
	for _, raw := range identifiers {
		identifier, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		idType := getMap(identifier, "type")
		code := getString(mapAt(getList(idType, "coding"), 0), "code")
		text := strings.ToUpper(getString(idType, "text"))
		if code == "MR" || strings.Contains(text, "MRN") || strings.Contains(text, "MEDICAL RECORD") {
			return getString(identifier, "value")
		}
	}
	return ""
}

func flattenCoverage(res map[string]interface{}, snap *model.PatientSnapshot) error {
	if getString(res, "resourceType") != "Coverage" {
		return fmt.Errorf("unexpected resource type %q, want Coverage", getString(res, "resourceType"))
	}
	snap.InsuranceProvider = getString(mapAt(getList(res, "payor"), 0), "display")
	snap.MemberID = coverageMemberID(res)
	snap.GroupNumber = coverageGroupNumber(getList(res, "class"))
	snap.EffectiveDate = getString(getMap(res, "period"), "start")
	return nil
}

func coverageMemberID(res map[string]interface{}) string {
	if id := getString(res, "subscriberId"); id != "" {
		return id
	}
	for _, raw := range getList(res, "identifier") {
		identifier, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		code := getString(mapAt(getList(getMap(identifier, "type"), "coding"), 0), "code")
		if code != "MB" {
			continue
		}
		if value := getString(identifier, "value"); value != "" {
			return value
		}
		// Epic sometimes hides the member id behind a value extension.
		ext := mapAt(getList(getMap(identifier, "_value"), "extension"), 0)
		if value := getString(ext, "valueString"); value != "" {
			return value
		}
	}
	return ""
}

func coverageGroupNumber(classes []interface{}) string {
	for _, raw := range classes {
		class, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		classType := getMap(class, "type")
		code := getString(mapAt(getList(classType, "coding"), 0), "code")
		if code == "group" || strings.EqualFold(getString(classType, "text"), "group") {
			if value := getString(class, "value"); value != "" {
				return value
			}
			return getString(class, "name")
		}
	}
	return ""
}

// ParseAllergy flattens an AllergyIntolerance resource. A nil or non-allergy
// input yields nil, which renders as the absent-section sentinel downstream.
func ParseAllergy(res map[string]interface{}) *model.AllergyRecord {
	if res == nil || getString(res, "resourceType") != "AllergyIntolerance" {
		return nil
	}
	record := &model.AllergyRecord{
		Name:               codeableText(getMap(res, "code")),
		ClinicalStatus:     codeableText(getMap(res, "clinicalStatus")),
		VerificationStatus: codeableText(getMap(res, "verificationStatus")),
		OnsetDate:          getString(res, "onsetDateTime"),
		RecordedDate:       getString(res, "recordedDate"),
		Categories:         stringList(getList(res, "category")),
	}
	for _, raw := range getList(res, "reaction") {
		reaction, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		parsed := model.AllergyReaction{
			Description: getString(reaction, "description"),
		}
		for _, manifestRaw := range getList(reaction, "manifestation") {
			manifest, ok := manifestRaw.(map[string]interface{})
			if !ok {
				continue
			}
			if text := codeableText(manifest); text != "" {
				parsed.Manifestations = append(parsed.Manifestations, text)
			}
		}
		if parsed.Description == "" && len(parsed.Manifestations) > 0 {
			parsed.Description = strings.Join(parsed.Manifestations, ", ")
		}
		record.Reactions = append(record.Reactions, parsed)
	}
	return record
}

func ParseCondition(res map[string]interface{}) *model.ConditionRecord {
	if res == nil || getString(res, "resourceType") != "Condition" {
		return nil
	}
	record := &model.ConditionRecord{
		Name:               codeableText(getMap(res, "code")),
		ClinicalStatus:     codeableText(getMap(res, "clinicalStatus")),
		VerificationStatus: codeableText(getMap(res, "verificationStatus")),
		OnsetDate:          getString(res, "onsetDateTime"),
		RecordedDate:       getString(res, "recordedDate"),
	}
	for _, raw := range getList(res, "category") {
		category, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if text := codeableText(category); text != "" {
			record.Categories = append(record.Categories, text)
		}
	}
	for _, raw := range getList(res, "note") {
		note, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if text := getString(note, "text"); text != "" {
			record.Notes = append(record.Notes, text)
		}
	}
	return record
}

func ParseDiagnosticReport(res map[string]interface{}) *model.DiagnosticReportRecord {
	if res == nil || getString(res, "resourceType") != "DiagnosticReport" {
		return nil
	}
	record := &model.DiagnosticReportRecord{
		Name:          codeableText(getMap(res, "code")),
		Status:        getString(res, "status"),
		EffectiveDate: getString(res, "effectiveDateTime"),
		IssuedDate:    getString(res, "issued"),
	}
	for _, raw := range getList(res, "category") {
		category, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if text := codeableText(category); text != "" {
			record.Categories = append(record.Categories, text)
		}
	}
	for _, raw := range getList(res, "performer") {
		performer, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if display := getString(performer, "display"); display != "" {
			record.Providers = append(record.Providers, display)
		}
	}
	for _, raw := range getList(res, "result") {
		result, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if display := getString(result, "display"); display != "" {
			record.Results = append(record.Results, display)
		}
	}
	return record
}
