package model

// PatientSnapshot is the flattened view of one patient's FHIR record, built once
// when the record is loaded and read-only afterwards. Empty scalar fields mean
// "unknown"; nil sub-records mean the source resource was absent entirely.
type PatientSnapshot struct {
	Name              string `json:"name"`
	DOB               string `json:"dob"`
	MRN               string `json:"mrn"`
	InsuranceProvider string `json:"provider"`
	MemberID          string `json:"member_id"`
	GroupNumber       string `json:"group_number"`
	EffectiveDate     string `json:"effective_date"`

	Allergy          *AllergyRecord          `json:"allergies,omitempty"`
	Condition        *ConditionRecord        `json:"conditions,omitempty"`
	DiagnosticReport *DiagnosticReportRecord `json:"diagnostic_report,omitempty"`
}

type AllergyRecord struct {
	Name               string            `json:"allergy_name"`
	ClinicalStatus     string            `json:"clinical_status"`
	VerificationStatus string            `json:"verification_status"`
	OnsetDate          string            `json:"onset_date"`
	RecordedDate       string            `json:"recorded_date"`
	Categories         []string          `json:"categories,omitempty"`
	Reactions          []AllergyReaction `json:"reactions,omitempty"`
}

type AllergyReaction struct {
	Description    string   `json:"description"`
	Manifestations []string `json:"manifestations,omitempty"`
}

type ConditionRecord struct {
	Name               string   `json:"condition_name"`
	ClinicalStatus     string   `json:"clinical_status"`
	VerificationStatus string   `json:"verification_status"`
	OnsetDate          string   `json:"onset_date"`
	RecordedDate       string   `json:"recorded_date"`
	Categories         []string `json:"categories,omitempty"`
	Notes              []string `json:"notes,omitempty"`
}

type DiagnosticReportRecord struct {
	Name          string   `json:"report_name"`
	Status        string   `json:"status"`
	EffectiveDate string   `json:"effective_date"`
	IssuedDate    string   `json:"issued_date"`
	Categories    []string `json:"categories,omitempty"`
	Providers     []string `json:"providers,omitempty"`
	Results       []string `json:"result_references,omitempty"`
}
