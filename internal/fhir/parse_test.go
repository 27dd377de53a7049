package fhir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/carelink/clinassist/internal/model"
)

func decodeResource(t *testing.T, raw string) map[string]interface{} {
	t.Helper()
	var res map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &res))
	return res
}

func TestFlattenPatient(t *testing.T) {
	res := decodeResource(t, `{
		"resourceType": "Patient",
		"birthDate": "1980-03-14",
		"name": [
			{"use": "nickname", "text": "JD"},
			{"use": "official", "given": ["Jane", "Q"], "family": "Doe"}
		],
		"identifier": [
			{"type": {"text": "SSN"}, "value": "000-00-0000"},
			{"type": {"coding": [{"code": "MR"}], "text": "MRN"}, "value": "MRN-100"}
		]
	}`)
	snap := &model.PatientSnapshot{}
	require.NoError(t, flattenPatient(res, snap))
	require.Equal(t, "Jane Q Doe", snap.Name)
	require.Equal(t, "1980-03-14", snap.DOB)
	require.Equal(t, "MRN-100", snap.MRN)
}

func TestFlattenPatient_WrongType(t *testing.T) {
	res := decodeResource(t, `{"resourceType": "Coverage"}`)
	require.Error(t, flattenPatient(res, &model.PatientSnapshot{}))
}

func TestFlattenCoverage(t *testing.T) {
	res := decodeResource(t, `{
		"resourceType": "Coverage",
		"payor": [{"display": "Acme Health"}],
		"subscriberId": "M-42",
		"class": [
			{"type": {"coding": [{"code": "plan"}]}, "value": "P-1"},
			{"type": {"coding": [{"code": "group"}]}, "value": "G-7"}
		],
		"period": {"start": "2025-01-01"}
	}`)
	snap := &model.PatientSnapshot{}
	require.NoError(t, flattenCoverage(res, snap))
	require.Equal(t, "Acme Health", snap.InsuranceProvider)
	require.Equal(t, "M-42", snap.MemberID)
	require.Equal(t, "G-7", snap.GroupNumber)
	require.Equal(t, "2025-01-01", snap.EffectiveDate)
}

func TestFlattenCoverage_MemberIDFromIdentifierExtension(t *testing.T) {
	res := decodeResource(t, `{
		"resourceType": "Coverage",
		"identifier": [{
			"type": {"coding": [{"code": "MB"}]},
			"_value": {"extension": [{"valueString": "M-99"}]}
		}]
	}`)
	snap := &model.PatientSnapshot{}
	require.NoError(t, flattenCoverage(res, snap))
	require.Equal(t, "M-99", snap.MemberID)
}

func TestParseAllergy(t *testing.T) {
	res := decodeResource(t, `{
		"resourceType": "AllergyIntolerance",
		"code": {"text": "Penicillin"},
		"clinicalStatus": {"coding": [{"display": "Active"}]},
		"verificationStatus": {"text": "Confirmed"},
		"onsetDateTime": "2010-06-01",
		"recordedDate": "2010-06-02",
		"category": ["medication"],
		"reaction": [{
			"description": "Hives",
			"manifestation": [{"text": "Urticaria"}, {"coding": [{"display": "Pruritus"}]}]
		}]
	}`)
	record := ParseAllergy(res)
	require.NotNil(t, record)
	require.Equal(t, "Penicillin", record.Name)
	require.Equal(t, "Active", record.ClinicalStatus)
	require.Equal(t, "Confirmed", record.VerificationStatus)
	require.Equal(t, []string{"medication"}, record.Categories)
	require.Len(t, record.Reactions, 1)
	require.Equal(t, "Hives", record.Reactions[0].Description)
	require.Equal(t, []string{"Urticaria", "Pruritus"}, record.Reactions[0].Manifestations)
}

func TestParseAllergy_NilOnWrongType(t *testing.T) {
	require.Nil(t, ParseAllergy(nil))
	require.Nil(t, ParseAllergy(decodeResource(t, `{"resourceType": "Patient"}`)))
}

func TestParseCondition(t *testing.T) {
	res := decodeResource(t, `{
		"resourceType": "Condition",
		"code": {"text": "Asthma"},
		"clinicalStatus": {"text": "Active"},
		"verificationStatus": {"coding": [{"display": "Confirmed"}]},
		"onsetDateTime": "2015-02-10",
		"category": [{"text": "Problem List Item"}],
		"note": [{"text": "Well controlled on current regimen."}]
	}`)
	record := ParseCondition(res)
	require.NotNil(t, record)
	require.Equal(t, "Asthma", record.Name)
	require.Equal(t, "Confirmed", record.VerificationStatus)
	require.Equal(t, []string{"Problem List Item"}, record.Categories)
	require.Equal(t, []string{"Well controlled on current regimen."}, record.Notes)
}

func TestParseDiagnosticReport(t *testing.T) {
	res := decodeResource(t, `{
		"resourceType": "DiagnosticReport",
		"code": {"text": "CBC Panel"},
		"status": "final",
		"effectiveDateTime": "2025-05-01",
		"issued": "2025-05-02",
		"category": [{"coding": [{"display": "Hematology"}]}],
		"performer": [{"display": "Dr. Smith"}],
		"result": [{"display": "Hemoglobin"}, {"display": "Hematocrit"}]
	}`)
	record := ParseDiagnosticReport(res)
	require.NotNil(t, record)
	require.Equal(t, "CBC Panel", record.Name)
	require.Equal(t, "final", record.Status)
	require.Equal(t, []string{"Hematology"}, record.Categories)
	require.Equal(t, []string{"Dr. Smith"}, record.Providers)
	require.Equal(t, []string{"Hemoglobin", "Hematocrit"}, record.Results)
}

func TestUnwrapBundle(t *testing.T) {
	bundle := decodeResource(t, `{
		"resourceType": "Bundle",
		"entry": [
			{"resource": {"resourceType": "OperationOutcome"}},
			{"resource": {"resourceType": "AllergyIntolerance", "code": {"text": "Penicillin"}}}
		]
	}`)
	resource := unwrapBundle(bundle, "AllergyIntolerance")
	require.NotNil(t, resource)
	require.Equal(t, "AllergyIntolerance", resource["resourceType"])

	plain := decodeResource(t, `{"resourceType": "AllergyIntolerance"}`)
	require.Equal(t, plain, unwrapBundle(plain, "AllergyIntolerance"))
}
