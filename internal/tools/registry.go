package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/carelink/clinassist/internal/ai"
	"github.com/carelink/clinassist/internal/model"
	appErr "github.com/carelink/clinassist/internal/pkg/errors"
)

// The tool set is closed: every variant is declared here and bound to its
// handler once at startup. Tool handlers are pure reads of the snapshot.
const (
	ToolPatientInfo      = "retrieve_patient_info"
	ToolAllergyInfo      = "retrieve_allergy_info"
	ToolConditionInfo    = "retrieve_condition_info"
	ToolDiagnosticInfo   = "retrieve_diagnostic_info"
	ToolICDCodingSupport = "retrieve_icd_coding_support"
)

type Handler func(snap *model.PatientSnapshot) string

type Descriptor struct {
	Name        string
	Description string
	Handler     Handler
}

type Registry struct {
	ordered []Descriptor
	byName  map[string]Descriptor
}

func NewRegistry() *Registry {
	descriptors := []Descriptor{
		{
			Name:        ToolPatientInfo,
			Description: "Retrieve the patient's demographic and insurance information: name, date of birth, medical record number, insurance provider, member id, group number and effective date.",
			Handler:     PatientSummary,
		},
		{
			Name:        ToolAllergyInfo,
			Description: "Retrieve the patient's allergy information, including allergy name, clinical status, onset date and reactions with their manifestations.",
			Handler:     AllergySummary,
		},
		{
			Name:        ToolConditionInfo,
			Description: "Retrieve the patient's condition information, including condition name, clinical status, onset date and clinical notes.",
			Handler:     ConditionSummary,
		},
		{
			Name:        ToolDiagnosticInfo,
			Description: "Retrieve the patient's diagnostic report, including report name, status, effective date, categories, providers and result references.",
			Handler:     DiagnosticSummary,
		},
		{
			Name:        ToolICDCodingSupport,
			Description: "Retrieve combined allergy, diagnostic report and condition information to support ICD coding tasks that need the full clinical picture.",
			Handler:     ICDCodingSummary,
		},
	}
	byName := make(map[string]Descriptor, len(descriptors))
	for _, desc := range descriptors {
		byName[desc.Name] = desc
	}
	return &Registry{ordered: descriptors, byName: byName}
}

// Specs exposes the catalog in the shape the chat providers need. All tools
// take no arguments.
func (r *Registry) Specs() []ai.ToolSpec {
	specs := make([]ai.ToolSpec, 0, len(r.ordered))
	for _, desc := range r.ordered {
		specs = append(specs, ai.ToolSpec{Name: desc.Name, Description: desc.Description})
	}
	return specs
}

// Execute resolves and runs a tool against the snapshot. Argument JSON from
// the model is parsed defensively and discarded: malformed arguments are
// treated as no arguments, never a failure. An unregistered name is an
// internal inconsistency (the catalog is closed) and returns ErrUnknownTool.
func (r *Registry) Execute(ctx context.Context, name string, argumentsJSON string, snap *model.PatientSnapshot) (string, error) {
	desc, ok := r.byName[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", appErr.ErrUnknownTool, name)
	}
	if argumentsJSON != "" {
		var ignored map[string]interface{}
		if err := json.Unmarshal([]byte(argumentsJSON), &ignored); err != nil {
			logutil.GetLogger(ctx).Debug("ignoring malformed tool arguments",
				zap.String("tool", name),
				zap.Error(err),
			)
		}
	}
	return desc.Handler(snap), nil
}
