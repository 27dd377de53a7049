package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/carelink/clinassist/internal/config"
	"github.com/carelink/clinassist/internal/fhir"
	"github.com/carelink/clinassist/internal/model"
	"github.com/carelink/clinassist/internal/pkg/errcode"
	"github.com/carelink/clinassist/internal/pkg/response"
	"github.com/carelink/clinassist/internal/session"
)

type PatientHandler struct {
	sess *session.Session
	fhir *fhir.Client
}

// NewPatientHandler takes a nil fhir client when no FHIR backend is
// configured; loading by resource ids is then rejected.
func NewPatientHandler(sess *session.Session, fhirClient *fhir.Client) *PatientHandler {
	return &PatientHandler{sess: sess, fhir: fhirClient}
}

type loadPatientRequest struct {
	Snapshot  *model.PatientSnapshot `json:"snapshot"`
	Resources *config.ResourceIDs    `json:"resources"`
}

// Load installs a patient either from an inline snapshot or by fetching and
// flattening the referenced FHIR resources. Either way the conversation
// window starts fresh.
func (h *PatientHandler) Load(c *gin.Context) {
	var req loadPatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	switch {
	case req.Snapshot != nil:
		h.sess.SetSnapshot(req.Snapshot)
	case req.Resources != nil:
		if h.fhir == nil {
			response.Error(c, errcode.ErrInvalid, "fhir backend not configured")
			return
		}
		if req.Resources.Patient == "" || req.Resources.Coverage == "" {
			response.Error(c, errcode.ErrInvalid, "patient and coverage resource ids are required")
			return
		}
		snap, err := h.fhir.FetchSnapshot(c.Request.Context(), *req.Resources)
		if err != nil {
			handleError(c, err)
			return
		}
		h.sess.SetSnapshot(snap)
	default:
		response.Error(c, errcode.ErrInvalid, "snapshot or resources is required")
		return
	}
	snap, err := h.sess.Snapshot()
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"patient": snap})
}

func (h *PatientHandler) Get(c *gin.Context) {
	snap, err := h.sess.Snapshot()
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"patient": snap})
}
