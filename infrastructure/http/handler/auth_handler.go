package handler

import (
	"net/http"

	"github.com/fixora/condoguard/application/port/inbound"
	"github.com/fixora/condoguard/application/security/gate"
	"github.com/fixora/condoguard/application/usecase"
	domainerror "github.com/fixora/condoguard/domain/error"
	"github.com/fixora/condoguard/infrastructure/http/middleware"
	"github.com/fixora/condoguard/infrastructure/http/response"
)

// LoginEventSchema is the body accepted by POST /v1/auth/login-events.
var LoginEventSchema = gate.MustCompileSchema(`{
	"type": "object",
	"properties": {
		"identifier": {"type": "string", "minLength": 1, "maxLength": 254},
		"outcome":    {"type": "string", "enum": ["success", "failure"]}
	},
	"required": ["identifier", "outcome"],
	"additionalProperties": false
}`)

type LoginEventRequest struct {
	Identifier string `json:"identifier"`
	Outcome    string `json:"outcome"`
}

type LoginEventResponse struct {
	FailureStreak int  `json:"failureStreak"`
	BruteForce    bool `json:"bruteForce"`
}

// AuthHandler receives login outcomes from the authentication service and
// feeds the brute-force tracker.
type AuthHandler struct {
	audit      inbound.AuditLogger
	trustProxy bool
}

func NewAuthHandler(audit inbound.AuditLogger, trustProxy bool) *AuthHandler {
	return &AuthHandler{audit: audit, trustProxy: trustProxy}
}

// RecordLoginEvent expects the body already accepted by the validation gate.
func (h *AuthHandler) RecordLoginEvent(w http.ResponseWriter, r *http.Request) error {
	req, err := gate.Decode[LoginEventRequest](r.Context())
	if err != nil {
		return domainerror.ErrMalformedPayload(err)
	}

	meta := middleware.RequestMeta(r, h.trustProxy)
	var resp LoginEventResponse
	switch req.Outcome {
	case "failure":
		resp.FailureStreak = h.audit.RecordLoginFailure(r.Context(), req.Identifier, meta)
		resp.BruteForce = resp.FailureStreak >= usecase.BruteForceThreshold
	case "success":
		h.audit.RecordLoginSuccess(r.Context(), req.Identifier, meta)
	default:
		return domainerror.ErrInvalidRequest("outcome")
	}

	response.Success(w, http.StatusAccepted, "Login event recorded", resp)
	return nil
}
