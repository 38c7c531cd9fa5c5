package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/fixora/condoguard/application/security/pipeline"
	domainerror "github.com/fixora/condoguard/domain/error"
)

type Envelope struct {
	Status  bool        `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// RejectionBody is what a rejected request receives. It never names the
// check that failed beyond the generic messages.
type RejectionBody struct {
	Message string   `json:"message"`
	Errors  []string `json:"errors"`
}

func writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

func WriteJSON(w http.ResponseWriter, statusCode int, status bool, message string, data interface{}) {
	writeJSON(w, statusCode, Envelope{
		Status:  status,
		Message: message,
		Data:    data,
	})
}

func Success(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	WriteJSON(w, statusCode, true, message, data)
}

func Error(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, false, message, nil)
}

// Rejection writes a pipeline rejection, with Retry-After in whole seconds
// when set.
func Rejection(w http.ResponseWriter, rej *pipeline.Rejection) {
	if rej.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(int64(rej.RetryAfter.Seconds()), 10))
	}
	errs := rej.Errors
	if errs == nil {
		errs = []string{}
	}
	writeJSON(w, rej.Status, RejectionBody{Message: rej.Message, Errors: errs})
}

// AppError writes err as an ErrorResponse. Errors outside the catalog are
// reported as internal errors without their text.
func AppError(w http.ResponseWriter, err error, traceID string) {
	var appErr *domainerror.AppError
	if !errors.As(err, &appErr) {
		appErr = domainerror.ErrInternalServerError("", err)
	}
	writeJSON(w, domainerror.GetHTTPStatusCode(appErr), domainerror.NewErrorResponse(appErr, traceID))
}

func MethodNotAllowed(w http.ResponseWriter) {
	Error(w, http.StatusMethodNotAllowed, "Method not allowed")
}

func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, message)
}
