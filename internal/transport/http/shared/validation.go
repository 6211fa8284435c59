package shared

import (
	"errors"
	"net/http"

	"dpdp/internal/platform/validate"
	"dpdp/internal/transport/http/api"
)

type ValidationIssue = validate.Issue

// FailValidation writes the admin 400 envelope listing every field issue.
func FailValidation(w http.ResponseWriter, requestID string, issues []ValidationIssue) {
	api.FailWithDetails(
		w,
		http.StatusBadRequest,
		"validation_error",
		"payload validation failed",
		map[string]any{"fields": issues},
		requestID,
	)
}

// RejectValidation reports err when it is a *validate.Error and says
// whether it did.
func RejectValidation(w http.ResponseWriter, requestID string, err error) bool {
	var verr *validate.Error
	if !errors.As(err, &verr) {
		return false
	}
	FailValidation(w, requestID, verr.Issues)
	return true
}
