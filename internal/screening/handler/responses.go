package handler

import (
	"propertyvet/internal/screening/models"
)

// SubmitCheckResponse is the HTTP response for POST /v1/checks.
type SubmitCheckResponse struct {
	RequestID string           `json:"request_id"`
	Status    models.Lifecycle `json:"status"`
}
