package handler

import (
	"propertyvet/internal/screening/models"
	dErrors "propertyvet/pkg/domain-errors"
)

const maxFieldLength = 256

// SubmitCheckRequest is the HTTP request body for POST /v1/checks. ID is
// optional; one is generated when it is omitted.
type SubmitCheckRequest struct {
	ID         string         `json:"id"`
	Tier       string         `json:"tier"`
	Consent    bool           `json:"consent"`
	PropertyID string         `json:"property_id"`
	Callback   string         `json:"callback"`
	Subject    SubjectRequest `json:"subject"`
}

type SubjectRequest struct {
	FullName    string `json:"full_name"`
	NationalID  string `json:"national_id"`
	DateOfBirth string `json:"date_of_birth"`
	Address     string `json:"address"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
}

// Validate only enforces size limits; field rules live on models.CheckRequest
// and are applied by the controller.
func (r *SubmitCheckRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}

	fields := map[string]string{
		"tier":                  r.Tier,
		"property_id":           r.PropertyID,
		"callback":              r.Callback,
		"subject.full_name":     r.Subject.FullName,
		"subject.national_id":   r.Subject.NationalID,
		"subject.date_of_birth": r.Subject.DateOfBirth,
		"subject.address":       r.Subject.Address,
		"subject.email":         r.Subject.Email,
		"subject.phone":         r.Subject.Phone,
	}
	for name, v := range fields {
		if len(v) > maxFieldLength {
			return dErrors.New(dErrors.CodeValidation, name+" is too long")
		}
	}
	return nil
}

// ToModel converts the body into a check request.
func (r *SubmitCheckRequest) ToModel() models.CheckRequest {
	return models.CheckRequest{
		ID:         r.ID,
		Tier:       models.Tier(r.Tier),
		Consent:    r.Consent,
		PropertyID: r.PropertyID,
		Callback:   r.Callback,
		Subject: models.Subject{
			FullName:    r.Subject.FullName,
			NationalID:  r.Subject.NationalID,
			DateOfBirth: r.Subject.DateOfBirth,
			Address:     r.Subject.Address,
			Email:       r.Subject.Email,
			Phone:       r.Subject.Phone,
		},
	}
}
