package models

import (
	"net/url"
	"strings"
	"time"

	dErrors "propertyvet/pkg/domain-errors"
)

// DateLayout is the accepted date-of-birth format.
const DateLayout = "2006-01-02"

// Subject identifies the person being screened.
type Subject struct {
	FullName    string `json:"full_name"`
	NationalID  string `json:"national_id"`
	DateOfBirth string `json:"date_of_birth"`
	Address     string `json:"address"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

// CheckRequest is an immutable, validated screening request. ID is the
// idempotency key.
type CheckRequest struct {
	ID         string  `json:"id"`
	Subject    Subject `json:"subject"`
	Tier       Tier    `json:"tier"`
	Consent    bool    `json:"consent"`
	PropertyID string  `json:"property_id,omitempty"`
	Callback   string  `json:"callback,omitempty"`
}

// Normalized returns a copy with every string field trimmed and the tier
// lowercased.
func (r CheckRequest) Normalized() CheckRequest {
	r.ID = strings.TrimSpace(r.ID)
	r.Tier = Tier(strings.ToLower(strings.TrimSpace(string(r.Tier))))
	r.PropertyID = strings.TrimSpace(r.PropertyID)
	r.Callback = strings.TrimSpace(r.Callback)
	r.Subject.FullName = strings.Join(strings.Fields(r.Subject.FullName), " ")
	r.Subject.NationalID = strings.TrimSpace(r.Subject.NationalID)
	r.Subject.DateOfBirth = strings.TrimSpace(r.Subject.DateOfBirth)
	r.Subject.Address = strings.TrimSpace(r.Subject.Address)
	r.Subject.Email = strings.TrimSpace(r.Subject.Email)
	r.Subject.Phone = strings.TrimSpace(r.Subject.Phone)
	return r
}

// Validate enforces the dispatch preconditions. It does not normalize; call
// Normalized first.
func (r CheckRequest) Validate() error {
	if r.ID == "" {
		return dErrors.New(dErrors.CodeValidation, "id is required")
	}
	if len(r.ID) > 128 {
		return dErrors.New(dErrors.CodeValidation, "id must be at most 128 characters")
	}
	if !r.Consent {
		return dErrors.New(dErrors.CodeValidation, "subject consent is required")
	}
	if !r.Tier.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "tier must be one of basic, standard, premium, enterprise")
	}

	s := r.Subject
	switch {
	case s.FullName == "":
		return dErrors.New(dErrors.CodeValidation, "subject.full_name is required")
	case s.NationalID == "":
		return dErrors.New(dErrors.CodeValidation, "subject.national_id is required")
	case s.DateOfBirth == "":
		return dErrors.New(dErrors.CodeValidation, "subject.date_of_birth is required")
	case s.Address == "":
		return dErrors.New(dErrors.CodeValidation, "subject.address is required")
	}

	dob, err := time.Parse(DateLayout, s.DateOfBirth)
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, "subject.date_of_birth must be YYYY-MM-DD")
	}
	if dob.After(time.Now()) {
		return dErrors.New(dErrors.CodeValidation, "subject.date_of_birth is in the future")
	}

	if r.Callback != "" {
		u, err := url.Parse(r.Callback)
		if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return dErrors.New(dErrors.CodeValidation, "callback must be an absolute http(s) URL")
		}
	}
	return nil
}
