package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"propertyvet/internal/screening/models"
	"propertyvet/internal/screening/service"
	dErrors "propertyvet/pkg/domain-errors"
	"propertyvet/pkg/testutil"
)

type stubService struct {
	submitted []models.CheckRequest
	submitErr error
	statuses  map[string]service.Status
}

func (s *stubService) Submit(_ context.Context, req models.CheckRequest) (string, error) {
	if s.submitErr != nil {
		return "", s.submitErr
	}
	s.submitted = append(s.submitted, req)
	return req.ID, nil
}

func (s *stubService) GetStatus(_ context.Context, id string) (service.Status, error) {
	if st, ok := s.statuses[id]; ok {
		return st, nil
	}
	return service.Status{}, dErrors.New(dErrors.CodeNotFound, "check "+id+" not found")
}

func (s *stubService) SystemStatus(context.Context) service.SystemStatus {
	return service.SystemStatus{Active: 1, Completed: 2, MaxConcurrent: 10, Providers: []service.ProviderStatus{}}
}

type HandlerSuite struct {
	suite.Suite
	svc    *stubService
	router chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.svc = &stubService{statuses: map[string]service.Status{}}
	s.router = chi.NewRouter()
	New(s.svc, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router)
}

func (s *HandlerSuite) do(method, path, body string) *httptest.ResponseRecorder {
	return testutil.DoRequest(s.router, testutil.NewRequestWithBody(s.T(), method, path, body))
}

func (s *HandlerSuite) decode(rec *httptest.ResponseRecorder) map[string]any {
	return *testutil.UnmarshalResponse[map[string]any](s.T(), rec)
}

const validBody = `{
	"id": "chk-100",
	"tier": "standard",
	"consent": true,
	"subject": {
		"full_name": "Ada Lovelace",
		"national_id": "123-45-6789",
		"date_of_birth": "1990-12-10",
		"address": "1 Analytical Way"
	}
}`

func (s *HandlerSuite) TestSubmit() {
	s.Run("accepted", func() {
		s.SetupTest()
		rec := s.do(http.MethodPost, "/v1/checks", validBody)

		s.Equal(http.StatusAccepted, rec.Code)
		body := s.decode(rec)
		s.Equal("chk-100", body["request_id"])
		s.Equal("PENDING", body["status"])
		s.Require().Len(s.svc.submitted, 1)
		s.Equal(models.TierStandard, s.svc.submitted[0].Tier)
	})

	s.Run("missing id is generated", func() {
		s.SetupTest()
		rec := s.do(http.MethodPost, "/v1/checks", strings.Replace(validBody, `"id": "chk-100",`, "", 1))

		s.Equal(http.StatusAccepted, rec.Code)
		s.Require().Len(s.svc.submitted, 1)
		s.Len(s.svc.submitted[0].ID, 36)
	})

	s.Run("empty body", func() {
		s.SetupTest()
		rec := s.do(http.MethodPost, "/v1/checks", "")

		s.Equal(http.StatusBadRequest, rec.Code)
		s.Equal("request body is required", s.decode(rec)["error_description"])
	})

	s.Run("unknown fields are rejected", func() {
		s.SetupTest()
		rec := s.do(http.MethodPost, "/v1/checks", `{"id":"x","ssn":"123"}`)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("oversized field", func() {
		s.SetupTest()
		long := strings.Repeat("a", maxFieldLength+1)
		rec := s.do(http.MethodPost, "/v1/checks", strings.Replace(validBody, "1 Analytical Way", long, 1))

		s.Equal(http.StatusBadRequest, rec.Code)
		s.Empty(s.svc.submitted)
	})
}

// =============================================================================
// Error Mapping
// =============================================================================
// Justification: only validation, duplicate and capacity errors are surfaced
// at submission, each with its own status.

func (s *HandlerSuite) TestSubmitErrors() {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", dErrors.New(dErrors.CodeValidation, "subject consent is required"), http.StatusBadRequest, "validation_error"},
		{"duplicate", dErrors.New(dErrors.CodeConflict, "check chk-100 is already in progress"), http.StatusConflict, "conflict"},
		{"capacity", dErrors.New(dErrors.CodeUnavailable, "too many checks in progress, retry later"), http.StatusServiceUnavailable, "unavailable"},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.SetupTest()
			s.svc.submitErr = tc.err

			rec := s.do(http.MethodPost, "/v1/checks", validBody)

			testutil.AssertStatusAndError(s.T(), rec, tc.status, tc.code)
		})
	}
}

func (s *HandlerSuite) TestGetStatus() {
	s.Run("found", func() {
		s.SetupTest()
		s.svc.statuses["chk-7"] = service.Status{
			RequestID: "chk-7",
			State:     models.LifecycleCompleted,
			Report:    &models.Report{RequestID: "chk-7", RiskLevel: models.RiskLow},
		}

		rec := s.do(http.MethodGet, "/v1/checks/chk-7", "")

		s.Equal(http.StatusOK, rec.Code)
		body := s.decode(rec)
		s.Equal("COMPLETED", body["status"])
		s.Equal("LOW", body["report"].(map[string]any)["risk_level"])
	})

	s.Run("not found", func() {
		s.SetupTest()
		rec := s.do(http.MethodGet, "/v1/checks/nope", "")
		testutil.AssertStatusAndError(s.T(), rec, http.StatusNotFound, "not_found")
	})
}

func (s *HandlerSuite) TestSystemStatus() {
	rec := s.do(http.MethodGet, "/v1/system/status", "")

	s.Equal(http.StatusOK, rec.Code)
	body := s.decode(rec)
	s.Equal(float64(1), body["active"])
	s.Equal(float64(10), body["max_concurrent"])
}
