package auth

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	dErrors "propertyvet/pkg/domain-errors"
	"propertyvet/pkg/requestcontext"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type AuthSuite struct {
	suite.Suite
	validator *HMACValidator
	handler   http.Handler
	operator  string
}

func TestAuthSuite(t *testing.T) {
	suite.Run(t, new(AuthSuite))
}

func (s *AuthSuite) SetupTest() {
	s.validator = NewHMACValidator("test-key", "propertyvet")
	s.operator = ""
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.handler = RequireAuth(s.validator, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.operator = requestcontext.Operator(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
}

func (s *AuthSuite) serve(authHeader string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, "/v1/checks/abc", nil)
	if authHeader != "" {
		r.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, r)
	return w
}

func (s *AuthSuite) TestValidToken() {
	token, err := s.validator.Issue("leasing-ops", "checks:write", time.Minute)
	s.Require().NoError(err)

	w := s.serve("Bearer " + token)

	s.Equal(http.StatusNoContent, w.Code)
	s.Equal("leasing-ops", s.operator)
}

func (s *AuthSuite) TestRejections() {
	s.Run("missing header", func() {
		w := s.serve("")
		s.Equal(http.StatusUnauthorized, w.Code)
		s.Contains(w.Body.String(), "unauthorized")
	})

	s.Run("wrong scheme", func() {
		w := s.serve("Basic Zm9vOmJhcg==")
		s.Equal(http.StatusUnauthorized, w.Code)
	})

	s.Run("token signed with another key", func() {
		other := NewHMACValidator("other-key", "propertyvet")
		token, err := other.Issue("mallory", "", time.Minute)
		s.Require().NoError(err)

		w := s.serve("Bearer " + token)
		s.Equal(http.StatusUnauthorized, w.Code)
		s.Empty(s.operator)
	})
}

func TestValidateToken_Expired(t *testing.T) {
	v := NewHMACValidator("k", "propertyvet")
	token, err := v.Issue("ops", "", -time.Minute)
	require.NoError(t, err)

	_, err = v.ValidateToken(token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	assert.Contains(t, err.Error(), "expired")
}

func TestValidateToken_WrongIssuer(t *testing.T) {
	token, err := NewHMACValidator("k", "someone-else").Issue("ops", "", time.Minute)
	require.NoError(t, err)

	_, err = NewHMACValidator("k", "propertyvet").ValidateToken(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}
