package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	dErrors "propertyvet/pkg/domain-errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteError(t *testing.T) {
	t.Run("internal error omits description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInternal, "db failed"))

		require.Equal(t, http.StatusInternalServerError, w.Code)
		var body map[string]string
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "internal_error", body["error"])
		_, ok := body["error_description"]
		assert.False(t, ok, "internal errors must not leak a description")
	})

	t.Run("unclassified error is internal", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, errors.New("raw"))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("bad request includes description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid input"))

		require.Equal(t, http.StatusBadRequest, w.Code)
		var body map[string]string
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "bad_request", body["error"])
		assert.Equal(t, "invalid input", body["error_description"])
	})
}

func TestStatusFor(t *testing.T) {
	cases := map[dErrors.Code]int{
		dErrors.CodeValidation:  http.StatusBadRequest,
		dErrors.CodeNotFound:    http.StatusNotFound,
		dErrors.CodeConflict:    http.StatusConflict,
		dErrors.CodeUnavailable: http.StatusServiceUnavailable,
		dErrors.CodeTimeout:     http.StatusGatewayTimeout,
		dErrors.CodeInternal:    http.StatusInternalServerError,
	}
	for code, status := range cases {
		assert.Equal(t, status, StatusFor(code), code)
	}
}

type pingRequest struct {
	Name string `json:"name"`
}

func (p *pingRequest) Validate() error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	return nil
}

func TestDecodeAndPrepare(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	decode := func(body string) (*pingRequest, *httptest.ResponseRecorder, bool) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		w := httptest.NewRecorder()
		req, ok := DecodeAndPrepare[pingRequest](w, r, logger, context.Background(), "req-1")
		return req, w, ok
	}

	t.Run("valid body is trimmed", func(t *testing.T) {
		req, _, ok := decode(`{"name":"  alice "}`)
		require.True(t, ok)
		assert.Equal(t, "alice", req.Name)
	})

	t.Run("validation failure", func(t *testing.T) {
		_, w, ok := decode(`{"name":" "}`)
		require.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "validation_error")
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		_, w, ok := decode(`{"name":"a","extra":1}`)
		require.False(t, ok)
		assert.Contains(t, w.Body.String(), "bad_request")
	})

	t.Run("empty body", func(t *testing.T) {
		_, w, ok := decode(``)
		require.False(t, ok)
		assert.Contains(t, w.Body.String(), "request body is required")
	})
}
