package metadata

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"propertyvet/pkg/requestcontext"

	"github.com/stretchr/testify/assert"
)

func TestClientIPFromRequest(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		remote   string
		expected string
	}{
		{name: "first forwarded-for entry", headers: map[string]string{"X-Forwarded-For": "10.0.0.1, 10.0.0.2"}, remote: "1.1.1.1:80", expected: "10.0.0.1"},
		{name: "real ip header", headers: map[string]string{"X-Real-IP": " 10.0.0.9 "}, remote: "1.1.1.1:80", expected: "10.0.0.9"},
		{name: "remote addr ipv4", remote: "192.168.1.4:5555", expected: "192.168.1.4"},
		{name: "remote addr ipv6", remote: "[::1]:5555", expected: "::1"},
		{name: "nothing available", remote: "", expected: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.expected, ClientIPFromRequest(r))
		})
	}
}

func TestClientMetadata(t *testing.T) {
	const chrome = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.109 Safari/537.36"

	var gotIP, gotUA, gotFamily string
	h := ClientMetadata(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIP = requestcontext.ClientIP(r.Context())
		gotUA = requestcontext.UserAgent(r.Context())
		gotFamily = requestcontext.UserAgentFamily(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Real-IP", "203.0.113.7")
	r.Header.Set("User-Agent", chrome)
	h.ServeHTTP(httptest.NewRecorder(), r)

	assert.Equal(t, "203.0.113.7", gotIP)
	assert.Equal(t, chrome, gotUA)
	assert.Equal(t, "Chrome 120", gotFamily)
}

func TestUserAgentFamily_Empty(t *testing.T) {
	assert.Equal(t, "unknown", UserAgentFamily("  "))
}
