package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"nivaran/pkg/requestcontext"
)

func TestRequestIDHonorsInboundHeader(t *testing.T) {
	var captured string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = requestcontext.RequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "upstream-42")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "upstream-42", captured)
	assert.Equal(t, "upstream-42", rr.Header().Get("X-Request-Id"))
}

func TestRequestIDGeneratesWhenMissing(t *testing.T) {
	var captured string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = requestcontext.RequestID(r.Context())
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEmpty(t, captured)
	assert.Equal(t, captured, rr.Header().Get("X-Request-Id"))
}

func TestClientMetadataAnonymizesAddress(t *testing.T) {
	cases := []struct {
		name       string
		remoteAddr string
		wantIP     string
	}{
		{"ipv4 with port", "203.0.113.77:54321", "203.0.113.0/24"},
		{"bare ipv4 after real-ip resolution", "203.0.113.77", "203.0.113.0/24"},
		{"ipv6 with port", "[2001:db8:abcd:12::1]:443", "2001:db8:abcd::/48"},
		{"unparseable address", "not-an-address", "invalid"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var gotIP, gotUA string
			h := ClientMetadata(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotIP = requestcontext.ClientIP(r.Context())
				gotUA = requestcontext.UserAgent(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remoteAddr
			req.Header.Set("User-Agent", "nivaran-test/1.0")
			h.ServeHTTP(httptest.NewRecorder(), req)

			assert.Equal(t, tc.wantIP, gotIP, "raw address must never reach the context")
			assert.Equal(t, "nivaran-test/1.0", gotUA)
		})
	}
}
