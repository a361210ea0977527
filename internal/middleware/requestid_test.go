package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	tests := []struct {
		name    string
		inbound string
		keep    bool
	}{
		{name: "kept", inbound: "batch-42.retry:1", keep: true},
		{name: "missing", inbound: ""},
		{name: "header injection", inbound: "abc\r\nX-Evil: 1"},
		{name: "too long", inbound: strings.Repeat("a", 129)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.inbound != "" {
				req.Header[RequestIDHeader] = []string{tc.inbound}
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
			if tc.keep {
				assert.Equal(t, tc.inbound, seen)
				return
			}
			_, err := uuid.Parse(seen)
			assert.NoError(t, err)
		})
	}
}
