package mw

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func schemaTestHandler() http.Handler {
	return SchemaVersion(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
}

func TestSchemaVersion(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		header     string
		upgrade    bool
		wantStatus int
		wantServed bool
	}{
		{name: "no version gets current", method: http.MethodGet, path: "/v1/mentor/status", wantStatus: http.StatusNoContent, wantServed: true},
		{name: "current version accepted", method: http.MethodPost, path: "/v1/mentor/start", header: "1", wantStatus: http.StatusNoContent, wantServed: true},
		{name: "whitespace trimmed", method: http.MethodPost, path: "/v1/mentor/start", header: " 1 ", wantStatus: http.StatusNoContent, wantServed: true},
		{name: "newer version rejected", method: http.MethodGet, path: "/v1/mentor/status", header: "2", wantStatus: http.StatusBadRequest},
		{name: "garbage rejected", method: http.MethodGet, path: "/v1/mentor/status", header: "v1", wantStatus: http.StatusBadRequest},
		{name: "upgrade header checked", method: http.MethodGet, path: "/v1/live", header: "2", upgrade: true, wantStatus: http.StatusBadRequest},
		{name: "upgrade query checked", method: http.MethodGet, path: "/v1/live?schema=2", upgrade: true, wantStatus: http.StatusBadRequest},
		{name: "upgrade query accepted", method: http.MethodGet, path: "/v1/live?schema=1", upgrade: true, wantStatus: http.StatusNoContent, wantServed: true},
		{name: "query ignored without upgrade", method: http.MethodGet, path: "/v1/mentor/status?schema=2", wantStatus: http.StatusNoContent, wantServed: true},
		{name: "non v1 path bypassed", method: http.MethodGet, path: "/healthz", header: "2", wantStatus: http.StatusNoContent},
		{name: "options bypassed", method: http.MethodOptions, path: "/v1/mentor/start", header: "2", wantStatus: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil).WithContext(WithRequestID(context.Background(), "req_test"))
			if tt.header != "" {
				req.Header.Set(SchemaHeader, tt.header)
			}
			if tt.upgrade {
				req.Header.Set("Connection", "keep-alive, Upgrade")
				req.Header.Set("Upgrade", "websocket")
			}
			rr := httptest.NewRecorder()
			schemaTestHandler().ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Fatalf("status=%d want %d body=%q", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if served := rr.Header().Get(SchemaHeader) == ServedSchema; served != tt.wantServed {
				t.Fatalf("served header=%q", rr.Header().Get(SchemaHeader))
			}
		})
	}
}

func TestSchemaVersion_RejectionBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/mentor/status", nil).WithContext(WithRequestID(context.Background(), "req_abc123"))
	req.Header.Set(SchemaHeader, "7")
	rr := httptest.NewRecorder()
	schemaTestHandler().ServeHTTP(rr, req)

	body := rr.Body.String()
	for _, want := range []string{
		`"type":"invalid_request_error"`,
		`"code":"unsupported_schema"`,
		SchemaHeader,
		"serves " + ServedSchema,
		`"request_id":"req_abc123"`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in %q", want, body)
		}
	}
}
