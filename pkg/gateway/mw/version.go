package mw

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/vango-go/vai-mentor/pkg/core"
	"github.com/vango-go/vai-mentor/pkg/core/live"
)

const (
	// SchemaHeader names the snapshot schema version. Clients send the one
	// they understand; /v1 responses carry the one served.
	SchemaHeader = "X-VAI-Mentor-Schema"
	schemaQuery  = "schema"
)

// ServedSchema is live.SnapshotVersion in header form.
var ServedSchema = strconv.Itoa(live.SnapshotVersion)

// SchemaVersion rejects /v1 requests that ask for a snapshot schema this
// server does not produce. Browsers cannot set headers on a websocket
// upgrade, so an upgrade may name the version in the schema query parameter
// instead. A request that names no version gets the current one.
func SchemaVersion(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || !isV1Path(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		if requested, ok := requestedSchema(r); ok && requested != ServedSchema {
			reqID, _ := RequestIDFrom(r.Context())
			writeJSONError(w, http.StatusBadRequest, &core.Error{
				Type:      core.ErrInvalidRequest,
				Message:   "unsupported snapshot schema " + strconv.Quote(requested) + " in " + SchemaHeader + "; this server serves " + ServedSchema,
				Code:      "unsupported_schema",
				RequestID: reqID,
			})
			return
		}

		w.Header().Set(SchemaHeader, ServedSchema)
		next.ServeHTTP(w, r)
	})
}

func requestedSchema(r *http.Request) (string, bool) {
	if v := strings.TrimSpace(r.Header.Get(SchemaHeader)); v != "" {
		return v, true
	}
	if isWebSocketUpgrade(r) {
		if v := strings.TrimSpace(r.URL.Query().Get(schemaQuery)); v != "" {
			return v, true
		}
	}
	return "", false
}

func isV1Path(path string) bool {
	return path == "/v1" || strings.HasPrefix(path, "/v1/")
}

func isWebSocketUpgrade(r *http.Request) bool {
	if !headerHasToken(r.Header, "Connection", "upgrade") {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(r.Header.Get("Upgrade")), "websocket")
}

func headerHasToken(h http.Header, name, token string) bool {
	for _, value := range h.Values(name) {
		for _, part := range strings.Split(value, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}
