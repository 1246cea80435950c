package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/longregen/helpdesk/internal/adapters/http/dto"
	"github.com/longregen/helpdesk/internal/adapters/http/encoding"
)

const maxBodyBytes = 1 << 20

// respond encodes data as JSON or MessagePack, whichever the client negotiated.
func respond(w http.ResponseWriter, r *http.Request, status int, data any) {
	if err := encoding.Write(w, r, status, data); err != nil {
		slog.Debug("http: response write failed", "path", r.URL.Path, "error", err)
	}
}

func respondError(w http.ResponseWriter, r *http.Request, kind, message string, status int) {
	respond(w, r, status, dto.NewErrorResponse(kind, message, status))
}

// decodeBody reads a JSON or MessagePack request body, chosen by Content-Type.
func decodeBody[T any](w http.ResponseWriter, r *http.Request) (*T, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req T
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), encoding.ContentTypeMsgpack) {
		err = encoding.ReadMsgpack(r, &req)
	} else {
		err = json.NewDecoder(r.Body).Decode(&req)
	}
	if err != nil {
		respondError(w, r, "invalid_request", "Invalid request body", http.StatusBadRequest)
		return nil, false
	}
	return &req, true
}
