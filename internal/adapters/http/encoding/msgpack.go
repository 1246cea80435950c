package encoding

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

const ContentTypeMsgpack = "application/msgpack"
const ContentTypeJSON = "application/json"

// NegotiateContentType checks the format query parameter and the Accept header
// and returns the preferred content type. Browsers cannot set headers on a
// websocket handshake, so ?format=msgpack takes precedence.
func NegotiateContentType(r *http.Request) string {
	switch r.URL.Query().Get("format") {
	case "msgpack":
		return ContentTypeMsgpack
	case "json":
		return ContentTypeJSON
	}

	accept := r.Header.Get("Accept")
	if accept == "" {
		return ContentTypeJSON
	}

	// Check if MessagePack is explicitly requested
	if strings.Contains(accept, ContentTypeMsgpack) {
		return ContentTypeMsgpack
	}

	return ContentTypeJSON
}

// Marshal encodes v in the given content type. MessagePack output reuses the
// json struct tags so both encodings carry the same keys.
func Marshal(contentType string, v any) ([]byte, error) {
	if contentType != ContentTypeMsgpack {
		return json.Marshal(v)
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write encodes data in the negotiated content type.
func Write(w http.ResponseWriter, r *http.Request, status int, data any) error {
	if NegotiateContentType(r) == ContentTypeMsgpack {
		return WriteMsgpack(w, status, data)
	}
	w.Header().Set("Content-Type", ContentTypeJSON)
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteMsgpack writes a MessagePack response with the given status code
func WriteMsgpack(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", ContentTypeMsgpack)
	w.WriteHeader(status)

	encoder := msgpack.NewEncoder(w)
	encoder.SetCustomStructTag("json")
	return encoder.Encode(data)
}

// ReadMsgpack reads MessagePack data from the request body
func ReadMsgpack(r *http.Request, target any) error {
	decoder := msgpack.NewDecoder(r.Body)
	decoder.SetCustomStructTag("json")
	return decoder.Decode(target)
}
