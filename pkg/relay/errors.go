package relay

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/rhuss/streamgate/pkg/api"
)

// maxErrorBody bounds how much of a failed response body is read.
const maxErrorBody = 4096

// maxRawMessage bounds a raw-text error message.
const maxRawMessage = 500

var (
	errTimeout      = errors.New("relay: timeout")
	errDisconnected = errors.New("relay: channel disconnected")
)

// mapHTTPError converts a non-2xx upstream response into an http_error.
func mapHTTPError(resp *http.Response) *api.APIError {
	var data []byte
	if resp.Body != nil {
		data, _ = io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	}
	return api.NewHTTPError(resp.StatusCode, extractErrorMessage(data, resp.StatusCode))
}

// extractErrorMessage returns the best human-readable message from an
// error body: a JSON error.message, then a JSON message, then the raw text,
// then "HTTP <status>".
func extractErrorMessage(body []byte, status int) string {
	if gjson.ValidBytes(body) {
		doc := gjson.ParseBytes(body)
		for _, path := range []string{"error.message", "message"} {
			if v := doc.Get(path); v.Type == gjson.String && strings.TrimSpace(v.Str) != "" {
				return v.Str
			}
		}
	}

	if raw := strings.TrimSpace(string(body)); raw != "" {
		if len(raw) > maxRawMessage {
			raw = raw[:maxRawMessage] + "..."
		}
		return raw
	}
	return fmt.Sprintf("HTTP %d", status)
}

// mapNetworkError converts a transport failure into a connection_error.
func mapNetworkError(err error) *api.APIError {
	return api.NewConnectionError(fmt.Sprintf("upstream connection error: %s", err.Error()))
}
