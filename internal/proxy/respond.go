package proxy

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/tanelvakker/qwtimers/internal/errors"
)

// Client-facing failure messages.
const (
	msgLoginSetupFailed   = "Login session setup failed."
	msgLoginRequestFailed = "Upstream login request failed."
	msgLoginTimedOut      = "Login request timed out."
	msgLoginInternal      = "Login proxy error."
	msgLoginTooLarge      = "Upstream login response too large."
	msgForwardFailed      = "Upstream request failed."
)

type failureBody struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
}

// writeFailure answers the client with the JSON body the browser client
// expects from the upstream on failure.
func writeFailure(w http.ResponseWriter, err *errors.UpstreamError) {
	body, _ := json.Marshal(failureBody{Status: false, Message: err.Message})
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(err.StatusCode())
	_, _ = w.Write(body)
}
