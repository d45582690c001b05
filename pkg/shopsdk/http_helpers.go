package shopsdk

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 32 << 20

// expiredTokenCode is the platform code for an expired access token.
const expiredTokenCode = 105002

// doRequest executes req and returns the status code and body.
func doRequest(c *http.Client, req *http.Request) (int, []byte, error) {
	resp, err := c.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response body: %w", err)
	}
	return resp.StatusCode, body, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// envelopeOf extracts code and message from a JSON body. Non-JSON bodies
// yield zero values.
func envelopeOf(body []byte) (code int, message string) {
	var env struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &env) != nil {
		return 0, ""
	}
	return env.Code, env.Message
}

// isExpirySignal reports whether a rejected call indicates that the access
// token expired rather than some other failure. The "expired" wording only
// counts in the envelope message of a 400 or 401.
func isExpirySignal(status int, body []byte) bool {
	if status == http.StatusUnauthorized {
		return true
	}
	code, message := envelopeOf(body)
	if code == expiredTokenCode {
		return true
	}
	if status != http.StatusBadRequest {
		return false
	}
	return strings.Contains(strings.ToLower(message), "expired")
}

func requestFailed(status int, body []byte, retried bool) *RequestFailedError {
	code, message := envelopeOf(body)
	return &RequestFailedError{
		StatusCode: status,
		Body:       string(body),
		Code:       code,
		Message:    message,
		Retried:    retried,
	}
}
