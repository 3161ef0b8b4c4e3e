package providers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Error is the single upstream failure shape the orchestrator sees.
type Error struct {
	Message string
	Status  int
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%d: %s", e.Status, e.Message)
	}
	return e.Message
}

// errNoImage is returned when an otherwise successful response has no image.
func errNoImage(provider string) *Error {
	return &Error{Message: provider + " returned no image", Status: http.StatusBadGateway}
}

// errorNormalizer converts a non-2xx upstream response into *Error.
type errorNormalizer func(status int, body []byte) *Error

// genericErrorMessage extracts a message from the three upstream shapes seen
// in practice: {"error":"..."}, {"error":{"type","message"}} and
// {"message":"..."}.
func genericErrorMessage(body []byte) string {
	var payload struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return strings.TrimSpace(string(body))
	}

	if len(payload.Error) > 0 && string(payload.Error) != "null" {
		var asString string
		if err := json.Unmarshal(payload.Error, &asString); err == nil && asString != "" {
			return asString
		}
		var asObject struct {
			Type    string `json:"type"`
			Code    any    `json:"code"`
			Status  string `json:"status"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(payload.Error, &asObject); err == nil {
			switch {
			case asObject.Message != "" && asObject.Type != "":
				return asObject.Type + ": " + asObject.Message
			case asObject.Message != "":
				return asObject.Message
			case asObject.Type != "":
				return asObject.Type
			}
		}
	}
	return strings.TrimSpace(payload.Message)
}

func normalizeStatus(status int) int {
	if status < 400 || status > 599 {
		return http.StatusBadGateway
	}
	return status
}

func fallbackMessage(provider string, status int, msg string) string {
	if msg != "" {
		return msg
	}
	return fmt.Sprintf("%s request failed with status %d", provider, status)
}

func normalizeChatImageError(status int, body []byte) *Error {
	return &Error{Message: fallbackMessage("sora", status, genericErrorMessage(body)), Status: normalizeStatus(status)}
}

func normalizeFluxError(status int, body []byte) *Error {
	var payload struct {
		Detail string `json:"detail"`
	}
	msg := genericErrorMessage(body)
	if msg == "" || strings.HasPrefix(msg, "{") {
		if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != "" {
			msg = payload.Detail
		}
	}
	return &Error{Message: fallbackMessage("flux", status, msg), Status: normalizeStatus(status)}
}

func normalizeSeedreamError(status int, body []byte) *Error {
	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	msg := ""
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		msg = payload.Error.Message
		if payload.Error.Code != "" {
			msg = payload.Error.Code + ": " + msg
		}
	} else {
		msg = genericErrorMessage(body)
	}
	return &Error{Message: fallbackMessage("seedream", status, msg), Status: normalizeStatus(status)}
}
