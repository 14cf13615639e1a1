package util

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error is an error with a detailed log message and a user-facing message
type Error struct {
	LogMsg     string
	SimpleMsg  string
	Response   string
	URL        string
	HTTPStatus int
}

func (e *Error) Error() string {
	if e.SimpleMsg != "" {
		return e.SimpleMsg
	}
	return e.LogMsg
}

// Log writes the detailed form of the error and returns it for the caller.
// prepend, when given, is placed in front of the simple message.
func (e *Error) Log(ctx LogContext, prepend string) error {
	if prepend != "" {
		e.SimpleMsg = prepend + ": " + e.SimpleMsg
	}
	message := e.SimpleMsg
	if e.LogMsg != "" {
		message += "; " + e.LogMsg
	}
	if e.URL != "" {
		message += fmt.Sprintf("; URL: %s", e.URL)
	}
	if e.HTTPStatus != 0 {
		message += fmt.Sprintf("; status: %d", e.HTTPStatus)
	}
	if e.Response != "" {
		message += "; response: " + e.Response
	}
	entry(ctx).Error(message)
	return e
}

// HTTPErr is an error carrying the status the HTTP layer should answer with
type HTTPErr struct {
	Status  int
	Message string
}

func (err HTTPErr) Error() string {
	return fmt.Sprintf("%d: %s", err.Status, err.Message)
}

// StatusOf picks the HTTP status for err, falling back to fallback
func StatusOf(err error, fallback int) int {
	var httpErr HTTPErr
	if errors.As(err, &httpErr) {
		return httpErr.Status
	}
	var utilErr *Error
	if errors.As(err, &utilErr) && utilErr.HTTPStatus >= 400 {
		return utilErr.HTTPStatus
	}
	return fallback
}

type errorBody struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

// HTTPError writes message as a JSON error body with the given status
func HTTPError(r *http.Request, w http.ResponseWriter, ctx LogContext, message string, status int) {
	LogAudit(ctx, LogAuditInput{Actor: AppName, Action: r.Method + " response", Actee: r.URL.Path, Message: message, Severity: ALERT})
	WriteJSON(w, status, errorBody{Error: message, Status: status})
}

// WriteJSON serializes body with the given status
func WriteJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		LogAlert(&BasicLogContext{}, "Failed to write JSON response: "+err.Error())
	}
}
