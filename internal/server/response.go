package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/udit-pandey/kairon/internal/chathistory"
	"github.com/udit-pandey/kairon/internal/endpoint"
	"github.com/udit-pandey/kairon/internal/history"
	"github.com/udit-pandey/kairon/internal/remote"
)

// failureCode is the envelope error code for every handled failure,
// auth and domain alike.
const failureCode = 422

// Response is the uniform envelope both API surfaces return.
type Response struct {
	Success   bool    `json:"success"`
	Message   *string `json:"message"`
	Data      any     `json:"data"`
	ErrorCode int     `json:"error_code"`
}

// writeJSON writes v as JSON. Logs a warning if encoding fails.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("writeJSON: encoding response: %v", err)
	}
}

// writeData writes a success envelope. An empty message serializes
// as null.
func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

// writeFailure writes a failure envelope. Handled failures keep
// HTTP 200; clients judge the envelope, not the status line.
func writeFailure(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusOK, Response{
		Success:   false,
		Message:   &msg,
		ErrorCode: failureCode,
	})
}

// handleContextError detects context cancellation, returning true
// so the caller stops processing. It does NOT write a response:
// the withTimeout middleware owns the timeout reply, and writing
// here would race with its buffered response.
func handleContextError(_ http.ResponseWriter, err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// writeDomainError renders a domain failure into the envelope. The
// full error is logged server-side; the message sent out carries no
// backend-specific detail beyond what the taxonomy allows (a peer's
// own message is forwarded verbatim).
func writeDomainError(w http.ResponseWriter, err error) {
	if handleContextError(w, err) {
		return
	}
	log.Printf("history error: %v", err)

	var re *remote.EndpointError
	switch {
	case errors.As(err, &re):
		writeFailure(w, re.Message)
	case errors.Is(err, history.ErrInvalidSender):
		writeFailure(w, history.ErrInvalidSender.Error())
	case errors.Is(err, endpoint.ErrConfiguration):
		writeFailure(w, endpoint.ErrConfiguration.Error())
	case errors.Is(err, chathistory.ErrMalformedEvent):
		writeFailure(w, chathistory.ErrMalformedEvent.Error())
	case errors.Is(err, history.ErrDataSource):
		writeFailure(w, history.ErrDataSource.Error())
	default:
		writeFailure(w, "internal error")
	}
}
