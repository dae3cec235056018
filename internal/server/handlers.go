package server

import (
	"net/http"

	"github.com/udit-pandey/kairon/internal/chathistory"
	"github.com/udit-pandey/kairon/internal/history"
)

// parseMonth extracts the window parameter, writing a failure
// envelope when it is out of range. Absent means one month.
func parseMonth(w http.ResponseWriter, r *http.Request) (history.Window, bool) {
	win, err := history.ParseWindow(r.URL.Query().Get("month"))
	if err != nil {
		writeFailure(w, err.Error())
		return 0, false
	}
	return win, true
}

// --- Tenant-facing API (facade-backed) ---

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	win, ok := parseMonth(w, r)
	if !ok {
		return
	}
	users, err := s.facade.ListUsers(r.Context(), s.tenantOf(r), win)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, map[string]any{"users": users})
}

func (s *Server) handleUserHistory(w http.ResponseWriter, r *http.Request) {
	win, ok := parseMonth(w, r)
	if !ok {
		return
	}
	it, err := s.facade.UserHistory(
		r.Context(), s.tenantOf(r), win, r.PathValue("sender"),
	)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	records := []chathistory.DisplayRecord{}
	for it.Next() {
		records = append(records, it.Record())
	}
	if err := it.Err(); err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, map[string]any{"history": records})
}

func (s *Server) handleUserMetrics(w http.ResponseWriter, r *http.Request) {
	win, ok := parseMonth(w, r)
	if !ok {
		return
	}
	users, err := s.facade.UserMetrics(r.Context(), s.tenantOf(r), win)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, map[string]any{"users": users})
}

func (s *Server) handleFallback(w http.ResponseWriter, r *http.Request) {
	win, ok := parseMonth(w, r)
	if !ok {
		return
	}
	metric, err := s.facade.VisitorFallback(r.Context(), s.tenantOf(r), win)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, metric)
}

func (s *Server) handleSteps(w http.ResponseWriter, r *http.Request) {
	win, ok := parseMonth(w, r)
	if !ok {
		return
	}
	steps, err := s.facade.ConversationSteps(r.Context(), s.tenantOf(r), win)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, map[string]any{"conversation_steps": steps})
}

func (s *Server) handleTime(w http.ResponseWriter, r *http.Request) {
	win, ok := parseMonth(w, r)
	if !ok {
		return
	}
	times, err := s.facade.ConversationTime(r.Context(), s.tenantOf(r), win)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, map[string]any{"conversation_time": times})
}

// --- Peer protocol (local engine over this instance's store) ---
//
// The peer surface returns raw events for the history listing; the
// querying side's facade runs enrichment itself.

func (s *Server) handlePeerUsers(w http.ResponseWriter, r *http.Request) {
	win, ok := parseMonth(w, r)
	if !ok {
		return
	}
	users, err := s.newEngine().ListUsers(r.Context(), win)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, map[string]any{"users": users})
}

func (s *Server) handlePeerUserHistory(w http.ResponseWriter, r *http.Request) {
	win, ok := parseMonth(w, r)
	if !ok {
		return
	}
	events, err := s.newEngine().UserHistory(
		r.Context(), win, r.PathValue("sender"),
	)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, map[string]any{"history": events})
}

func (s *Server) handlePeerUserMetrics(w http.ResponseWriter, r *http.Request) {
	win, ok := parseMonth(w, r)
	if !ok {
		return
	}
	users, err := s.newEngine().UserMetrics(r.Context(), win)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, map[string]any{"users": users})
}

func (s *Server) handlePeerFallback(w http.ResponseWriter, r *http.Request) {
	win, ok := parseMonth(w, r)
	if !ok {
		return
	}
	metric, err := s.newEngine().VisitorFallback(r.Context(), win)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, metric)
}

func (s *Server) handlePeerSteps(w http.ResponseWriter, r *http.Request) {
	win, ok := parseMonth(w, r)
	if !ok {
		return
	}
	steps, err := s.newEngine().ConversationSteps(r.Context(), win)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, map[string]any{"conversation_steps": steps})
}

func (s *Server) handlePeerTime(w http.ResponseWriter, r *http.Request) {
	win, ok := parseMonth(w, r)
	if !ok {
		return
	}
	times, err := s.newEngine().ConversationTime(r.Context(), win)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, map[string]any{"conversation_time": times})
}
