package server

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"encoding/json"
	"fmt"
	"net/http"
)

type sendMessageRequest struct {
	Message   string `json:"message"`
	Body      string `json:"body"`
	Sender    string `json:"sender"`
	Target    string `json:"target"`
	IsPrivate bool   `json:"isPrivate"`
}

// toCommand accepts both "message" and "body" for the text.
func (r sendMessageRequest) toCommand() domain.PostMessageCommand {
	body := r.Body
	if body == "" {
		body = r.Message
	}
	return domain.PostMessageCommand{
		Sender:    r.Sender,
		Target:    r.Target,
		Body:      body,
		IsPrivate: r.IsPrivate,
	}
}

type sendMessageResponse struct {
	Success bool           `json:"success"`
	Message domain.Message `json:"message"`
}

type claimRequest struct {
	Username string `json:"username"`
}

type claimResponse struct {
	Username  string `json:"username"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// SendMessage stores and delivers one message posted by a client.
func (s *ChatServer) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if !s.decode(w, r, &req) {
		return
	}
	stored, err := s.chatService.SubmitMessage(r.Context(), req.toCommand())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sendMessageResponse{Success: true, Message: stored})
}

// History answers ?room=KEY or ?user1=A&user2=B.
func (s *ChatServer) History(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var (
		messages []domain.Message
		err      error
	)
	switch {
	case query.Has("room"):
		messages, err = s.chatService.QueryHistory(r.Context(), query.Get("room"))
	case query.Has("user1") || query.Has("user2"):
		messages, err = s.chatService.QueryPairHistory(r.Context(), query.Get("user1"), query.Get("user2"))
	default:
		err = fmt.Errorf("%w: room or user1 and user2 are required", errors.ErrUnknownRoom)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, messages)
}

func (s *ChatServer) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	hits, err := s.chatService.Search(r.Context(), query.Get("room"), query.Get("q"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, hits)
}

// Claim tells whether a username is free right now.
func (s *ChatServer) Claim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if !s.decode(w, r, &req) {
		return
	}
	err := s.chatService.ClaimIdentity(req.Username)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, claimResponse{Username: req.Username, Available: true})
	case errors.Is(err, errors.ErrDuplicateIdentity):
		s.writeJSON(w, http.StatusConflict, claimResponse{Username: req.Username, Reason: "AlreadyTaken"})
	default:
		s.writeError(w, err)
	}
}

func (s *ChatServer) Presence(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.chatService.Presence())
}

func (s *ChatServer) Stats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.chatService.Stats())
}

func (s *ChatServer) Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "chat-relay is running")
}

func (s *ChatServer) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxContentLength)
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid JSON body: %v", err)})
		return false
	}
	return true
}

func (s *ChatServer) writeError(w http.ResponseWriter, err error) {
	status := errors.MapToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("Request failed", "status", status, "error", err)
	} else {
		s.log.Debug("Request refused", "status", status, "error", err)
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *ChatServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Warn("Failed to write response", "error", err)
	}
}
