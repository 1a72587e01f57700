// Package fakeapi serves an in-memory copy of the remote chat API for tests.
package fakeapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"mawneychat/pkg/models"
)

// Server is a fake remote chat API. The zero value is not usable; call New.
type Server struct {
	*httptest.Server

	mu            sync.Mutex
	chats         map[string][]models.Chat
	messages      map[string][]models.Message
	sessions      []models.AssistantSession
	conversations map[string][]models.Conversation
	failStatus    int
	unsuccessful  bool
	calls         map[string]int
	lastAuth      string
}

func New() *Server {
	s := &Server{
		chats:         map[string][]models.Chat{},
		messages:      map[string][]models.Message{},
		conversations: map[string][]models.Conversation{},
		calls:         map[string]int{},
	}
	r := mux.NewRouter()
	r.Use(s.middleware)
	r.HandleFunc("/api/user-chats", s.getChats).Methods(http.MethodGet)
	r.HandleFunc("/api/user-chats", s.postChats).Methods(http.MethodPost)
	r.HandleFunc("/api/user-messages", s.getMessages).Methods(http.MethodGet)
	r.HandleFunc("/api/user-messages", s.postMessages).Methods(http.MethodPost)
	r.HandleFunc("/api/chat/sessions", s.listSessions).Methods(http.MethodGet)
	r.HandleFunc("/api/chat/sessions", s.createSession).Methods(http.MethodPost)
	r.HandleFunc("/api/chat/sessions/{id}", s.deleteSession).Methods(http.MethodDelete)
	r.HandleFunc("/api/chat/sessions/{id}/conversations", s.listConversations).Methods(http.MethodGet)
	r.HandleFunc("/api/chat/sessions/{id}/conversations", s.appendConversation).Methods(http.MethodPost)
	s.Server = httptest.NewServer(r)
	return s
}

// Fail makes every subsequent request return status. Zero restores service.
func (s *Server) Fail(status int) {
	s.mu.Lock()
	s.failStatus = status
	s.mu.Unlock()
}

// Unsuccessful makes responses return 200 with success=false.
func (s *Server) Unsuccessful(on bool) {
	s.mu.Lock()
	s.unsuccessful = on
	s.mu.Unlock()
}

// Calls returns how many requests hit "METHOD /path".
func (s *Server) Calls(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[key]
}

func (s *Server) LastAuthorization() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAuth
}

func (s *Server) SetChats(email string, chats []models.Chat) {
	s.mu.Lock()
	s.chats[email] = append([]models.Chat(nil), chats...)
	s.mu.Unlock()
}

func (s *Server) Chats(email string) []models.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Chat(nil), s.chats[email]...)
}

func (s *Server) SetMessages(chatID string, msgs []models.Message) {
	s.mu.Lock()
	s.messages[chatID] = append([]models.Message(nil), msgs...)
	s.mu.Unlock()
}

func (s *Server) Messages(chatID string) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.messages[chatID]...)
}

func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[r.Method+" "+r.URL.Path]++
		if h := r.Header.Get("Authorization"); h != "" {
			s.lastAuth = h
		}
		status, unsuccessful := s.failStatus, s.unsuccessful
		s.mu.Unlock()
		if status != 0 {
			writeJSON(w, status, map[string]any{"success": false, "error": http.StatusText(status)})
			return
		}
		if unsuccessful {
			writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "rejected"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": msg})
}

func (s *Server) getChats(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		badRequest(w, "email required")
		return
	}
	s.mu.Lock()
	chats := append([]models.Chat{}, s.chats[email]...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "chats": chats})
}

func (s *Server) postChats(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string        `json:"email"`
		Chats []models.Chat `json:"chats"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Email == "" {
		badRequest(w, "invalid body")
		return
	}
	s.mu.Lock()
	s.chats[in.Email] = in.Chats
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) getMessages(w http.ResponseWriter, r *http.Request) {
	chatID := r.URL.Query().Get("chat_id")
	if chatID == "" {
		badRequest(w, "chat_id required")
		return
	}
	s.mu.Lock()
	msgs := append([]models.Message{}, s.messages[chatID]...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "messages": msgs})
}

func (s *Server) postMessages(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ChatID   string           `json:"chat_id"`
		Messages []models.Message `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.ChatID == "" {
		badRequest(w, "invalid body")
		return
	}
	s.mu.Lock()
	if len(in.Messages) == 0 {
		delete(s.messages, in.ChatID)
	} else {
		s.messages[in.ChatID] = in.Messages
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := append([]models.AssistantSession{}, s.sessions...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "sessions": out})
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || strings.TrimSpace(in.Name) == "" {
		badRequest(w, "name required")
		return
	}
	s.mu.Lock()
	id := fmt.Sprintf("session_%d", len(s.sessions)+1)
	s.sessions = append(s.sessions, models.AssistantSession{
		ID:        id,
		Name:      in.Name,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	})
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "chat_id": id})
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sess := range s.sessions {
		if sess.ID == id {
			s.sessions = append(s.sessions[:i], s.sessions[i+1:]...)
			delete(s.conversations, id)
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": "session not found"})
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.mu.Lock()
	out := append([]models.Conversation{}, s.conversations[id]...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "conversations": out})
}

func (s *Server) appendConversation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var in struct {
		UserMessage string `json:"user_message"`
		AIResponse  string `json:"ai_response"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		badRequest(w, "invalid body")
		return
	}
	s.mu.Lock()
	conv := models.Conversation{
		ID:          fmt.Sprintf("conv_%d", len(s.conversations[id])+1),
		UserMessage: in.UserMessage,
		AIResponse:  in.AIResponse,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	s.conversations[id] = append(s.conversations[id], conv)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
