// Package assistant keeps the AI assistant's session history. Sessions live
// on the remote API; the list is mirrored locally so it can be shown offline.
package assistant

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"mawneychat/pkg/models"
	"mawneychat/pkg/remote"
	"mawneychat/pkg/state/logger"
	"mawneychat/pkg/store/keys"
	"mawneychat/pkg/store/kv"
)

var (
	ErrEmptySessionName = errors.New("session name is required")
	ErrEmptyExchange    = errors.New("question and answer are required")
)

// Backend is the sessions half of the remote API.
type Backend interface {
	ListSessions(ctx context.Context) ([]models.AssistantSession, error)
	CreateSession(ctx context.Context, name string) (string, error)
	Conversations(ctx context.Context, sessionID string) ([]models.Conversation, error)
	AppendConversation(ctx context.Context, sessionID, userMessage, aiResponse string) error
	DeleteSession(ctx context.Context, sessionID string) error
}

type Service struct {
	api Backend
	kv  *kv.Store
}

func New(api Backend, store *kv.Store) *Service {
	return &Service{api: api, kv: store}
}

func (s *Service) cached(userID string) []models.AssistantSession {
	var out []models.AssistantSession
	if s.kv == nil {
		return nil
	}
	if _, err := s.kv.GetJSON(keys.GenAssistantSessionsKey(userID), &out); err != nil {
		logger.Warn("assistant_sessions_cache_unreadable", "user_id", userID, "error", err)
		return nil
	}
	return out
}

func (s *Service) cache(userID string, list []models.AssistantSession) {
	if s.kv == nil {
		return
	}
	if list == nil {
		list = []models.AssistantSession{}
	}
	if err := s.kv.SaveJSON(keys.GenAssistantSessionsKey(userID), list); err != nil {
		logger.Error("assistant_sessions_cache_failed", "user_id", userID, "error", err)
	}
}

// Sessions lists userID's sessions. When the remote call fails the cached
// list is returned with stale set.
func (s *Service) Sessions(ctx context.Context, userID string) (list []models.AssistantSession, stale bool, err error) {
	if s.api == nil {
		return s.cached(userID), true, nil
	}
	list, err = s.api.ListSessions(ctx)
	if err != nil {
		cached := s.cached(userID)
		if cached == nil {
			return nil, false, err
		}
		logger.Warn("assistant_sessions_offline", "user_id", userID, "error", err)
		return cached, true, nil
	}
	s.cache(userID, list)
	return list, false, nil
}

func (s *Service) CreateSession(ctx context.Context, userID, name string) (models.AssistantSession, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.AssistantSession{}, ErrEmptySessionName
	}
	if s.api == nil {
		return models.AssistantSession{}, remote.ErrNotConfigured
	}
	id, err := s.api.CreateSession(ctx, name)
	if err != nil {
		return models.AssistantSession{}, err
	}
	sess := models.AssistantSession{ID: id, Name: name}
	list := s.cached(userID)
	if !slices.ContainsFunc(list, func(x models.AssistantSession) bool { return x.ID == id }) {
		list = append([]models.AssistantSession{sess}, list...)
	}
	s.cache(userID, list)
	logger.Info("assistant_session_created", "user_id", userID, "session_id", id)
	return sess, nil
}

func (s *Service) Conversations(ctx context.Context, sessionID string) ([]models.Conversation, error) {
	if s.api == nil {
		return nil, remote.ErrNotConfigured
	}
	return s.api.Conversations(ctx, sessionID)
}

// AppendConversation records one question/answer exchange.
func (s *Service) AppendConversation(ctx context.Context, sessionID, question, answer string) error {
	if strings.TrimSpace(question) == "" || strings.TrimSpace(answer) == "" {
		return ErrEmptyExchange
	}
	if s.api == nil {
		return remote.ErrNotConfigured
	}
	return s.api.AppendConversation(ctx, sessionID, question, answer)
}

// DeleteSession removes the session remotely and from the local list. A
// session the server no longer knows counts as deleted.
func (s *Service) DeleteSession(ctx context.Context, userID, sessionID string) error {
	if s.api == nil {
		return remote.ErrNotConfigured
	}
	if err := s.api.DeleteSession(ctx, sessionID); err != nil && !remote.IsStatus(err, http.StatusNotFound) {
		return err
	}
	list := slices.DeleteFunc(s.cached(userID), func(x models.AssistantSession) bool { return x.ID == sessionID })
	s.cache(userID, list)
	return nil
}
