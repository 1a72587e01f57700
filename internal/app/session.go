package app

import (
	"context"

	"mawneychat/pkg/chat"
	"mawneychat/pkg/models"
	"mawneychat/pkg/notify"
	"mawneychat/pkg/remote"
	"mawneychat/pkg/state/logger"
	"mawneychat/pkg/users"
)

// Session signs a user in on this device: it checks credentials, points
// the remote client and notifier at the user and loads their chat state.
type Session struct {
	users    *users.Directory
	chats    *chat.Store
	remote   *remote.Client
	notifier *notify.Service
}

func NewSession(dir *users.Directory, st *chat.Store, rc *remote.Client, n *notify.Service) *Session {
	return &Session{users: dir, chats: st, remote: rc, notifier: n}
}

func (s *Session) SignIn(ctx context.Context, email, password string) (models.User, error) {
	u, err := s.users.Authenticate(email, password)
	if err != nil {
		logger.Warn("sign_in_rejected", "email", email)
		return models.User{}, err
	}
	if err := s.activate(ctx, u); err != nil {
		return models.User{}, err
	}
	return u, nil
}

func (s *Session) activate(ctx context.Context, u models.User) error {
	if s.remote != nil {
		s.remote.SetAccount(u.Email)
	}
	s.notifier.SetCurrentUser(u.ID)
	if err := s.chats.Initialize(ctx, &u); err != nil {
		return err
	}
	logger.Info("signed_in", "user_id", u.ID)
	return nil
}
