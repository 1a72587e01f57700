package repository

import (
	"context"
	"fmt"

	"mawneychat/pkg/models"
	"mawneychat/pkg/state/logger"
)

// Remote is the server copy of chats and messages.
type Remote interface {
	FetchChats(ctx context.Context, email string) ([]models.Chat, error)
	PushChats(ctx context.Context, email string, chats []models.Chat) error
	FetchMessages(ctx context.Context, chatID string) ([]models.Message, error)
	PushMessages(ctx context.Context, chatID string, msgs []models.Message) error
}

// Repository reconciles the local copies with the remote one. A nil
// remote makes every pull and push a local-only no-op.
type Repository struct {
	local  *Local
	remote Remote
}

func New(local *Local, remote Remote) *Repository {
	return &Repository{local: local, remote: remote}
}

func (r *Repository) Local() *Local { return r.local }

func (r *Repository) HasRemote() bool { return r.remote != nil }

// PullChats returns the server's chats for user that list user as a participant.
func (r *Repository) PullChats(ctx context.Context, user models.User) ([]models.Chat, error) {
	if r.remote == nil {
		return nil, nil
	}
	chats, err := r.remote.FetchChats(ctx, user.Email)
	if err != nil {
		return nil, fmt.Errorf("fetch chats for %s: %w", user.ID, err)
	}
	out := make([]models.Chat, 0, len(chats))
	for _, c := range chats {
		if c.ID == "" || !c.HasParticipant(user.ID) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// PullChatMessages merges the shared local partition of chatID with the
// server copy, persists the union locally and returns it. A remote failure
// still returns the local copy alongside the error.
func (r *Repository) PullChatMessages(ctx context.Context, chatID string) ([]models.Message, error) {
	var remoteMsgs []models.Message
	var remoteErr error
	if r.remote != nil {
		remoteMsgs, remoteErr = r.remote.FetchMessages(ctx, chatID)
		if remoteErr != nil {
			remoteErr = fmt.Errorf("fetch messages for %s: %w", chatID, remoteErr)
		}
	}
	var merged []models.Message
	err := r.local.UpdateChatMessages(chatID, func(cur []models.Message) []models.Message {
		merged = MergeMessages(cur, FilterChat(remoteMsgs, chatID))
		return merged
	})
	if err != nil {
		logger.Error("shared_messages_save_failed", "chat_id", chatID, "error", err)
		if merged == nil {
			return nil, err
		}
	}
	return merged, remoteErr
}

// PushChats sends userID's current local chat list to the server under email.
func (r *Repository) PushChats(ctx context.Context, userID, email string) error {
	if r.remote == nil {
		return nil
	}
	chats, err := r.local.LoadUserChats(userID)
	if err != nil {
		return err
	}
	if chats == nil {
		chats = []models.Chat{}
	}
	return r.remote.PushChats(ctx, email, chats)
}

// PushChatMessages sends the shared local partition of chatID to the server.
func (r *Repository) PushChatMessages(ctx context.Context, chatID string) error {
	if r.remote == nil {
		return nil
	}
	msgs, err := r.local.LoadChatMessages(chatID)
	if err != nil {
		return err
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return r.remote.PushMessages(ctx, chatID, msgs)
}

// SyncChatMessages folds the server copy of chatID into the local
// partition and then pushes the union back, so a push never drops
// messages written from another device.
func (r *Repository) SyncChatMessages(ctx context.Context, chatID string) error {
	if r.remote == nil {
		return nil
	}
	merged, err := r.PullChatMessages(ctx, chatID)
	if err != nil {
		return err
	}
	return r.remote.PushMessages(ctx, chatID, merged)
}

// ClearChatMessages empties the server copy of chatID.
func (r *Repository) ClearChatMessages(ctx context.Context, chatID string) error {
	if r.remote == nil {
		return nil
	}
	return r.remote.PushMessages(ctx, chatID, []models.Message{})
}

// SyncChats merges the server chat list of email into userID's local list,
// minus the ids in drop, persists the result and pushes it back.
func (r *Repository) SyncChats(ctx context.Context, userID, email string, drop []string) error {
	if r.remote == nil {
		return nil
	}
	serverChats, err := r.remote.FetchChats(ctx, email)
	if err != nil {
		return fmt.Errorf("fetch chats for %s: %w", userID, err)
	}
	dropped := make(map[string]bool, len(drop))
	for _, id := range drop {
		dropped[id] = true
	}
	var merged []models.Chat
	err = r.local.UpdateUserChats(userID, func(cur []models.Chat) []models.Chat {
		var keep []models.Chat
		for _, c := range MergeByID(cur, serverChats) {
			if dropped[c.ID] || !c.HasParticipant(userID) {
				continue
			}
			keep = append(keep, c)
		}
		merged = keep
		return keep
	})
	if err != nil {
		return err
	}
	if merged == nil {
		merged = []models.Chat{}
	}
	return r.remote.PushChats(ctx, email, merged)
}
