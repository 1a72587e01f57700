package repository

import (
	"fmt"

	"mawneychat/pkg/models"
	"mawneychat/pkg/state/logger"
	"mawneychat/pkg/store/keys"
	"mawneychat/pkg/store/kv"
	"mawneychat/pkg/store/locks"
)

// Local is the on-device copy: per-user chat and message caches, the
// shared-per-chat message partitions and the shared group chat table.
// Read-modify-write helpers serialize on the storage key so several
// sessions on one device cannot lose each other's updates.
type Local struct {
	kv    *kv.Store
	locks *locks.Keyed
}

func NewLocal(store *kv.Store) *Local {
	return &Local{kv: store, locks: locks.NewKeyed()}
}

// Store exposes the underlying kv store.
func (l *Local) Store() *kv.Store { return l.kv }

func loadList[T any](l *Local, key string) ([]T, error) {
	var out []T
	if _, err := l.kv.GetJSON(key, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func saveList[T any](l *Local, key string, list []T) error {
	if list == nil {
		list = []T{}
	}
	return l.kv.SaveJSON(key, list)
}

func updateList[T any](l *Local, key string, fn func([]T) []T) error {
	unlock := l.locks.Lock(key)
	defer unlock()
	cur, err := loadList[T](l, key)
	if err != nil {
		logger.Warn("local_list_unreadable", "key", key, "error", err)
		cur = nil
	}
	return saveList(l, key, fn(cur))
}

// LoadUserChats returns the user's cached chat list. A missing key yields
// (nil, nil); an undecodable value is returned as an error.
func (l *Local) LoadUserChats(userID string) ([]models.Chat, error) {
	return loadList[models.Chat](l, keys.GenUserChatsKey(userID))
}

// HasUserChats reports whether a chat list was ever stored for userID.
func (l *Local) HasUserChats(userID string) (bool, error) {
	_, err := l.kv.GetKey(keys.GenUserChatsKey(userID))
	if err != nil {
		if kv.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (l *Local) SaveUserChats(userID string, chats []models.Chat) error {
	unlock := l.locks.Lock(keys.GenUserChatsKey(userID))
	defer unlock()
	return saveList(l, keys.GenUserChatsKey(userID), chats)
}

func (l *Local) UpdateUserChats(userID string, fn func([]models.Chat) []models.Chat) error {
	return updateList(l, keys.GenUserChatsKey(userID), fn)
}

func (l *Local) LoadUserMessages(userID string) ([]models.Message, error) {
	return loadList[models.Message](l, keys.GenUserMessagesKey(userID))
}

func (l *Local) UpdateUserMessages(userID string, fn func([]models.Message) []models.Message) error {
	return updateList(l, keys.GenUserMessagesKey(userID), fn)
}

func (l *Local) LoadChatMessages(chatID string) ([]models.Message, error) {
	return loadList[models.Message](l, keys.GenSharedMessagesKey(chatID))
}

func (l *Local) UpdateChatMessages(chatID string, fn func([]models.Message) []models.Message) error {
	return updateList(l, keys.GenSharedMessagesKey(chatID), fn)
}

// AppendChatMessage merges msg into the shared partition of its chat.
func (l *Local) AppendChatMessage(msg models.Message) error {
	return l.UpdateChatMessages(msg.ChatID, func(cur []models.Message) []models.Message {
		return MergeMessages(cur, []models.Message{msg})
	})
}

func (l *Local) DeleteChatMessages(chatID string) error {
	key := keys.GenSharedMessagesKey(chatID)
	unlock := l.locks.Lock(key)
	defer unlock()
	if err := l.kv.DeleteKey(key); err != nil && !kv.IsNotFound(err) {
		return err
	}
	return nil
}

func (l *Local) LoadSharedGroupChats() ([]models.Chat, error) {
	return loadList[models.Chat](l, keys.SharedGroupChats)
}

func (l *Local) UpdateSharedGroupChats(fn func([]models.Chat) []models.Chat) error {
	return updateList(l, keys.SharedGroupChats, fn)
}

// WipeUser drops the user's chat list and message cache in one batch.
func (l *Local) WipeUser(userID string) error {
	ck, mk := keys.GenUserChatsKey(userID), keys.GenUserMessagesKey(userID)
	unlockC := l.locks.Lock(ck)
	defer unlockC()
	unlockM := l.locks.Lock(mk)
	defer unlockM()
	if err := l.kv.Update(func(b *kv.Batch) error {
		if err := b.Delete(ck); err != nil {
			return err
		}
		return b.Delete(mk)
	}); err != nil {
		return fmt.Errorf("wipe user %s: %w", userID, err)
	}
	logger.Warn("local_user_data_wiped", "user_id", userID)
	return nil
}
