package users

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"mawneychat/pkg/config"
	"mawneychat/pkg/models"
	"mawneychat/pkg/state/logger"
	"mawneychat/pkg/store/kv"
)

var (
	ErrUnknownUser        = errors.New("unknown user")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Directory is the fixed set of users known to this device. Only avatars
// and preferences change at runtime.
type Directory struct {
	kv *kv.Store

	mu      sync.RWMutex
	byID    map[string]*models.User
	byEmail map[string]*models.User
	order   []string
}

// New builds a directory from users. kv may be nil, in which case uploaded
// avatars are not consulted.
func New(list []models.User, store *kv.Store) *Directory {
	d := &Directory{
		kv:      store,
		byID:    make(map[string]*models.User, len(list)),
		byEmail: make(map[string]*models.User, len(list)),
	}
	for _, u := range list {
		if u.ID == "" {
			continue
		}
		if _, dup := d.byID[u.ID]; dup {
			logger.Warn("duplicate_user_ignored", "user", u.ID)
			continue
		}
		cp := u
		cp.Preferences = maps.Clone(u.Preferences)
		d.byID[u.ID] = &cp
		if u.Email != "" {
			d.byEmail[strings.ToLower(u.Email)] = &cp
		}
		d.order = append(d.order, u.ID)
	}
	return d
}

// FromConfig converts the config user list.
func FromConfig(entries []config.UserEntry) []models.User {
	out := make([]models.User, 0, len(entries))
	for _, e := range entries {
		out = append(out, models.User{
			ID:          e.ID,
			Name:        e.Name,
			Email:       e.Email,
			Password:    e.Password,
			Avatar:      e.Avatar,
			Preferences: e.Preferences,
		})
	}
	return out
}

func clone(u *models.User) models.User {
	out := *u
	out.Preferences = maps.Clone(u.Preferences)
	return out
}

// Get returns the user with id.
func (d *Directory) Get(id string) (models.User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.byID[id]
	if !ok {
		return models.User{}, false
	}
	return clone(u), true
}

// ByEmail looks a user up by email, case-insensitively.
func (d *Directory) ByEmail(email string) (models.User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return models.User{}, false
	}
	return clone(u), true
}

// All returns every user in configuration order.
func (d *Directory) All() []models.User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]models.User, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, clone(d.byID[id]))
	}
	return out
}

// Others returns every user except id, sorted by name.
func (d *Directory) Others(id string) []models.User {
	all := d.All()
	out := all[:0]
	for _, u := range all {
		if u.ID != id {
			out = append(out, u)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// DisplayName returns the user's name, or id when unknown.
func (d *Directory) DisplayName(id string) string {
	if id == models.SystemSenderID {
		return "System"
	}
	if u, ok := d.Get(id); ok && u.Name != "" {
		return u.Name
	}
	return id
}

// Authenticate checks email and password. Stored passwords may be bcrypt
// hashes or plain text.
func (d *Directory) Authenticate(email, password string) (models.User, error) {
	d.mu.RLock()
	u, ok := d.byEmail[strings.ToLower(strings.TrimSpace(email))]
	var stored string
	if ok {
		stored = u.Password
	}
	d.mu.RUnlock()
	if !ok || stored == "" {
		return models.User{}, ErrInvalidCredentials
	}
	if isBcrypt(stored) {
		if err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)); err != nil {
			return models.User{}, ErrInvalidCredentials
		}
	} else if subtle.ConstantTimeCompare([]byte(stored), []byte(password)) != 1 {
		return models.User{}, ErrInvalidCredentials
	}
	out, _ := d.Get(u.ID)
	return out, nil
}

func isBcrypt(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

// HashPassword returns a bcrypt hash suitable for the config file.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// ApplyProfile patches mutable profile fields from server data. Empty
// avatar and nil prefs leave the current values.
func (d *Directory) ApplyProfile(id, avatar string, prefs map[string]any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownUser, id)
	}
	if avatar != "" {
		u.Avatar = avatar
	}
	if prefs != nil {
		if u.Preferences == nil {
			u.Preferences = map[string]any{}
		}
		maps.Copy(u.Preferences, prefs)
	}
	return nil
}
