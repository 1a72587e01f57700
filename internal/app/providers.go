package app

import (
	"fmt"

	"github.com/google/wire"

	"mawneychat/internal/api"
	"mawneychat/pkg/assistant"
	"mawneychat/pkg/chat"
	"mawneychat/pkg/config"
	"mawneychat/pkg/notify"
	"mawneychat/pkg/outbox"
	"mawneychat/pkg/polling"
	"mawneychat/pkg/remote"
	"mawneychat/pkg/repository"
	"mawneychat/pkg/state/logger"
	"mawneychat/pkg/store/kv"
	"mawneychat/pkg/users"
)

// Components is the constructed object graph of the daemon.
type Components struct {
	Config    *config.Config
	KV        *kv.Store
	Remote    *remote.Client
	Outbox    *outbox.Outbox
	Users     *users.Directory
	Notify    *notify.Service
	Chats     *chat.Store
	Poller    *polling.Service
	Assistant *assistant.Service
	Session   *Session
	Handlers  *api.Handlers
}

// ProviderSet lists every constructor the daemon needs.
var ProviderSet = wire.NewSet(
	ProvideKV,
	ProvideRemote,
	ProvideRepository,
	ProvideOutbox,
	ProvideDirectory,
	ProvideNotifier,
	ProvideChatStore,
	ProvidePoller,
	ProvideAssistant,
	NewSession,
	wire.Bind(new(api.Authenticator), new(*Session)),
	api.New,
	wire.Struct(new(Components), "*"),
)

// ProvideKV opens the pebble store at the configured path.
func ProvideKV(cfg *config.Config) (*kv.Store, func(), error) {
	s, err := kv.Open(cfg.Server.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open store at %s: %w", cfg.Server.DBPath, err)
	}
	cleanup := func() {
		if err := s.Close(); err != nil {
			logger.Error("store_close_failed", "error", err)
		}
	}
	return s, cleanup, nil
}

// ProvideRemote returns nil when no base_url is configured; the daemon then
// runs local-only.
func ProvideRemote(cfg *config.Config) *remote.Client {
	if cfg.Remote.BaseURL == "" {
		logger.Warn("remote_api_disabled", "reason", "no base_url")
		return nil
	}
	return remote.New(remote.OptionsFromConfig(cfg.Remote))
}

func ProvideRepository(store *kv.Store, rc *remote.Client) *repository.Repository {
	var r repository.Remote
	if rc != nil {
		r = rc
	}
	return repository.New(repository.NewLocal(store), r)
}

func ProvideOutbox(store *kv.Store, cfg *config.Config) (*outbox.Outbox, error) {
	return outbox.New(store, outbox.OptionsFromConfig(cfg.Outbox))
}

func ProvideDirectory(cfg *config.Config, store *kv.Store) *users.Directory {
	return users.New(users.FromConfig(cfg.Users), store)
}

func ProvideNotifier(cfg *config.Config, dir *users.Directory) *notify.Service {
	return notify.FromConfig(cfg.Notify, dir)
}

func ProvideChatStore(repo *repository.Repository, ob *outbox.Outbox, dir *users.Directory, n *notify.Service, cfg *config.Config) *chat.Store {
	st := chat.New(repo, ob, dir, n, chat.OptionsFromConfig(cfg.Chat))
	ob.SetHandler(st.Deliver)
	return st
}

func ProvidePoller(st *chat.Store, n *notify.Service, cfg *config.Config) *polling.Service {
	p := polling.New(st, polling.OptionsFromConfig(cfg.Polling))
	p.AddListener(n.HandleEvent)
	return p
}

func ProvideAssistant(rc *remote.Client, store *kv.Store) *assistant.Service {
	if rc == nil {
		return assistant.New(nil, store)
	}
	return assistant.New(rc, store)
}
