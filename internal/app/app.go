package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/valyala/fasthttp"

	"mawneychat/pkg/config"
	"mawneychat/pkg/state/logger"
)

// App groups daemon state and components.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	c       *Components
	cleanup func()
	srvFast *fasthttp.Server
	state   string
}

// New builds the component graph. It opens the store but starts nothing;
// Run starts the outbox, the poller and the command API.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	if eff.Config == nil {
		return nil, fmt.Errorf("no configuration loaded")
	}
	c, cleanup, err := InitializeComponents(eff.Config)
	if err != nil {
		return nil, err
	}
	return &App{
		eff:       eff,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		c:         c,
		cleanup:   cleanup,
		state:     "initialized",
	}, nil
}

// Components exposes the constructed graph.
func (a *App) Components() *Components { return a.c }

// Run signs in the configured account, starts background work and the
// command API, and blocks until ctx is cancelled or the listener fails.
func (a *App) Run(ctx context.Context) error {
	a.printSummary()

	if err := a.autoSignIn(ctx); err != nil {
		logger.Warn("auto_sign_in_failed", "error", err)
	}

	a.c.Outbox.Start(ctx)
	if a.eff.Config.Polling.IsEnabled() {
		a.c.Poller.Start(ctx)
	} else {
		logger.Info("polling_disabled")
	}

	errCh := a.startHTTP(ctx)
	a.state = "running"

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// autoSignIn activates account.email when configured. Without a password
// the account is trusted as the device owner.
func (a *App) autoSignIn(ctx context.Context) error {
	acct := a.eff.Config.Account
	if strings.TrimSpace(acct.Email) == "" {
		logger.Info("no_account_configured", "hint", "sign in with chatctl login")
		return nil
	}
	if acct.Password != "" {
		_, err := a.c.Session.SignIn(ctx, acct.Email, acct.Password)
		return err
	}
	u, ok := a.c.Users.ByEmail(acct.Email)
	if !ok {
		return fmt.Errorf("account %s is not in the user directory", acct.Email)
	}
	return a.c.Session.activate(ctx, u)
}

func (a *App) printSummary() {
	cfg := a.eff.Config
	ver := a.version
	if a.commit != "" && a.commit != "none" {
		ver += " (" + a.commit + ")"
	}
	if a.buildDate != "" && a.buildDate != "unknown" {
		ver += " @ " + a.buildDate
	}
	remote := cfg.Remote.BaseURL
	if remote == "" {
		remote = "disabled (local only)"
	}
	schedule := cfg.Polling.Interval.Duration().String()
	if cfg.Polling.Cron != "" {
		schedule = "cron " + cfg.Polling.Cron
	}
	logger.LogConfigSummary("mawneychat", []string{
		fmt.Sprintf("version: %s", ver),
		fmt.Sprintf("listen: %s", a.eff.Addr),
		fmt.Sprintf("db_path: %s", a.eff.DBPath),
		fmt.Sprintf("config_source: %s", a.eff.Source),
		fmt.Sprintf("remote: %s", remote),
		fmt.Sprintf("users: %s", humanize.Comma(int64(len(cfg.Users)))),
		fmt.Sprintf("polling: %s (enabled=%t)", schedule, cfg.Polling.IsEnabled()),
		fmt.Sprintf("outbox: flush %s, max %d attempts", cfg.Outbox.FlushInterval.Duration(), cfg.Outbox.MaxAttempts),
		fmt.Sprintf("max_attachment: %s", humanize.Bytes(uint64(cfg.Chat.MaxAttachmentSize.Int64()))),
		fmt.Sprintf("notify: %s", cfg.Notify.Mode),
	})
}
