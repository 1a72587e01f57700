package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"golang.org/x/sys/unix"

	"mawneychat/pkg/router"
	"mawneychat/pkg/state/logger"
)

// readyz fails when free space under the store drops below this.
const minFreeDiskBytes = 64 * 1024 * 1024

// freeDiskBytes reports the space available to unprivileged users at path.
func freeDiskBytes(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}

func (a *App) readyzHandlerFast(ctx *fasthttp.RequestCtx) {
	if !a.c.KV.Ready() {
		router.WriteJSON(ctx, fasthttp.StatusServiceUnavailable, map[string]string{"status": "not ready", "reason": "store closed"})
		return
	}
	dir, err := filepath.Abs(a.c.KV.Path())
	if err == nil {
		var free uint64
		if free, err = freeDiskBytes(dir); err == nil && free < minFreeDiskBytes {
			router.WriteJSON(ctx, fasthttp.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"reason": fmt.Sprintf("low disk: %s free", humanize.Bytes(free)),
			})
			return
		}
	}
	if err != nil {
		logger.Debug("readyz_disk_check_skipped", "error", err)
	}
	ver := a.version
	if ver == "" {
		ver = "dev"
	}
	body := map[string]any{"status": "ok", "version": ver, "signedIn": false}
	if u, ok := a.c.Chats.CurrentUser(); ok {
		body["signedIn"] = true
		body["userId"] = u.ID
	}
	router.WriteJSON(ctx, fasthttp.StatusOK, body)
}

func (a *App) healthzHandlerFast(ctx *fasthttp.RequestCtx) {
	router.WriteJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "ok"})
}

func logRequests(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		next(ctx)
		logger.LogRequestFast(ctx, time.Since(start))
	}
}

// Handler builds the full command API handler.
func (a *App) Handler() fasthttp.RequestHandler {
	r := router.New()
	r.Use(logRequests)
	r.GET("/healthz", a.healthzHandlerFast)
	r.GET("/readyz", a.readyzHandlerFast)
	r.GET("/metrics", fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler()))
	a.c.Handlers.Register(r)
	return r.Handler()
}

// startHTTP starts the command API listener and returns a channel that
// delivers its terminal error.
func (a *App) startHTTP(_ context.Context) <-chan error {
	const (
		readBufferSize     = 16 * 1024
		maxRequestBodySize = 16 * 1024 * 1024 // attachments travel as data URIs
		readTimeout        = 30 * time.Second
		writeTimeout       = 30 * time.Second
		idleTimeout        = time.Minute
	)
	a.srvFast = &fasthttp.Server{
		Name:               "mawneychat",
		Handler:            a.Handler(),
		ReadBufferSize:     readBufferSize,
		MaxRequestBodySize: maxRequestBodySize,
		ReadTimeout:        readTimeout,
		WriteTimeout:       writeTimeout,
		IdleTimeout:        idleTimeout,
	}
	errCh := make(chan error, 1)
	addr := a.eff.Config.Addr()
	go func() {
		logger.Info("command_api_listening", "addr", addr)
		errCh <- a.srvFast.ListenAndServe(addr)
	}()
	return errCh
}
