package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"mawneychat/pkg/state/logger"
)

// SetupSignalHandler returns a context cancelled on SIGINT or SIGTERM.
// SIGQUIT dumps goroutine stacks to the log without stopping.
func SetupSignalHandler(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case s := <-sigc:
			logger.Info("signal_received", "signal", s.String(), "msg", "shutdown requested")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigc)
	}()

	sigquit := make(chan os.Signal, 1)
	signal.Notify(sigquit, syscall.SIGQUIT)
	go func() {
		for {
			select {
			case <-sigquit:
				logger.Info("goroutine_stack_dump", "dump", stacks())
			case <-ctx.Done():
				signal.Stop(sigquit)
				return
			}
		}
	}()

	return ctx, cancel
}

func stacks() string {
	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)
	return string(buf[:n])
}

// Abort logs a fatal startup error, writes a crash dump next to the store
// and exits with status 2.
func Abort(contextMsg string, err error, dbPath string) {
	logger.Error("startup_fatal", "msg", contextMsg, "error", err)
	fmt.Fprintf(os.Stderr, "%s: %v\n", contextMsg, err)
	if path, derr := WriteCrashDump(dbPath, contextMsg, err); derr != nil {
		logger.Error("crash_dump_failed", "error", derr)
	} else {
		fmt.Fprintf(os.Stderr, "crash dump written: %s\n", path)
	}
	logger.Sync()
	os.Exit(2)
}

// WriteCrashDump records reason, err and all goroutine stacks under
// <dbPath>/crash and returns the file path.
func WriteCrashDump(dbPath, reason string, err error) (string, error) {
	dir := "./crash"
	if dbPath != "" {
		dir = filepath.Join(dbPath, "crash")
	}
	if e := os.MkdirAll(dir, 0o700); e != nil {
		return "", fmt.Errorf("create crash dir: %w", e)
	}
	now := time.Now().UTC()
	path := filepath.Join(dir, fmt.Sprintf("crash-%s.txt", now.Format("20060102T150405.000000000")))
	body := fmt.Sprintf("time: %s\nreason: %s\nerror: %v\ngo: %s %s/%s\n\n%s",
		now.Format(time.RFC3339Nano), reason, err, runtime.Version(), runtime.GOOS, runtime.GOARCH, stacks())
	if e := os.WriteFile(path, []byte(body), 0o600); e != nil {
		return "", fmt.Errorf("write crash dump: %w", e)
	}
	return path, nil
}
