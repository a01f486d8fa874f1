// Command demo-host is a minimal example game host: it opens a session,
// connects, injects a couple of mock participants (spec §12.1) so the
// mirror has something to show without a live broadcast, and ticks Run
// until interrupted, logging the state changes, participant changes, input
// and errors delivered to its handlers.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	interactive "github.com/mixer/interactive-go"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	token := flag.String("token", "", "auth bearer token")
	versionID := flag.String("version", "", "interactive version id")
	shareCode := flag.String("sharecode", "", "interactive share code")
	flag.Parse()

	if *token == "" {
		fmt.Fprintln(os.Stderr, "demo-host: -token is required")
		os.Exit(1)
	}

	session, err := interactive.Open(*configPath, interactive.Handlers{
		StateChanged: func(old, new interactive.State) {
			slog.Info("state changed", "component", "demo-host", "from", old.String(), "to", new.String())
		},
		Input: func(e interactive.Event) {
			slog.Info("input", "component", "demo-host", "kind", e.Kind.String(), "control", e.ControlID)
		},
		ParticipantsChanged: func(action string, p *interactive.Participant) {
			slog.Info("participant changed", "component", "demo-host", "action", action, "username", p.Username)
		},
		Error: func(code, message string) {
			slog.Error("session error", "component", "demo-host", "code", code, "message", message)
		},
		Debug: func(msg string) {
			slog.Debug(msg, "component", "demo-host")
		},
	})
	if err != nil {
		slog.Error("failed to open session", "component", "demo-host", "error", err)
		os.Exit(1)
	}

	if err := session.SetAuthToken(*token); err != nil {
		slog.Error("failed to set auth token", "component", "demo-host", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := session.Connect(ctx, *versionID, *shareCode, true); err != nil {
		slog.Error("connect failed", "component", "demo-host", "error", err)
		os.Exit(1)
	}

	session.DebugInjectParticipant(true, 1, "demo-session-1", "Alice")
	session.DebugInjectParticipant(true, 2, "demo-session-2", "Bob")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			session.Run(0)
		case <-sigCh:
			slog.Info("shutting down", "component", "demo-host")
			session.Close()
			return
		}
	}
}
