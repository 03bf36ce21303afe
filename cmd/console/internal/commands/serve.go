package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/timax-console/internal/activity"
	"github.com/wolfeidau/timax-console/internal/client"
	"github.com/wolfeidau/timax-console/internal/guard"
	"github.com/wolfeidau/timax-console/internal/session"
	"github.com/wolfeidau/timax-console/internal/telemetry"
)

type ServeCmd struct {
	Connection ConnectionFlags `embed:""`

	Listen        string   `help:"HTTP listen address" default:"127.0.0.1:8765" env:"TIMAX_LISTEN"`
	CORSOrigins   []string `help:"allowed CORS origins for API requests" default:"http://localhost:5173" env:"TIMAX_CORS_ORIGINS"`
	Telemetry     bool     `help:"export OpenTelemetry metrics and traces" default:"false" env:"TIMAX_TELEMETRY"`
	StdinActivity bool     `help:"read activity event names from stdin, one per line" default:"false" env:"TIMAX_STDIN_ACTIVITY"`
}

func (s *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := newConsole(globals, s.Connection)
	if err != nil {
		return err
	}
	defer c.store.Close()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Str("server", c.cfg.ServerURL).Msg("Starting console")

	if s.Telemetry || c.cfg.Telemetry {
		log.Info().Msg("Telemetry is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Options{ServiceName: "timax-console", Version: globals.Version})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	resource, err := client.NewResourceClient(c.cfg.ClientConfig(), c.storage, c.broadcaster)
	if err != nil {
		return fmt.Errorf("failed to create resource client: %w", err)
	}

	switch identity, err := c.store.Restore(ctx); {
	case err == nil:
		log.Info().Str("user", identity.Email).Str("role", identity.Role).Msg("Restored stored session")
	case errors.Is(err, session.ErrNoSession):
		log.Info().Msg("No stored session, waiting for login")
	default:
		log.Warn().Err(err).Msg("Stored session rejected, waiting for login")
	}

	stopWatch := guard.New(c.store).Watch(func(d guard.Decision) {
		log.Info().Stringer("decision", d).Msg("Console route decision changed")
	})
	defer stopWatch()

	if s.StdinActivity {
		go readActivity(ctx, os.Stdin, c.activity)
	}

	h := newConsoleHandlers(c.store, c.broadcaster, c.activity, resource, c.cfg.ServerURL)
	srv := configureHTTPServer(s.Listen, h.routes(s.CORSOrigins))

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.Listen).Msg("Starting HTTP server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// readActivity feeds event names such as "keypress" into the hub until r is
// exhausted or ctx is done.
func readActivity(ctx context.Context, r io.Reader, hub *activity.Hub) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !hub.Report(activity.ParseKind(line)) {
			log.Debug().Str("input", line).Msg("Ignoring unrecognised activity")
		}
	}
	if err := scanner.Err(); err != nil {
		log.Warn().Err(err).Msg("Activity input failed")
	}
}
