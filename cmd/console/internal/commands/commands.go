package commands

import (
	"fmt"
	"net/http"
	"time"

	"github.com/wolfeidau/timax-console/internal/activity"
	"github.com/wolfeidau/timax-console/internal/broadcast"
	"github.com/wolfeidau/timax-console/internal/client"
	"github.com/wolfeidau/timax-console/internal/config"
	"github.com/wolfeidau/timax-console/internal/credentials"
	"github.com/wolfeidau/timax-console/internal/session"
)

type Globals struct {
	Debug      bool
	Version    string
	ConfigPath string
}

// ConnectionFlags are shared by every command that talks to the backend.
// Set flags win over the config file.
type ConnectionFlags struct {
	Server          string `help:"Backend base URL" env:"TIMAX_SERVER_URL"`
	CredentialsPath string `help:"Credential file path" type:"path" env:"TIMAX_CREDENTIALS_PATH"`
}

// console is the wired session stack used by the commands.
type console struct {
	cfg         config.Config
	storage     *credentials.FileStore
	broadcaster *broadcast.Broadcaster
	activity    *activity.Hub
	auth        *client.AuthClient
	store       *session.Store
}

func newConsole(globals *Globals, flags ConnectionFlags) (*console, error) {
	cfg, err := config.Load(globals.ConfigPath)
	if err != nil {
		return nil, err
	}
	if flags.Server != "" {
		cfg.ServerURL = flags.Server
	}
	if flags.CredentialsPath != "" {
		cfg.CredentialsPath = flags.CredentialsPath
	}

	storage, err := credentials.NewFileStore(cfg.CredentialsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credential store: %w", err)
	}

	auth, err := client.NewAuthClient(cfg.ClientConfig())
	if err != nil {
		return nil, err
	}

	b := broadcast.New()
	hub := activity.NewHub(time.Now)

	store, err := session.NewStore(cfg.SessionConfig(), session.Dependencies{
		Backend:     auth,
		Storage:     storage,
		Broadcaster: b,
		Activity:    hub,
	})
	if err != nil {
		return nil, err
	}

	return &console{
		cfg:         cfg,
		storage:     storage,
		broadcaster: b,
		activity:    hub,
		auth:        auth,
		store:       store,
	}, nil
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      time.Minute,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}
