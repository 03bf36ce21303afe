package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/timax-console/cmd/console/internal/commands"
	"github.com/wolfeidau/timax-console/internal/logger"
)

var (
	version = "dev"
	cli     struct {
		Login   commands.LoginCmd   `cmd:"" help:"Log in and store the credential pair"`
		Logout  commands.LogoutCmd  `cmd:"" help:"Log out and clear the stored credential pair"`
		Whoami  commands.WhoamiCmd  `cmd:"" help:"Show the logged in user"`
		Passwd  commands.PasswdCmd  `cmd:"" help:"Change the password and end the session"`
		Profile commands.ProfileCmd `cmd:"" help:"Update the logged in user's profile"`
		Serve   commands.ServeCmd   `cmd:"" help:"Run the local console with session timers"`
		Debug   bool                `help:"Enable debug mode." env:"TIMAX_DEBUG"`
		Config  string              `help:"Path to the YAML config file." type:"path" env:"TIMAX_CONFIG"`
		Version kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))

	log.Logger = logger.Setup(cli.Debug)

	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version, ConfigPath: cli.Config})
	cmd.FatalIfErrorf(err)
}
