package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/wolfeidau/timax-console/internal/credentials"
	"github.com/wolfeidau/timax-console/internal/session"
)

type WhoamiCmd struct {
	Connection ConnectionFlags `embed:""`
}

func (w *WhoamiCmd) Run(ctx context.Context, globals *Globals) error {
	c, err := newConsole(globals, w.Connection)
	if err != nil {
		return err
	}
	defer c.store.Close()

	identity, err := c.store.Restore(ctx)
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			fmt.Println("Not logged in.")
			fmt.Println()
			fmt.Println("To log in:")
			fmt.Println("  timax-console login --email <email>")
			return nil
		}
		return fmt.Errorf("session is no longer valid: %w", err)
	}

	pair, err := c.storage.Get()
	if err != nil {
		return fmt.Errorf("failed to read credentials: %w", err)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Name:\t%s\n", identity.DisplayName())
	fmt.Fprintf(tw, "Email:\t%s\n", identity.Email)
	fmt.Fprintf(tw, "Role:\t%s\n", identity.Role)
	if identity.Branch != nil {
		fmt.Fprintf(tw, "Branch:\t%s (%s)\n", identity.Branch.Name, identity.Branch.Code)
	}
	fmt.Fprintf(tw, "Token:\t%s\n", credentials.Fingerprint(pair.AccessToken))
	if due, ok := c.store.NextRefresh(); ok {
		fmt.Fprintf(tw, "Refresh due:\t%s\n", due.Format("15:04:05"))
	}
	return tw.Flush()
}
