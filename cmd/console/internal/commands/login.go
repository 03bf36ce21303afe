package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/wolfeidau/timax-console/internal/session"
)

type LoginCmd struct {
	Connection ConnectionFlags `embed:""`

	Email    string `help:"Account email" required:"" env:"TIMAX_EMAIL"`
	Password string `help:"Account password, read from stdin when empty" env:"TIMAX_PASSWORD"`
}

func (l *LoginCmd) Run(ctx context.Context, globals *Globals) error {
	c, err := newConsole(globals, l.Connection)
	if err != nil {
		return err
	}
	defer c.store.Close()

	password := l.Password
	if password == "" {
		if password, err = newPrompter(os.Stdin).secret("Password"); err != nil {
			return err
		}
	}

	identity, err := c.store.Login(ctx, session.Credentials{Email: l.Email, Password: password})
	if err != nil {
		if errors.Is(err, session.ErrCredential) {
			return fmt.Errorf("login rejected: %w", err)
		}
		return fmt.Errorf("login failed: %w", err)
	}

	fmt.Printf("Logged in as %s (%s)\n", identity.DisplayName(), identity.Role)
	fmt.Printf("Credentials stored at %s\n", c.storage.Path())
	return nil
}

// prompter reads answers from a single buffered reader so several prompts
// can share stdin.
type prompter struct {
	r *bufio.Reader
}

func newPrompter(r io.Reader) *prompter {
	return &prompter{r: bufio.NewReader(r)}
}

func (p *prompter) secret(label string) (string, error) {
	fmt.Fprintf(os.Stderr, "%s: ", label)
	line, err := p.r.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

type LogoutCmd struct {
	Connection ConnectionFlags `embed:""`
}

func (l *LogoutCmd) Run(ctx context.Context, globals *Globals) error {
	c, err := newConsole(globals, l.Connection)
	if err != nil {
		return err
	}
	defer c.store.Close()

	c.store.Logout(ctx)

	fmt.Println("Logged out.")
	return nil
}
