package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/wolfeidau/timax-console/internal/session"
)

type PasswdCmd struct {
	Connection ConnectionFlags `embed:""`

	Current string `help:"Current password, prompted when empty" env:"TIMAX_PASSWORD"`
	New     string `help:"New password, prompted when empty" env:"TIMAX_NEW_PASSWORD"`
}

func (p *PasswdCmd) Run(ctx context.Context, globals *Globals) error {
	c, err := newConsole(globals, p.Connection)
	if err != nil {
		return err
	}
	defer c.store.Close()

	if err := restoreForCommand(ctx, c); err != nil {
		return err
	}

	change := session.PasswordChange{OldPassword: p.Current, NewPassword: p.New, ConfirmPassword: p.New}
	prompt := newPrompter(os.Stdin)
	if change.OldPassword == "" {
		if change.OldPassword, err = prompt.secret("Current password"); err != nil {
			return err
		}
	}
	if change.NewPassword == "" {
		if change.NewPassword, err = prompt.secret("New password"); err != nil {
			return err
		}
		if change.ConfirmPassword, err = prompt.secret("Confirm new password"); err != nil {
			return err
		}
	}

	if err := c.store.ChangePassword(ctx, change); err != nil {
		if errors.Is(err, session.ErrValidation) {
			return fmt.Errorf("password not changed: %w", err)
		}
		return fmt.Errorf("failed to change password: %w", err)
	}

	fmt.Println("Password changed. All sessions were signed out; log in again with the new password.")
	return nil
}

type ProfileCmd struct {
	Connection ConnectionFlags `embed:""`

	FirstName string `help:"New first name"`
	LastName  string `help:"New last name"`
	Email     string `help:"New email address"`
	Phone     string `help:"New phone number"`
}

func (p *ProfileCmd) update() session.ProfileUpdate {
	var u session.ProfileUpdate
	set := func(v string) *string {
		if v == "" {
			return nil
		}
		return &v
	}
	u.FirstName = set(p.FirstName)
	u.LastName = set(p.LastName)
	u.Email = set(p.Email)
	u.Phone = set(p.Phone)
	return u
}

func (p *ProfileCmd) Run(ctx context.Context, globals *Globals) error {
	update := p.update()
	if update.Empty() {
		return errors.New("nothing to update, pass at least one of --first-name, --last-name, --email or --phone")
	}

	c, err := newConsole(globals, p.Connection)
	if err != nil {
		return err
	}
	defer c.store.Close()

	if err := restoreForCommand(ctx, c); err != nil {
		return err
	}

	identity, err := c.store.UpdateProfile(ctx, update)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}

	fmt.Printf("Profile updated for %s <%s>\n", identity.DisplayName(), identity.Email)
	return nil
}

func restoreForCommand(ctx context.Context, c *console) error {
	_, err := c.store.Restore(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, session.ErrNoSession):
		return errors.New("not logged in, run: timax-console login --email <email>")
	default:
		return fmt.Errorf("session is no longer valid: %w", err)
	}
}
