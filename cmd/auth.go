package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/bpmx/internal/shared"
	"github.com/urfave/cli/v3"
)

// AuthSignup creates an account and stores its token.
func (r *Runner) AuthSignup(ctx context.Context, cmd *cli.Command) error {
	return r.authenticate(ctx, cmd, true)
}

// AuthLogin exchanges credentials for a token and stores it.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	return r.authenticate(ctx, cmd, false)
}

func (r *Runner) authenticate(ctx context.Context, cmd *cli.Command, signup bool) error {
	email := cmd.String("email")
	password := cmd.String("password")

	var err error
	if email == "" {
		if email, err = r.prompt("Email"); err != nil {
			return err
		}
	}
	if password == "" {
		if password, err = r.prompt("Password"); err != nil {
			return err
		}
	}

	var token string
	if signup {
		r.logger.Info("signing up", "email", email)
		token, err = r.backend.Signup(ctx, email, password)
	} else {
		r.logger.Info("logging in", "email", email)
		token, err = r.backend.Login(ctx, email, password)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", shared.ErrAuthFailed, err)
	}

	if err := r.creds.Set(token); err != nil {
		return err
	}
	r.logger.Debug("token stored", "path", r.creds.Path())

	return r.writePlain("✓ Logged in as %s\n", email)
}

// AuthLogout forgets the stored token.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	if err := r.creds.Clear(); err != nil {
		return err
	}
	r.logger.Info("token cleared")
	return r.writePlain("✓ Logged out\n")
}

// AuthStatus reports the stored token's claims and whether the backend accepts it.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	if _, err := r.creds.Token(); err != nil {
		if errors.Is(err, shared.ErrNotAuthenticated) {
			return r.writePlain("✗ Not logged in\n")
		}
		return r.writePlain("✗ %v\n", err)
	}

	if claims, err := r.creds.Claims(); err == nil {
		r.writePlain("Subject: %s\n", claims.Subject)
		if !claims.ExpiresAt.IsZero() {
			r.writePlain("Expires: %s (in %s)\n", claims.ExpiresAt.Format(time.RFC3339), time.Until(claims.ExpiresAt).Round(time.Minute))
		}
	} else {
		r.logger.Debug("token claims unreadable", "error", err)
	}

	userID, err := r.backend.Me(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", shared.ErrServiceUnavailable, err)
	}
	return r.writePlain("✓ Authenticated as user %s\n", userID)
}
