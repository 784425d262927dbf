package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tagctl/gtm-go/internal/auth"
	"github.com/tagctl/gtm-go/internal/gtm"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authenticate with Google Tag Manager in your browser",
		RunE:  runLogin,
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the saved authentication token",
		RunE:  runLogout,
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show authentication status and accessible accounts",
		RunE:  runWhoami,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	session, err := newSession(true, logger)
	if err != nil {
		return err
	}

	logger.Info("login started")

	if _, err := session.EnsureValid(ctx); err != nil {
		return err
	}

	logger.Info("login successful")
	statusf("Login successful.\n")

	return nil
}

func runLogout(_ *cobra.Command, _ []string) error {
	logger := buildLogger()

	if err := auth.Logout(tokenPath(), logger); err != nil {
		return err
	}

	statusf("Logged out.\n")

	return nil
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	session, err := newSession(false, logger)
	if err != nil {
		return err
	}

	ts, err := session.EnsureValid(ctx)
	if err != nil {
		if errors.Is(err, auth.ErrNotLoggedIn) || errors.Is(err, auth.ErrAuthExpired) {
			return fmt.Errorf("not logged in — run 'gtm-go login' first")
		}

		return err
	}

	client := newAPIClient(ts, logger)

	accounts, err := client.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("listing accounts: %w", err)
	}

	if flagJSON {
		return printJSON(map[string]any{
			"state":    session.State().String(),
			"accounts": accounts,
		})
	}

	fmt.Printf("Session: %s\n", session.State())
	printAccounts(accounts)

	return nil
}

func printAccounts(accounts []gtm.Entity) {
	if len(accounts) == 0 {
		fmt.Println("No accessible Tag Manager accounts.")
		return
	}

	for _, a := range accounts {
		fmt.Printf("Account: %s (%s)\n", field(a, "name"), field(a, "path"))
	}
}
