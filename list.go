package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tagctl/gtm-go/internal/auth"
	"github.com/tagctl/gtm-go/internal/gtm"
)

// apiContext builds everything a remote command needs: a context, a logger,
// and a client backed by a valid session. Commands that reach the API all
// start here.
func apiContext(cmd *cobra.Command) (context.Context, *gtm.Client, error) {
	logger := buildLogger()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	session, err := newSession(false, logger)
	if err != nil {
		return nil, nil, err
	}

	ts, err := session.EnsureValid(ctx)
	if err != nil {
		if errors.Is(err, auth.ErrNotLoggedIn) || errors.Is(err, auth.ErrAuthExpired) {
			return nil, nil, fmt.Errorf("not logged in — run 'gtm-go login' first")
		}

		return nil, nil, err
	}

	return ctx, newAPIClient(ts, logger), nil
}

// listColumns maps the table columns shown for list output to the payload
// fields they come from.
var listColumns = []struct {
	header string
	field  string
}{
	{"NAME", "name"},
	{"TYPE", "type"},
	{"PATH", "path"},
}

// printEntities renders a list response as JSON or an aligned table.
func printEntities(entities []gtm.Entity) error {
	if flagJSON {
		return printJSON(entities)
	}

	headers := make([]string, len(listColumns))
	for i, col := range listColumns {
		headers[i] = col.header
	}

	rows := make([][]string, 0, len(entities))
	for _, e := range entities {
		row := make([]string, len(listColumns))
		for i, col := range listColumns {
			row[i] = field(e, col.field)
		}

		rows = append(rows, row)
	}

	printTable(os.Stdout, headers, rows)

	return nil
}

// runList wraps a list operation as a cobra RunE.
func runList(op func(context.Context, *gtm.Client, []string) ([]gtm.Entity, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, client, err := apiContext(cmd)
		if err != nil {
			return err
		}

		entities, err := op(ctx, client, args)
		if err != nil {
			return err
		}

		return printEntities(entities)
	}
}

func newAccountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List accessible Tag Manager accounts",
		Args:  cobra.NoArgs,
		RunE: runList(func(ctx context.Context, c *gtm.Client, _ []string) ([]gtm.Entity, error) {
			return c.ListAccounts(ctx)
		}),
	}
}

func newContainersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "containers <accountPath>",
		Short: "List containers in an account (e.g. accounts/123)",
		Args:  cobra.ExactArgs(1),
		RunE: runList(func(ctx context.Context, c *gtm.Client, args []string) ([]gtm.Entity, error) {
			return c.ListContainers(ctx, args[0])
		}),
	}
}

func newWorkspacesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "workspaces <containerPath>",
		Short: "List workspaces in a container",
		Args:  cobra.ExactArgs(1),
		RunE: runList(func(ctx context.Context, c *gtm.Client, args []string) ([]gtm.Entity, error) {
			return c.ListWorkspaces(ctx, args[0])
		}),
	}
}

func newTagsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tags <workspacePath>",
		Short: "List tags in a workspace",
		Args:  cobra.ExactArgs(1),
		RunE: runList(func(ctx context.Context, c *gtm.Client, args []string) ([]gtm.Entity, error) {
			return c.ListTags(ctx, args[0])
		}),
	}
}

func newTriggersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "triggers <workspacePath>",
		Short: "List triggers in a workspace",
		Args:  cobra.ExactArgs(1),
		RunE: runList(func(ctx context.Context, c *gtm.Client, args []string) ([]gtm.Entity, error) {
			return c.ListTriggers(ctx, args[0])
		}),
	}
}

func newVariablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "variables <workspacePath>",
		Short: "List variables in a workspace",
		Args:  cobra.ExactArgs(1),
		RunE: runList(func(ctx context.Context, c *gtm.Client, args []string) ([]gtm.Entity, error) {
			return c.ListVariables(ctx, args[0])
		}),
	}
}
