package main

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tagctl/gtm-go/internal/gtm"
)

// workspaceExport is the JSON schema for `export`.
type workspaceExport struct {
	Workspace string       `json:"workspace"`
	Tags      []gtm.Entity `json:"tags"`
	Triggers  []gtm.Entity `json:"triggers"`
	Variables []gtm.Entity `json:"variables"`
}

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <workspacePath>",
		Short: "Export a workspace's tags, triggers, and variables as one JSON document",
		Args:  cobra.ExactArgs(1),
		RunE:  runExport,
	}
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx, client, err := apiContext(cmd)
	if err != nil {
		return err
	}

	out, err := exportWorkspace(ctx, client, args[0])
	if err != nil {
		return err
	}

	return printJSON(out)
}

// exportWorkspace fetches the three resource collections concurrently. The
// client carries no shared mutable state, so the three requests can be in
// flight at once; the first failure cancels the remaining fetches.
func exportWorkspace(ctx context.Context, client *gtm.Client, workspacePath string) (*workspaceExport, error) {
	out := &workspaceExport{Workspace: workspacePath}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		out.Tags, err = client.ListTags(ctx, workspacePath)

		return err
	})

	g.Go(func() error {
		var err error
		out.Triggers, err = client.ListTriggers(ctx, workspacePath)

		return err
	})

	g.Go(func() error {
		var err error
		out.Variables, err = client.ListVariables(ctx, workspacePath)

		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}
