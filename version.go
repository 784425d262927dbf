package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Create and publish container versions",
	}

	cmd.AddCommand(newVersionCreateCmd())
	cmd.AddCommand(newVersionPublishCmd())

	return cmd
}

func newVersionCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <workspacePath>",
		Short: "Snapshot a workspace into a new container version",
		Args:  cobra.ExactArgs(1),
		RunE:  runVersionCreate,
	}

	cmd.Flags().String("name", "", "version display name")
	cmd.Flags().String("notes", "", "version notes")

	return cmd
}

func runVersionCreate(cmd *cobra.Command, args []string) error {
	name, err := cmd.Flags().GetString("name")
	if err != nil {
		return err
	}

	notes, err := cmd.Flags().GetString("notes")
	if err != nil {
		return err
	}

	ctx, client, err := apiContext(cmd)
	if err != nil {
		return err
	}

	created, err := client.CreateVersion(ctx, args[0], name, notes)
	if err != nil {
		return fmt.Errorf("creating version: %w", err)
	}

	statusf("Created version %s.\n", field(created, "path"))

	return printJSON(created)
}

func newVersionPublishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish <versionPath>",
		Short: "Publish a container version",
		Args:  cobra.ExactArgs(1),
		RunE:  runVersionPublish,
	}
}

func runVersionPublish(cmd *cobra.Command, args []string) error {
	ctx, client, err := apiContext(cmd)
	if err != nil {
		return err
	}

	published, err := client.PublishVersion(ctx, args[0])
	if err != nil {
		return fmt.Errorf("publishing version: %w", err)
	}

	statusf("Published %s.\n", args[0])

	return printJSON(published)
}
