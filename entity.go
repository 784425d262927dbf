package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tagctl/gtm-go/internal/gtm"
)

// readPayload loads an opaque resource payload from a JSON file, or from
// stdin when path is "-".
func readPayload(path string) (gtm.Entity, error) {
	var (
		data []byte
		err  error
	)

	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}

	if err != nil {
		return nil, fmt.Errorf("reading payload: %w", err)
	}

	var entity gtm.Entity
	if err := json.Unmarshal(data, &entity); err != nil {
		return nil, fmt.Errorf("parsing payload: %w", err)
	}

	return entity, nil
}

// pathKind returns the resource kind a Tag Manager path addresses, based on
// its second-to-last segment (paths alternate collection/ID).
func pathKind(resourcePath string) string {
	segments := strings.Split(resourcePath, "/")
	if len(segments) < 2 {
		return ""
	}

	return segments[len(segments)-2]
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <path>",
		Short: "Fetch a single container, tag, or variable by path",
		Args:  cobra.ExactArgs(1),
		RunE:  runGet,
	}
}

func runGet(cmd *cobra.Command, args []string) error {
	ctx, client, err := apiContext(cmd)
	if err != nil {
		return err
	}

	var entity gtm.Entity

	switch kind := pathKind(args[0]); kind {
	case "containers":
		entity, err = client.GetContainer(ctx, args[0])
	case "tags":
		entity, err = client.GetTag(ctx, args[0])
	case "variables":
		entity, err = client.GetVariable(ctx, args[0])
	default:
		return fmt.Errorf("cannot get %q: supported kinds are containers, tags, variables", args[0])
	}

	if err != nil {
		return err
	}

	return printJSON(entity)
}

func newCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <tag|trigger|variable> <workspacePath>",
		Short: "Create a resource in a workspace from a JSON payload",
		Args:  cobra.ExactArgs(2),
		RunE:  runCreate,
	}

	cmd.Flags().StringP("file", "f", "-", "payload file (defaults to stdin)")

	return cmd
}

func runCreate(cmd *cobra.Command, args []string) error {
	payloadPath, err := cmd.Flags().GetString("file")
	if err != nil {
		return err
	}

	payload, err := readPayload(payloadPath)
	if err != nil {
		return err
	}

	ctx, client, err := apiContext(cmd)
	if err != nil {
		return err
	}

	var created gtm.Entity

	switch args[0] {
	case "tag":
		created, err = client.CreateTag(ctx, args[1], payload)
	case "trigger":
		created, err = client.CreateTrigger(ctx, args[1], payload)
	case "variable":
		created, err = client.CreateVariable(ctx, args[1], payload)
	default:
		return fmt.Errorf("cannot create %q: supported kinds are tag, trigger, variable", args[0])
	}

	if err != nil {
		return err
	}

	statusf("Created %s.\n", field(created, "path"))

	return printJSON(created)
}

func newUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <path>",
		Short: "Replace a tag or variable with a JSON payload",
		Args:  cobra.ExactArgs(1),
		RunE:  runUpdate,
	}

	cmd.Flags().StringP("file", "f", "-", "payload file (defaults to stdin)")

	return cmd
}

func runUpdate(cmd *cobra.Command, args []string) error {
	payloadPath, err := cmd.Flags().GetString("file")
	if err != nil {
		return err
	}

	payload, err := readPayload(payloadPath)
	if err != nil {
		return err
	}

	ctx, client, err := apiContext(cmd)
	if err != nil {
		return err
	}

	var updated gtm.Entity

	switch kind := pathKind(args[0]); kind {
	case "tags":
		updated, err = client.UpdateTag(ctx, args[0], payload)
	case "variables":
		updated, err = client.UpdateVariable(ctx, args[0], payload)
	default:
		return fmt.Errorf("cannot update %q: supported kinds are tags, variables", args[0])
	}

	if err != nil {
		return err
	}

	statusf("Updated %s.\n", args[0])

	return printJSON(updated)
}
