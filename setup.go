package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tagctl/gtm-go/internal/config"
)

func newSetupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Register gtm-go as an integration in the host application",
		Long: "Interactively collects your OAuth client credentials and Google Cloud project, " +
			"then writes a gtm-go entry into the host application's integration registry.",
		RunE: runSetup,
	}

	cmd.Flags().String("host-config", "", "host application config file (defaults to the platform location)")

	return cmd
}

func runSetup(cmd *cobra.Command, _ []string) error {
	hostPath, err := cmd.Flags().GetString("host-config")
	if err != nil {
		return err
	}

	if hostPath == "" {
		hostPath = config.HostConfigPath()
	}

	if hostPath == "" {
		return fmt.Errorf("cannot determine host config location on this platform; pass --host-config")
	}

	answers, err := collectSetupAnswers(cmd.InOrStdin(), cmd.OutOrStdout())
	if err != nil {
		return err
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating executable: %w", err)
	}

	hc, err := config.LoadHostConfig(hostPath)
	if err != nil {
		return err
	}

	hc.Set("gtm", config.Integration{
		Command: exe,
		Env: map[string]string{
			config.EnvClientID:     answers.clientID,
			config.EnvClientSecret: answers.clientSecret,
			config.EnvProjectID:    answers.projectID,
		},
	})

	if err := config.SaveHostConfig(hostPath, hc); err != nil {
		return err
	}

	// Remember the project so later sessions don't re-prompt for it.
	resolvedCfg.ProjectID = answers.projectID
	if err := config.Save(configPath(), resolvedCfg); err != nil {
		return err
	}

	statusf("Wrote integration entry to %s.\n", hostPath)
	statusf("Restart the host application, then run 'gtm-go login'.\n")

	return nil
}

// configPath returns the effective location of gtm-go's own config file.
func configPath() string {
	if flagConfigPath != "" {
		return flagConfigPath
	}

	return config.DefaultConfigPath()
}

type setupAnswers struct {
	clientID     string
	clientSecret string
	projectID    string
}

// collectSetupAnswers prompts for the three setup values, offering existing
// environment or config values as defaults.
func collectSetupAnswers(in io.Reader, out io.Writer) (setupAnswers, error) {
	reader := bufio.NewReader(in)

	var (
		answers  setupAnswers
		defaults setupAnswers
	)

	if creds, ok := config.CredentialsFromEnv(); ok {
		defaults.clientID = creds.ClientID
		defaults.clientSecret = creds.ClientSecret
	}

	defaults.projectID = resolvedCfg.ProjectID

	var err error

	answers.clientID, err = prompt(reader, out, "OAuth client ID", defaults.clientID)
	if err != nil {
		return setupAnswers{}, err
	}

	answers.clientSecret, err = prompt(reader, out, "OAuth client secret", defaults.clientSecret)
	if err != nil {
		return setupAnswers{}, err
	}

	answers.projectID, err = prompt(reader, out, "Google Cloud project ID", defaults.projectID)
	if err != nil {
		return setupAnswers{}, err
	}

	if answers.clientID == "" || answers.clientSecret == "" {
		return setupAnswers{}, fmt.Errorf("OAuth client ID and secret are required")
	}

	return answers, nil
}

// prompt asks one question and returns the trimmed answer, falling back to
// def on empty input.
func prompt(reader *bufio.Reader, out io.Writer, question, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(out, "%s [%s]: ", question, def)
	} else {
		fmt.Fprintf(out, "%s: ", question)
	}

	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading input: %w", err)
	}

	answer := strings.TrimSpace(line)
	if answer == "" {
		return def, nil
	}

	return answer, nil
}
