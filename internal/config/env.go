package config

import "os"

// Environment variable names recognized by gtm-go.
const (
	EnvClientID     = "GTM_CLIENT_ID"
	EnvClientSecret = "GTM_CLIENT_SECRET"
	EnvProjectID    = "GTM_PROJECT_ID"
)

// Credentials holds the OAuth client identity read from the environment.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// CredentialsFromEnv reads the OAuth client identity. Both variables must be
// set for the pair to be considered present.
func CredentialsFromEnv() (Credentials, bool) {
	id := os.Getenv(EnvClientID)
	secret := os.Getenv(EnvClientSecret)
	if id == "" || secret == "" {
		return Credentials{}, false
	}

	return Credentials{ClientID: id, ClientSecret: secret}, true
}

// ApplyEnv overlays environment variables onto a file-based config.
// Environment values win over file values.
func ApplyEnv(cfg Config) Config {
	if v := os.Getenv(EnvProjectID); v != "" {
		cfg.ProjectID = v
	}

	return cfg
}
