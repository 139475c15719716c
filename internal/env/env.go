// Package env centralizes the environment variables read by the SDK.
package env

import (
	"os"
	"strings"
)

// Var is the name of an environment variable the SDK reads.
type Var string

const (
	// APIKey authorizes calls to the Evalsight REST API.
	APIKey Var = "EVALSIGHT_API_KEY"

	// IngestionKey authorizes event ingestion calls.
	IngestionKey Var = "EVALSIGHT_INGESTION_KEY"

	// APIEndpoint overrides the default REST API endpoint.
	APIEndpoint Var = "EVALSIGHT_API_ENDPOINT"

	// IngestionEndpoint overrides the default ingestion endpoint.
	IngestionEndpoint Var = "EVALSIGHT_INGESTION_ENDPOINT"

	// CLIServerAddress is set by the companion CLI when it hosts a local
	// collector for test-suite telemetry. Its presence puts the runner in
	// CLI mode.
	CLIServerAddress Var = "EVALSIGHT_CLI_SERVER_ADDRESS"

	// CLIServerToken is the bearer token the local collector expects, if any.
	CLIServerToken Var = "EVALSIGHT_CLI_SERVER_TOKEN"
)

// Get returns the trimmed value of the variable, or "" if unset.
func (v Var) Get() string {
	return strings.TrimSpace(os.Getenv(string(v)))
}

// IsSet reports whether the variable has a non-empty value.
func (v Var) IsSet() bool {
	return v.Get() != ""
}
