package context

import "errors"

// CTXKey - a type for context keys
type CTXKey string

const (
	// EnvironmentCTXKey - the key used for the environment name
	EnvironmentCTXKey CTXKey = "environment"
	// DebugLoggingCTXKey - context key for debug logging
	DebugLoggingCTXKey CTXKey = "debug_logging"
	// LogLevelCTXKey - context key for the log level
	LogLevelCTXKey CTXKey = "log_level"
	// LogWriterCTXKey - context key for overriding the log writer
	LogWriterCTXKey CTXKey = "log_writer"

	// VersionCTXKey - context key for version of code
	VersionCTXKey CTXKey = "version"
	// CommitCTXKey - context key for the commit of the code
	CommitCTXKey CTXKey = "commit"
	// BuildTimeCTXKey - context key for the build time of code
	BuildTimeCTXKey CTXKey = "build_time"

	// DatastoreCTXKey - the context key for getting the datastore
	DatastoreCTXKey CTXKey = "datastore"
	// LNClientCTXKey - the context key for the lightning backend client
	LNClientCTXKey CTXKey = "ln_client"
	// SigningSecretKeyCTXKey - the context key for the server identity signing key (hex)
	SigningSecretKeyCTXKey CTXKey = "signing_secret_key"
	// PhoenixdServerCTXKey - the context key for the phoenixd server address
	PhoenixdServerCTXKey CTXKey = "phoenixd_server"
	// PhoenixdPasswordCTXKey - the context key for the phoenixd api password
	PhoenixdPasswordCTXKey CTXKey = "phoenixd_password"
	// OpenConfirmWindowCTXKey - the context key for the open confirmation freshness window
	OpenConfirmWindowCTXKey CTXKey = "open_confirm_window"
)

// ErrNotInContext - error you get when you ask for something not in the context.
var ErrNotInContext = errors.New("failed to get value from context: value not in context")

// ErrValueWrongType - error you get when you ask for something and it is not the type you expected
var ErrValueWrongType = errors.New("failed to get value from context: value is wrong type")
