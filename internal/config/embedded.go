package config

// Values injected at build time via ldflags. They serve as defaults and,
// for the API key, can be overridden by environment variables or config file.
//
// Build with:
//   go build -ldflags "-X 'github.com/deskhand/deskhand/internal/config.Version=1.2.3' \
//                      -X 'github.com/deskhand/deskhand/internal/config.EmbeddedHostedAPIKey=xxx'"
var (
	// Version is the release version reported by --version.
	Version = "0.1.0-dev"

	// EmbeddedHostedAPIKey is a baked-in hosted-API credential.
	EmbeddedHostedAPIKey string
)
