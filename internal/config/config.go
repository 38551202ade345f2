package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Defaults for the restart protocol. The marker is what the supervised
// process prints when it wants a restart with an attached image; the nudge
// is what we type into the replacement session so it resumes working.
const (
	DefaultMarker = "<<OPENATTACH:NEED_IMAGE>>"
	DefaultNudge  = "Image attached. Continue.\r"
)

// Config holds all configuration for the openattach supervisor.
type Config struct {
	// Restart protocol
	Marker     string // literal output token that triggers a restart
	Nudge      string // literal input written to a freshly restarted session
	ResumeFlag string // flag added on restart to restore conversation state
	AttachFlag string // flag added on restart to inject the image path

	// Attach requests
	RequestLog string // newline-delimited JSON request log
	Root       string // directory attach paths must resolve inside

	// Restart budget
	RestartWindow time.Duration // sliding window for the restart counter
	MaxRestarts   int           // restarts admitted per window

	// Optional local control server ("" = disabled)
	ControlAddr string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Marker:     envOrDefault("OPENATTACH_MARKER", DefaultMarker),
		Nudge:      envOrDefault("OPENATTACH_NUDGE", DefaultNudge),
		ResumeFlag: envOrDefault("OPENATTACH_RESUME_FLAG", "--continue"),
		AttachFlag: envOrDefault("OPENATTACH_ATTACH_FLAG", "--attach-image"),

		RequestLog: envOrDefault("OPENATTACH_REQUEST_LOG", ".openattach/requests.jsonl"),

		RestartWindow: 5 * time.Minute,
		MaxRestarts:   5,

		ControlAddr: os.Getenv("OPENATTACH_CONTROL_ADDR"),
	}

	root := os.Getenv("OPENATTACH_ROOT")
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		root = wd
	}
	cfg.Root = root

	if v := os.Getenv("OPENATTACH_RESTART_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid OPENATTACH_RESTART_WINDOW %q: %w", v, err)
		}
		cfg.RestartWindow = d
	}

	if v := os.Getenv("OPENATTACH_MAX_RESTARTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid OPENATTACH_MAX_RESTARTS %q: %w", v, err)
		}
		cfg.MaxRestarts = n
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
