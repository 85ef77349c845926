package models

import (
	"os"
	"time"

	"github.com/rohanthewiz/serr"
)

// ============================================================================
// Sync Configuration
//
// Loads settings from environment variables to keep deployment
// configuration external to the binary.
// ============================================================================

// SyncConfig holds the settings for the local store and the remote backend.
type SyncConfig struct {
	DataPath       string        // Local store file path (BPTRACK_DATA_PATH)
	RemoteURL      string        // Base URL of the backend (BPTRACK_REMOTE_URL)
	RemoteEmail    string        // Backend account email (BPTRACK_REMOTE_EMAIL)
	RemotePassword string        // Backend account password (BPTRACK_REMOTE_PASSWORD)
	UserID         string        // Active user session id (BPTRACK_USER_ID)
	RequestTimeout time.Duration // Per-request facade timeout (BPTRACK_REQUEST_TIMEOUT)
}

// defaultRequestTimeout bounds a single facade call; a sync pass awaits
// calls sequentially, so a hung request would otherwise stall the pass.
const defaultRequestTimeout = 30 * time.Second

const defaultDataPath = "./data/bptrack.ddb"

// LoadSyncConfig reads configuration from environment variables.
func LoadSyncConfig() (*SyncConfig, error) {
	cfg := &SyncConfig{
		DataPath:       defaultDataPath,
		RequestTimeout: defaultRequestTimeout,
		UserID:         "local-user",
	}

	if path := os.Getenv("BPTRACK_DATA_PATH"); path != "" {
		cfg.DataPath = path
	}
	cfg.RemoteURL = os.Getenv("BPTRACK_REMOTE_URL")
	cfg.RemoteEmail = os.Getenv("BPTRACK_REMOTE_EMAIL")
	cfg.RemotePassword = os.Getenv("BPTRACK_REMOTE_PASSWORD")
	if uid := os.Getenv("BPTRACK_USER_ID"); uid != "" {
		cfg.UserID = uid
	}

	if timeoutStr := os.Getenv("BPTRACK_REQUEST_TIMEOUT"); timeoutStr != "" {
		timeout, err := time.ParseDuration(timeoutStr)
		if err != nil {
			return nil, serr.Wrap(err, "invalid BPTRACK_REQUEST_TIMEOUT value, expected duration like '30s'")
		}
		cfg.RequestTimeout = timeout
	}

	return cfg, nil
}

// Validate checks that required fields are present, failing fast on
// misconfiguration rather than discovering missing credentials mid-pass.
func (c *SyncConfig) Validate() error {
	if c.RemoteURL == "" {
		return serr.New("BPTRACK_REMOTE_URL is required")
	}
	if c.RemoteEmail == "" {
		return serr.New("BPTRACK_REMOTE_EMAIL is required")
	}
	if c.RemotePassword == "" {
		return serr.New("BPTRACK_REMOTE_PASSWORD is required")
	}
	if c.RequestTimeout < time.Second {
		return serr.New("BPTRACK_REQUEST_TIMEOUT must be at least 1s")
	}
	return nil
}
