package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for lapse.
type Config struct {
	DeviceName string           `toml:"device_name"`
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	LogLevel   string           `toml:"log_level"` // debug, info, warn or error
	Database   DatabaseConfig   `toml:"database"`
	Capture    CaptureConfig    `toml:"capture"`
	Merge      MergeConfig      `toml:"merge"`
	Encryption EncryptionConfig `toml:"encryption"`
	Remote     RemoteConfig     `toml:"remote"`
	Upload     UploadConfig     `toml:"upload"`
}

// DatabaseConfig represents configuration for the capture store database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// CaptureConfig controls the capture loop.
type CaptureConfig struct {
	TickMs   int64    `toml:"tick_ms"`   // interval between frame markers
	SpoolDir string   `toml:"spool_dir"` // where the capture pipeline drops fragments
	Ignore   []string `toml:"ignore"`    // patterns skipped in the spool dir
}

// MergeConfig controls assembly of the final recording and its thumbnail.
type MergeConfig struct {
	CaptureTickMs         int64   `toml:"capture_tick_ms"`
	TargetPeriodMs        int64   `toml:"target_period_ms"`
	ThumbnailMaxDimension int     `toml:"thumbnail_max_dimension"`
	PixelDensity          float64 `toml:"pixel_density"`
}

// EncryptionConfig selects the recording envelope.
type EncryptionConfig struct {
	Type string `toml:"type"` // "envelope" (default) or "test"
}

// RemoteConfig represents configuration for the device registry and draft service.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type RemoteConfig struct {
	Type string `toml:"type"` // "http" or "local"

	// HTTP-specific fields (only used when Type == "http")
	BaseURL  string `toml:"base_url,omitempty"`
	APIToken string `toml:"api_token,omitempty"`

	// Local-specific fields (only used when Type == "local")
	MetadataDir string `toml:"metadata_dir,omitempty"`
}

// UploadConfig represents configuration for the upload target.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type UploadConfig struct {
	Type string `toml:"type"` // "http", "s3", "filesystem" or "memory"

	// S3-specific fields (only used when Type == "s3")
	S3Bucket    string `toml:"s3_bucket,omitempty"`
	S3Prefix    string `toml:"s3_prefix,omitempty"`
	S3Region    string `toml:"s3_region,omitempty"`
	S3Endpoint  string `toml:"s3_endpoint,omitempty"`
	S3AccessKey string `toml:"s3_access_key,omitempty"`
	S3SecretKey string `toml:"s3_secret_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`
}

// NewConfig creates a new Config with the provided values and defaults for
// an offline setup rooted at baseDir.
func NewConfig(deviceName, baseDir string) *Config {
	return &Config{
		DeviceName: deviceName,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
		LogLevel:   "info",
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Capture: CaptureConfig{
			TickMs:   1000,
			SpoolDir: filepath.Join(baseDir, "spool"),
			Ignore:   []string{"*.part", ".*"},
		},
		Merge: MergeConfig{
			CaptureTickMs:         1000,
			TargetPeriodMs:        2500,
			ThumbnailMaxDimension: 320,
			PixelDensity:          2,
		},
		Encryption: EncryptionConfig{Type: "envelope"},
		Remote: RemoteConfig{
			Type:        "local",
			MetadataDir: filepath.Join(baseDir, "drafts"),
		},
		Upload: UploadConfig{
			Type:   "filesystem",
			FSRoot: filepath.Join(baseDir, "uploads"),
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// The file may carry an API token or S3 secret.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
