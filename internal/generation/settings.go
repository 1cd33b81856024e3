package generation

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/jsamuelsen11/cclog-share/internal/fsutil"
)

// File names at the storage root.
const (
	ConfigFileName = "generation.config.json"
	MarkerFileName = ".generation-marker"
)

// DefaultConfig is written when no generation config exists yet.
var DefaultConfig = []byte(`{
  "version": "1.0.0",
  "styling": {
    "customCSS": false,
    "theme": "default"
  },
  "cclogviewerArgs": []
}
`)

// Settings is the typed view of the generation config file.
type Settings struct {
	Version string  `mapstructure:"version"`
	Styling Styling `mapstructure:"styling"`
	// ToolArgs are appended to every conversion tool invocation.
	ToolArgs []string `mapstructure:"cclogviewerArgs"`
}

// Styling groups presentation options of the generated HTML.
type Styling struct {
	CustomCSS bool   `mapstructure:"customCSS"`
	Theme     string `mapstructure:"theme"`
}

// DefaultSettings matches DefaultConfig. It is used when the config on disk
// cannot be parsed.
func DefaultSettings() *Settings {
	return &Settings{Version: "1.0.0", Styling: Styling{Theme: "default"}}
}

// ConfigPath returns the generation config location for a storage root.
func ConfigPath(storageRoot string) string {
	return filepath.Join(storageRoot, ConfigFileName)
}

// EnsureConfig writes DefaultConfig to path when no file exists there.
// It reports whether a file was created.
func EnsureConfig(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("failed to stat generation config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return false, fmt.Errorf("failed to create generation config directory: %w", err)
	}
	if err := fsutil.WriteFileAtomic(path, DefaultConfig, 0o640); err != nil {
		return false, fmt.Errorf("failed to write default generation config: %w", err)
	}
	return true, nil
}

// ParseSettings decodes raw generation config bytes. The same bytes are
// hashed into the fingerprint, so parsing never rereads the file.
func ParseSettings(data []byte) (*Settings, error) {
	v := viper.New()
	v.SetConfigType("json")
	v.SetDefault("version", "1.0.0")
	v.SetDefault("styling.theme", "default")

	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to parse generation config: %w", err)
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("failed to decode generation config: %w", err)
	}
	return &settings, nil
}
