package generation

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jsamuelsen11/cclog-share/internal/fsutil"
)

// DockerBinaryPath is where container images install the conversion tool.
const DockerBinaryPath = "/app/bin/cclogviewer"

// ResolveBinary finds the conversion tool. A configured path must exist; with
// no configured path the container location and then ~/go/bin are probed.
func ResolveBinary(configured string) (string, error) {
	if configured != "" {
		if !fsutil.FileExists(configured) {
			return "", fmt.Errorf("configured conversion tool %q does not exist", configured)
		}
		return filepath.Abs(configured)
	}

	candidates := []string{DockerBinaryPath}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, "go", "bin", "cclogviewer"))
	}

	for _, candidate := range candidates {
		if fsutil.FileExists(candidate) {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("conversion tool not found; set GENERATOR_BIN_PATH or install it with " +
		"`go install github.com/brads3290/cclogviewer/cmd/cclogviewer@latest`")
}
