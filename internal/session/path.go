package session

import (
	"path/filepath"
	"strings"

	"github.com/jsamuelsen11/cclog-share/internal/models"
)

// ResolvePath builds root/id[/label] and asserts the result stays strictly
// below root. It is pure path arithmetic and never touches the filesystem.
func ResolvePath(root string, id ID, label string) (string, error) {
	if id.IsZero() {
		return "", models.NewInvalidIdentifier("empty identifier")
	}

	base, err := filepath.Abs(root)
	if err != nil {
		return "", models.NewPathEscape(root)
	}
	base = filepath.Clean(base)

	full := filepath.Join(base, id.String())
	if label != "" {
		full = filepath.Join(full, label)
	}

	prefix := base
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	if !strings.HasPrefix(full, prefix) {
		return "", models.NewPathEscape(full)
	}
	// Labels must stay inside the session directory too.
	sessionDir := filepath.Join(base, id.String())
	if full != sessionDir && !strings.HasPrefix(full, sessionDir+string(filepath.Separator)) {
		return "", models.NewPathEscape(full)
	}

	return full, nil
}
