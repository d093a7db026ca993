package build

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrCatalogUnavailable is returned when the parts catalog cannot be loaded.
// No build can be produced without it, so callers surface this to the user
// instead of degrading
var ErrCatalogUnavailable = errors.New("build: parts catalog unavailable")

// loadCatalog reads the compact parts catalog blob. The catalog format is
// opaque here; only the generation prompt interprets it
func loadCatalog(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrCatalogUnavailable, path, err)
	}

	content := strings.TrimSpace(string(data))
	if content == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrCatalogUnavailable, path)
	}

	return content, nil
}
