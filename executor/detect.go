package executor

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// detector caches project-detection results for the process lifetime.
// The project root does not change mid-run, so a stat per (dir, file)
// pair is performed once. InvalidateCache exists for tests.
type detector struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newDetector() *detector {
	return &detector{seen: make(map[string]bool)}
}

// manifestPresent reports whether the package-manager manifest exists
// in dir.
func (d *detector) manifestPresent(dir, manifest string) bool {
	if manifest == "" {
		return false
	}
	return d.filePresent(filepath.Join(dir, manifest))
}

// pinPresent reports whether any version-pin file exists in dir.
func (d *detector) pinPresent(dir string, pins []string) bool {
	for _, pin := range pins {
		if d.filePresent(filepath.Join(dir, pin)) {
			return true
		}
	}
	return false
}

func (d *detector) filePresent(path string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if present, ok := d.seen[path]; ok {
		return present
	}
	info, err := os.Stat(path)
	present := err == nil && !info.IsDir()
	d.seen[path] = present
	zap.S().Debugw("project detection", "path", path, "present", present)
	return present
}

// InvalidateCache drops all cached detection results. Test use only.
func (e *Engine) InvalidateCache() {
	e.detect.mu.Lock()
	defer e.detect.mu.Unlock()
	e.detect.seen = make(map[string]bool)
}
