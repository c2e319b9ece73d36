package executor

import (
	"path/filepath"
)

// Dirstack is the immutable working-directory context. Entering a
// nested scope pushes a new absolute path derived from the current
// top; leaving uses the previous value. Entries are never mutated in
// place, so nested and concurrent calls always see a consistent
// ambient directory.
type Dirstack struct {
	paths []string
}

// NewDirstack creates a stack rooted at the given directory. A
// relative root is made absolute against the process working directory.
func NewDirstack(root string) Dirstack {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	return Dirstack{paths: []string{abs}}
}

// Current returns the top of the stack.
func (d Dirstack) Current() string {
	if len(d.paths) == 0 {
		return ""
	}
	return d.paths[len(d.paths)-1]
}

// Push returns a new stack whose top is dir resolved against the
// current top. The receiver is left untouched.
func (d Dirstack) Push(dir string) Dirstack {
	next := dir
	if !filepath.IsAbs(next) {
		next = filepath.Join(d.Current(), next)
	}
	paths := make([]string, len(d.paths), len(d.paths)+1)
	copy(paths, d.paths)
	return Dirstack{paths: append(paths, filepath.Clean(next))}
}

// Pop returns the stack without its top entry. Popping the root is a
// no-op.
func (d Dirstack) Pop() Dirstack {
	if len(d.paths) <= 1 {
		return d
	}
	return Dirstack{paths: d.paths[:len(d.paths)-1]}
}

// Depth returns the number of entries.
func (d Dirstack) Depth() int {
	return len(d.paths)
}
