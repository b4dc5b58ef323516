// Package changes tells the supervisor when the peer sources were touched and a rebuild is due.
package changes

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/SanjoDeundiak/peer-runner/pkg/lib"
)

var logger = log.New(lib.LogWriter, "changes: ", log.LstdFlags)

// FileStamp is the last observed state of one source file.
type FileStamp struct {
	Name    string
	ModTime time.Time
}

// Detector fingerprints source files by modification time, keyed by inode so that renames are tolerated.
// Deleted files are not reported.
type Detector struct {
	mu         sync.Mutex
	extensions map[string]bool
	files      map[uint64]FileStamp
}

// NewDetector creates a Detector watching files with the given extensions (".java", ".go", ...).
func NewDetector(extensions ...string) *Detector {
	exts := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		exts[ext] = true
	}
	return &Detector{extensions: exts, files: make(map[uint64]FileStamp)}
}

// Poll walks rootDir and reports whether any recognized file is new or modified since the previous call.
// Symlinked directories are followed once each. A poll that fails records nothing, so the next poll
// reports the same changes again.
func (d *Detector) Poll(rootDir string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	w := &walk{
		detector: d,
		staged:   make(map[uint64]FileStamp),
		visited:  make(map[dirKey]bool),
	}
	if info, err := os.Stat(rootDir); err == nil {
		if key, ok := dirKeyOf(info); ok {
			w.visited[key] = true
		}
	}
	changed, err := w.pollDir(rootDir)
	if err != nil {
		return false, err
	}
	for ino, stamp := range w.staged {
		d.files[ino] = stamp
	}
	return changed, nil
}

type dirKey struct {
	dev uint64
	ino uint64
}

// walk is the state of a single Poll.
type walk struct {
	detector *Detector
	staged   map[uint64]FileStamp
	visited  map[dirKey]bool
}

func (w *walk) pollDir(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, fmt.Errorf("poll %s: %w", dir, err)
	}

	changed := false
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		recognized := w.detector.extensions[filepath.Ext(entry.Name())]

		isDir := entry.IsDir()
		if entry.Type()&fs.ModeSymlink != 0 {
			info, err := os.Stat(path)
			switch {
			case err == nil:
				isDir = info.IsDir()
			case errors.Is(err, fs.ErrNotExist):
				continue
			case !recognized:
				logger.Printf("Skipping unreadable link %s: %v", path, err)
				continue
			}
		}

		if isDir {
			if !w.enter(path) {
				continue
			}
			// every subtree is visited so all stamps stay current
			dirChanged, err := w.pollDir(path)
			if err != nil {
				return false, err
			}
			changed = changed || dirChanged
			continue
		}

		if !recognized {
			continue
		}

		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return false, err
		}
		ino, ok := inode(info)
		if !ok {
			return false, fmt.Errorf("no inode for %s", path)
		}
		if _, dup := w.staged[ino]; dup {
			continue
		}

		stamp, seen := w.detector.files[ino]
		if !seen || !stamp.ModTime.Equal(info.ModTime()) {
			logger.Printf("%s changed (inode %d)", path, ino)
			changed = true
			w.staged[ino] = FileStamp{Name: entry.Name(), ModTime: info.ModTime()}
		}
	}
	return changed, nil
}

// enter marks a directory as visited and reports whether it was new to this walk.
func (w *walk) enter(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		// let ReadDir report it
		return true
	}
	key, ok := dirKeyOf(info)
	if !ok {
		return true
	}
	if w.visited[key] {
		return false
	}
	w.visited[key] = true
	return true
}

// Snapshot returns a copy of the recorded stamps keyed by inode.
func (d *Detector) Snapshot() map[uint64]FileStamp {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[uint64]FileStamp, len(d.files))
	for k, v := range d.files {
		out[k] = v
	}
	return out
}

func inode(info os.FileInfo) (uint64, bool) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, false
	}
	return uint64(st.Ino), true
}

func dirKeyOf(info os.FileInfo) (dirKey, bool) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return dirKey{}, false
	}
	return dirKey{dev: uint64(st.Dev), ino: uint64(st.Ino)}, true
}
