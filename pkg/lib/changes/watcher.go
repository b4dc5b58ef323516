package changes

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher raises a hint whenever a recognized source file under the root is written, created or renamed.
// Hints are coalesced: a burst of writes produces one pending notification. The Detector stays the
// authority on whether a rebuild is due.
type Watcher struct {
	watcher    *fsnotify.Watcher
	extensions map[string]bool
	hints      chan struct{}

	closeOnce sync.Once
	closeCh   chan struct{}
	wg        sync.WaitGroup
}

// NewWatcher watches rootDir and every directory below it.
func NewWatcher(rootDir string, extensions ...string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	exts := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		exts[ext] = true
	}

	w := &Watcher{
		watcher:    fsw,
		extensions: exts,
		hints:      make(chan struct{}, 1),
		closeCh:    make(chan struct{}),
	}

	if _, err := w.addRecursive(rootDir); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w.wg.Add(1)
	go w.loop()

	return w, nil
}

// Hints delivers one value per burst of relevant file events.
func (w *Watcher) Hints() <-chan struct{} {
	return w.hints
}

// Close stops watching. It is safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.closeCh)
		err = w.watcher.Close()
		w.wg.Wait()
	})
	return err
}

// addRecursive watches root and every directory below it. It reports whether a recognized file already
// exists in the tree.
func (w *Watcher) addRecursive(root string) (bool, error) {
	found := false
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if err := w.watcher.Add(path); err != nil {
				logger.Printf("watch %s: %v", path, err)
			}
			return nil
		}
		if w.extensions[filepath.Ext(path)] {
			found = true
		}
		return nil
	})
	return found, err
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.closeCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Printf("watch error: %v", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			// files may have landed before the directory was watched
			if found, _ := w.addRecursive(event.Name); found {
				w.hint(event)
			}
			return
		}
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}
	if !w.extensions[filepath.Ext(event.Name)] {
		return
	}
	w.hint(event)
}

func (w *Watcher) hint(event fsnotify.Event) {
	logger.Printf("hint: %s", event)
	select {
	case w.hints <- struct{}{}:
	default:
		// a hint is already pending
	}
}
