package imports

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"sheetflow/internal/errs"
)

// importable file extensions.
var importableExts = map[string]bool{
	".csv":  true,
	".tsv":  true,
	".txt":  true,
	".xlsx": true,
	".xlsm": true,
}

// ImportableFile is one entry of the file browser listing.
type ImportableFile struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	IsDir bool   `json:"is_directory"`
	Size  int64  `json:"size"`
}

// FileIndex caches the importable-files listing of one directory and
// keeps it fresh through fsnotify instead of re-scanning on every
// query.
type FileIndex struct {
	mu      sync.RWMutex
	dir     string
	entries []ImportableFile
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewFileIndex scans dir and starts watching it. Close releases the
// watcher.
func NewFileIndex(dir string) (*FileIndex, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errs.UserConfig("bad_directory", "cannot resolve %q", dir).WithCause(err)
	}
	idx := &FileIndex{dir: abs, done: make(chan struct{})}
	if err := idx.rescan(); err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		// No inotify available; serve the initial scan statically.
		return idx, nil
	}
	if err := w.Add(abs); err != nil {
		w.Close()
		return idx, nil
	}
	idx.watcher = w
	go idx.watch()
	return idx, nil
}

func (idx *FileIndex) watch() {
	for {
		select {
		case <-idx.done:
			return
		case _, ok := <-idx.watcher.Events:
			if !ok {
				return
			}
			_ = idx.rescan()
		case _, ok := <-idx.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (idx *FileIndex) rescan() error {
	dirents, err := os.ReadDir(idx.dir)
	if err != nil {
		return errs.IO("directory_unreadable", "cannot list %q", idx.dir).WithCause(err)
	}
	var entries []ImportableFile
	for _, de := range dirents {
		if strings.HasPrefix(de.Name(), ".") {
			continue
		}
		if !de.IsDir() && !importableExts[strings.ToLower(filepath.Ext(de.Name()))] {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		entries = append(entries, ImportableFile{
			Name:  de.Name(),
			Path:  filepath.Join(idx.dir, de.Name()),
			IsDir: de.IsDir(),
			Size:  info.Size(),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return entries[i].Name < entries[j].Name
	})

	idx.mu.Lock()
	idx.entries = entries
	idx.mu.Unlock()
	return nil
}

// List returns the current listing, directories first.
func (idx *FileIndex) List() []ImportableFile {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return append([]ImportableFile(nil), idx.entries...)
}

// Dir reports the watched directory.
func (idx *FileIndex) Dir() string { return idx.dir }

// Close stops the watcher.
func (idx *FileIndex) Close() error {
	close(idx.done)
	if idx.watcher != nil {
		return idx.watcher.Close()
	}
	return nil
}
