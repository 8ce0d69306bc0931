package catalog

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// reloadQuiet is how long the catalog file must stay untouched before it is
// reloaded. Editors commonly emit several write events for one save.
const reloadQuiet = 100 * time.Millisecond

// Watcher reloads a catalog file whenever it changes on disk.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onReload func(*Catalog)
	closeCh  chan struct{}
	done     chan struct{}
	once     sync.Once
}

// Watch starts watching the catalog at path. The parent directory is watched
// so that atomic rename-on-save editors are picked up too. onReload is called
// from the watcher goroutine with every successfully parsed catalog; files that
// fail to parse are logged and ignored.
func Watch(path string, onReload func(*Catalog)) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, err
	}

	w := &Watcher{
		path:     abs,
		watcher:  fw,
		onReload: onReload,
		closeCh:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.run()

	log.Info().Str("path", abs).Msg("Catalog watcher started")
	return w, nil
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.closeCh)
		err = w.watcher.Close()
		<-w.done
	})
	return err
}

func (w *Watcher) run() {
	defer close(w.done)

	// Reload only once the file has been quiet for reloadQuiet, so a save that
	// truncates then writes is never observed half-written.
	timer := time.NewTimer(reloadQuiet)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(reloadQuiet)
		case <-timer.C:
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Str("path", w.path).Msg("Catalog watcher error")
		case <-w.closeCh:
			return
		}
	}
}

func (w *Watcher) reload() {
	c, err := Load(w.path)
	if err != nil {
		log.Warn().Err(err).Str("path", w.path).Msg("Catalog reload failed, keeping previous catalog")
		return
	}
	log.Info().
		Int("singles", len(c.Singles)).
		Int("exclusive", len(c.Exclusive)).
		Int("albums", len(c.Albums)).
		Msg("Catalog reloaded")
	if w.onReload != nil {
		w.onReload(c)
	}
}
