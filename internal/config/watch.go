package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Draidel/ClaudeMix/internal/logging"
)

// settleDelay coalesces the burst of events an editor save produces.
const settleDelay = 200 * time.Millisecond

// Watcher reloads the configuration when the project config file changes.
type Watcher struct {
	dir      string
	file     string
	onChange func(*Config)

	watcher *fsnotify.Watcher
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

// Watch watches file and, when it changes, reloads the configuration as
// Load(dir) would and passes it to onChange.
// Reload errors are logged and the previous configuration stays in effect.
func Watch(dir string, file string, onChange func(*Config)) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Editors replace files by rename; watch the directory, not the file.
	if err := watcher.Add(filepath.Dir(file)); err != nil {
		watcher.Close()
		return nil, err
	}

	w := &Watcher{
		dir:      dir,
		file:     filepath.Clean(file),
		onChange: onChange,
		watcher:  watcher,
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	log := logging.Component("config")

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.file {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(settleDelay)
			} else {
				timer.Reset(settleDelay)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			cfg, err := Load(w.dir)
			if err != nil {
				log.Warn("config reload failed", "file", w.file, "error", err)
				continue
			}
			log.Info("config reloaded", "file", w.file)
			w.onChange(cfg)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn("config watcher error", "error", err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		w.wg.Wait()
	})
	return err
}
