package confloader

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/yndnr/rtcr-go/internal/telemetry/logger"
)

// DefaultDebounce is how long the watcher waits for a burst of events on
// the file to settle before it reports the change.
const DefaultDebounce = 200 * time.Millisecond

// Watcher reports changes of one configuration file.
type Watcher struct {
	fs       *fsnotify.Watcher
	path     string
	onChange func(path string)
	debounce time.Duration
	logger   logger.Logger

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the watcher's logger.
func WithWatcherLogger(l logger.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets the settle time. Zero reports every event.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// Watch starts watching path and calls onChange from the watcher's
// goroutine after each settled burst of writes. The file's directory is
// watched so editors that replace the file by rename are still seen.
func Watch(path string, onChange func(path string), opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fs.Add(filepath.Dir(abs)); err != nil {
		_ = fs.Close()
		return nil, err
	}

	w := &Watcher{
		fs:       fs,
		path:     abs,
		onChange: onChange,
		debounce: DefaultDebounce,
		logger:   logger.Default(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	go w.loop()
	w.logger.Info("watching configuration file", "path", abs)
	return w, nil
}

func (w *Watcher) loop() {
	defer close(w.doneCh)

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if name, err := filepath.Abs(ev.Name); err != nil || name != w.path {
				continue
			}
			w.logger.Debug("configuration file event", "op", ev.Op.String())
			if w.debounce <= 0 {
				w.onChange(w.path)
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.onChange(w.path)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("configuration watcher error", "error", err)

		case <-w.stopCh:
			return
		}
	}
}

// Stop ends the watch and waits for a running callback. Later calls return nil.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)
		<-w.doneCh
		err = w.fs.Close()
	})
	return err
}
