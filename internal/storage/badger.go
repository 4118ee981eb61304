package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/yndnr/rtcr-go/internal/telemetry/logger"
)

// Badger is the KV implementation on Badger v3.
type Badger struct {
	db     *badger.DB
	cfg    KVConfig
	logger logger.Logger

	closed    atomic.Bool
	closeOnce sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}

	lastGC     atomic.Int64 // unix nanoseconds
	gcRewrites atomic.Uint64
}

var _ KV = (*Badger)(nil)

// OpenBadger opens the store and starts periodic value log GC.
func OpenBadger(cfg KVConfig, l logger.Logger) (*Badger, error) {
	if cfg.Dir == "" && !cfg.InMemory {
		return nil, errors.New("storage: dir is required")
	}
	if l == nil {
		l = logger.Default()
	}
	l = l.With("component", "kv")

	opts := badger.DefaultOptions(cfg.Dir).
		WithInMemory(cfg.InMemory).
		WithSyncWrites(cfg.SyncWrites && !cfg.InMemory).
		WithLogger(badgerLogger{l})
	if cfg.InMemory {
		opts.Dir, opts.ValueDir = "", ""
	}
	if cfg.BlockCacheSize > 0 {
		opts = opts.WithBlockCacheSize(cfg.BlockCacheSize)
	}
	if cfg.ValueLogFileSize > 0 {
		opts = opts.WithValueLogFileSize(cfg.ValueLogFileSize)
	}
	if cfg.ValueThreshold > 0 {
		opts = opts.WithValueThreshold(cfg.ValueThreshold)
	}
	if cfg.GCDiscardRatio <= 0 || cfg.GCDiscardRatio >= 1 {
		cfg.GCDiscardRatio = 0.5
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("storage: open badger: %w", err)
	}

	b := &Badger{
		db:     db,
		cfg:    cfg,
		logger: l,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go b.gcLoop()

	l.Info("kv store opened",
		"dir", cfg.Dir,
		"in_memory", cfg.InMemory,
		"gc_interval", cfg.GCInterval)
	return b, nil
}

func (b *Badger) usable(ctx context.Context) error {
	if b.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

func (b *Badger) Get(ctx context.Context, key []byte) ([]byte, error) {
	if err := b.usable(ctx); err != nil {
		return nil, err
	}
	var v []byte
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		v, err = badgerTxn{txn}.Get(key)
		return err
	})
	return v, err
}

func (b *Badger) Has(ctx context.Context, key []byte) (bool, error) {
	if err := b.usable(ctx); err != nil {
		return false, err
	}
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (b *Badger) Set(ctx context.Context, key, value []byte) error {
	return b.Update(ctx, func(tx Txn) error { return tx.Set(key, value) })
}

func (b *Badger) Delete(ctx context.Context, key []byte) error {
	return b.Update(ctx, func(tx Txn) error { return tx.Delete(key) })
}

func (b *Badger) Update(ctx context.Context, fn func(tx Txn) error) error {
	if err := b.usable(ctx); err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return fn(badgerTxn{txn})
	})
}

func (b *Badger) Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error {
	return b.iterate(ctx, prefix, true, func(item *badger.Item) (bool, error) {
		v, err := item.ValueCopy(nil)
		if err != nil {
			return false, err
		}
		return fn(item.KeyCopy(nil), v), nil
	})
}

func (b *Badger) Keys(ctx context.Context, prefix []byte, fn func(key []byte) bool) error {
	return b.iterate(ctx, prefix, false, func(item *badger.Item) (bool, error) {
		return fn(item.KeyCopy(nil)), nil
	})
}

// iterate walks prefix in key order, checking ctx between items.
func (b *Badger) iterate(ctx context.Context, prefix []byte, values bool, visit func(*badger.Item) (bool, error)) error {
	if err := b.usable(ctx); err != nil {
		return err
	}
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = values
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			more, err := visit(it.Item())
			if err != nil || !more {
				return err
			}
		}
		return nil
	})
}

// Backup writes Badger's native dump format.
func (b *Badger) Backup(ctx context.Context, w io.Writer) error {
	if err := b.usable(ctx); err != nil {
		return err
	}
	if _, err := b.db.Backup(w, 0); err != nil {
		return fmt.Errorf("storage: backup: %w", err)
	}
	return nil
}

// Restore drops every key before loading the dump.
func (b *Badger) Restore(ctx context.Context, r io.Reader) error {
	if err := b.usable(ctx); err != nil {
		return err
	}
	if err := b.db.DropAll(); err != nil {
		return fmt.Errorf("storage: drop before restore: %w", err)
	}
	if err := b.db.Load(r, 256); err != nil {
		return fmt.Errorf("storage: restore: %w", err)
	}
	b.logger.Info("kv store restored")
	return nil
}

// GC rewrites value log files until Badger finds nothing worth rewriting
// and returns the number of rewrites. In-memory stores have no value log.
func (b *Badger) GC(ctx context.Context) (uint64, error) {
	if err := b.usable(ctx); err != nil {
		return 0, err
	}
	if b.cfg.InMemory {
		return 0, nil
	}

	var n uint64
	for ctx.Err() == nil {
		err := b.db.RunValueLogGC(b.cfg.GCDiscardRatio)
		if errors.Is(err, badger.ErrNoRewrite) {
			break
		}
		if err != nil {
			return n, fmt.Errorf("storage: value log gc: %w", err)
		}
		n++
	}
	b.lastGC.Store(time.Now().UnixNano())
	b.gcRewrites.Add(n)
	return n, ctx.Err()
}

// Stats reports disk usage and GC activity.
func (b *Badger) Stats() (Stats, error) {
	if b.closed.Load() {
		return Stats{}, ErrClosed
	}
	lsm, vlog := b.db.Size()
	st := Stats{
		LSMBytes:      lsm,
		ValueLogBytes: vlog,
		GCRewrites:    b.gcRewrites.Load(),
	}
	if ns := b.lastGC.Load(); ns != 0 {
		st.LastGC = time.Unix(0, ns)
	}
	return st, nil
}

// Close stops GC and closes the database. Later calls return nil.
func (b *Badger) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		close(b.stopCh)
		<-b.doneCh
		if cerr := b.db.Close(); cerr != nil {
			err = fmt.Errorf("storage: close badger: %w", cerr)
		}
		b.logger.Info("kv store closed")
	})
	return err
}

func (b *Badger) gcLoop() {
	defer close(b.doneCh)
	if b.cfg.GCInterval <= 0 || b.cfg.InMemory {
		<-b.stopCh
		return
	}

	ticker := time.NewTicker(b.cfg.GCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), b.cfg.GCInterval)
			start := time.Now()
			n, err := b.GC(ctx)
			cancel()
			switch {
			case errors.Is(err, ErrClosed):
				return
			case err != nil:
				b.logger.Error("value log gc failed", "error", err)
			default:
				b.logger.Debug("value log gc done", "rewrites", n, "elapsed", time.Since(start))
			}
		case <-b.stopCh:
			return
		}
	}
}

type badgerTxn struct{ txn *badger.Txn }

func (t badgerTxn) Get(key []byte) ([]byte, error) {
	item, err := t.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (t badgerTxn) Set(key, value []byte) error { return t.txn.Set(key, value) }
func (t badgerTxn) Delete(key []byte) error     { return t.txn.Delete(key) }

// badgerLogger routes Badger's printf logging into the engine logger.
// Badger is chatty at info, so info goes to debug.
type badgerLogger struct{ l logger.Logger }

func (b badgerLogger) Errorf(f string, a ...any)   { b.l.Error(trimNL(fmt.Sprintf(f, a...))) }
func (b badgerLogger) Warningf(f string, a ...any) { b.l.Warn(trimNL(fmt.Sprintf(f, a...))) }
func (b badgerLogger) Infof(f string, a ...any)    { b.l.Debug(trimNL(fmt.Sprintf(f, a...))) }
func (b badgerLogger) Debugf(f string, a ...any)   { b.l.Debug(trimNL(fmt.Sprintf(f, a...))) }

func trimNL(s string) string {
	if n := len(s); n > 0 && s[n-1] == '\n' {
		return s[:n-1]
	}
	return s
}
