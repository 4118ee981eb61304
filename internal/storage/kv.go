package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	ErrKeyNotFound = errors.New("storage: key not found")
	ErrClosed      = errors.New("storage: kv store closed")
)

// KV is an ordered embedded key-value store. The snapshot archive is built
// on it. Implementations are safe for concurrent use.
type KV interface {
	// Get returns ErrKeyNotFound for a missing key.
	Get(ctx context.Context, key []byte) ([]byte, error)
	Has(ctx context.Context, key []byte) (bool, error)
	Set(ctx context.Context, key, value []byte) error
	Delete(ctx context.Context, key []byte) error

	// Update runs fn in one read-write transaction. Writes become visible
	// together when fn returns nil and are discarded otherwise.
	Update(ctx context.Context, fn func(tx Txn) error) error

	// Scan visits the entries under prefix in key order until fn returns false.
	Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error

	// Keys is Scan without reading values.
	Keys(ctx context.Context, prefix []byte, fn func(key []byte) bool) error

	// Backup writes a full dump to w. Restore replaces the whole content
	// with such a dump.
	Backup(ctx context.Context, w io.Writer) error
	Restore(ctx context.Context, r io.Reader) error

	Close() error
}

// Txn is the view of the store inside Update.
type Txn interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
}

// KVConfig configures the Badger store. Zero sizes keep Badger's defaults.
type KVConfig struct {
	// Dir is required unless InMemory is set.
	Dir      string
	InMemory bool

	// GCInterval is the period of value log GC. Zero disables it.
	GCInterval time.Duration

	// GCDiscardRatio is the stale fraction at which a value log file is rewritten.
	GCDiscardRatio float64

	BlockCacheSize   int64
	ValueLogFileSize int64

	// ValueThreshold is the size above which values live in the value log.
	// Memory blobs are well above it.
	ValueThreshold int64

	// SyncWrites fsyncs every commit. Ignored in memory.
	SyncWrites bool
}

// DefaultKVConfig returns the settings used by the daemon for dir.
func DefaultKVConfig(dir string) KVConfig {
	return KVConfig{
		Dir:              dir,
		GCInterval:       10 * time.Minute,
		GCDiscardRatio:   0.5,
		BlockCacheSize:   64 << 20,
		ValueLogFileSize: 256 << 20,
		ValueThreshold:   1 << 10,
		SyncWrites:       true,
	}
}

// Stats is a point-in-time view of the store's disk usage and GC activity.
type Stats struct {
	LSMBytes      int64
	ValueLogBytes int64
	LastGC        time.Time
	GCRewrites    uint64
}
