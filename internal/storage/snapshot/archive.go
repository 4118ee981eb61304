package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/spaolacci/murmur3"
	"golang.org/x/time/rate"

	"github.com/yndnr/rtcr-go/internal/core/domain"
	"github.com/yndnr/rtcr-go/internal/storage"
	"github.com/yndnr/rtcr-go/internal/telemetry/logger"
)

const (
	headerVersion = 1

	metaPrefix = "meta/"
	snapPrefix = "snap/"
	blobPrefix = "blob/"

	DefaultRetentionCount = 5
	DefaultRetentionDays  = 7

	// maxBurst caps a single limiter reservation.
	maxBurst = 1 << 20
)

var (
	ErrChecksumMismatch = errors.New("snapshot: checksum mismatch")
	ErrNotFound         = errors.New("snapshot: not found")
	ErrNoSnapshots      = errors.New("snapshot: no snapshots available")
)

// MemoryReader reads the content of a dataspace.
type MemoryReader interface {
	Read(ctx context.Context, id domain.DataspaceID) ([]byte, error)
}

// Metrics receives archive counters. *metric.Registry satisfies it.
type Metrics interface {
	SetArchiveSnapshots(n int)
	AddArchiveBlobBytes(n int)
}

// Config configures the archive.
type Config struct {
	RetentionCount int
	RetentionDays  int

	// MaxBytesPerSec limits blob write throughput. Zero means unlimited.
	MaxBytesPerSec int64
}

// DefaultConfig returns the default archive configuration.
func DefaultConfig() Config {
	return Config{
		RetentionCount: DefaultRetentionCount,
		RetentionDays:  DefaultRetentionDays,
	}
}

// Option configures an Archive.
type Option func(*Archive)

// WithLogger sets the archive logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Archive) { a.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(a *Archive) { a.metrics = m }
}

// WithClock overrides time.Now, used by retention tests.
func WithClock(now func() time.Time) Option {
	return func(a *Archive) { a.now = now }
}

// Archive stores committed snapshots in a KV engine.
type Archive struct {
	kv      storage.KV
	cfg     Config
	limiter *rate.Limiter
	logger  logger.Logger
	metrics Metrics
	now     func() time.Time
}

// Info is the persisted header of an archived snapshot.
type Info struct {
	Version    int            `json:"version"`
	ID         string         `json:"id"`
	Cycle      uint64         `json:"cycle"`
	TakenAt    time.Time      `json:"taken_at"`
	SavedAt    time.Time      `json:"saved_at"`
	Mode       domain.Mode    `json:"mode"`
	Sessions   map[string]int `json:"sessions,omitempty"`
	CapMapSize int            `json:"capmap_size"`

	// Blobs maps each copy dataspace to the digest of its content.
	Blobs map[domain.DataspaceID]string `json:"blobs"`

	// TotalBytes is the content size of all blobs referenced.
	TotalBytes int64 `json:"total_bytes"`

	// NewBytes is what Save actually wrote. Not persisted.
	NewBytes int64 `json:"-"`
}

// Record is a loaded snapshot with its memory content.
type Record struct {
	Info     *Info
	Snapshot *domain.Snapshot

	// Memory maps each copy dataspace to its content.
	Memory map[domain.DataspaceID][]byte
}

// Content returns the archived content of a dataspace by its badge.
func (r *Record) Content(badge domain.Badge) ([]byte, bool) {
	id, ok := r.Snapshot.Memory[badge]
	if !ok {
		return nil, false
	}
	data, ok := r.Memory[id]
	return data, ok
}

// New creates an archive on top of kv.
func New(kv storage.KV, cfg Config, opts ...Option) (*Archive, error) {
	if kv == nil {
		return nil, fmt.Errorf("snapshot: kv engine is required")
	}
	if cfg.RetentionCount < 0 || cfg.RetentionDays < 0 || cfg.MaxBytesPerSec < 0 {
		return nil, fmt.Errorf("snapshot: negative retention or rate")
	}
	if cfg.RetentionCount == 0 {
		cfg.RetentionCount = DefaultRetentionCount
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.MaxBytesPerSec > 0 {
		burst := int(min(cfg.MaxBytesPerSec, maxBurst))
		limiter = rate.NewLimiter(rate.Limit(cfg.MaxBytesPerSec), burst)
	}

	a := &Archive{
		kv:      kv,
		cfg:     cfg,
		limiter: limiter,
		logger:  logger.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Save archives snap, reading every copy dataspace's content from mem.
// Retention is applied afterwards.
func (a *Archive) Save(ctx context.Context, snap *domain.Snapshot, mem MemoryReader) (*Info, error) {
	if snap == nil || !domain.IsValidSnapshotID(snap.ID) {
		return nil, domain.ErrInvalidArgument.WithDetails("snapshot id")
	}

	info := &Info{
		Version:    headerVersion,
		ID:         snap.ID,
		Cycle:      snap.Cycle,
		TakenAt:    snap.TakenAt,
		SavedAt:    a.now(),
		Mode:       snap.Mode,
		CapMapSize: len(snap.CapMap),
		Blobs:      make(map[domain.DataspaceID]string),
	}
	if snap.State != nil {
		info.Sessions = make(map[string]int, len(domain.Kinds))
		for _, k := range domain.Kinds {
			info.Sessions[k.String()] = snap.State.Count(k)
		}
	}

	for _, id := range snap.Copies() {
		data, err := mem.Read(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("snapshot: read copy %d: %w", id, err)
		}
		d := digest(data)
		info.Blobs[id] = d
		info.TotalBytes += int64(len(data))

		written, err := a.putBlob(ctx, d, data)
		if err != nil {
			return nil, err
		}
		if written {
			info.NewBytes += int64(len(data))
		}
	}

	hdr, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshal header: %w", err)
	}
	body, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshal snapshot: %w", err)
	}

	err = a.kv.Update(ctx, func(tx storage.Txn) error {
		if err := tx.Set([]byte(snapPrefix+snap.ID), body); err != nil {
			return err
		}
		return tx.Set([]byte(metaPrefix+snap.ID), hdr)
	})
	if err != nil {
		return nil, domain.ErrStorageError.WithCause(err)
	}

	if a.metrics != nil {
		a.metrics.AddArchiveBlobBytes(int(info.NewBytes))
	}
	a.logger.Debug("snapshot archived",
		"snapshot_id", snap.ID,
		"cycle", snap.Cycle,
		"blobs", len(info.Blobs),
		"total_bytes", info.TotalBytes,
		"new_bytes", info.NewBytes)

	if _, err := a.Prune(ctx); err != nil {
		a.logger.Warn("archive prune failed", "error", err)
	}

	return info, nil
}

// putBlob writes data under its digest unless already present.
func (a *Archive) putBlob(ctx context.Context, d string, data []byte) (bool, error) {
	key := []byte(blobPrefix + d)
	ok, err := a.kv.Has(ctx, key)
	if err != nil {
		return false, domain.ErrStorageError.WithCause(err)
	}
	if ok {
		return false, nil
	}
	if err := a.wait(ctx, len(data)); err != nil {
		return false, err
	}
	if err := a.kv.Set(ctx, key, data); err != nil {
		return false, domain.ErrStorageError.WithCause(err)
	}
	return true, nil
}

// wait takes n tokens from the limiter, one burst at a time.
func (a *Archive) wait(ctx context.Context, n int) error {
	if a.limiter.Limit() == rate.Inf {
		return nil
	}
	burst := a.limiter.Burst()
	for n > 0 {
		chunk := min(n, burst)
		if err := a.limiter.WaitN(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

// Load loads one snapshot and verifies its blobs.
func (a *Archive) Load(ctx context.Context, id string) (*Record, error) {
	info, err := a.info(ctx, id)
	if err != nil {
		return nil, err
	}

	body, err := a.kv.Get(ctx, []byte(snapPrefix+id))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s body missing", ErrChecksumMismatch, id)
		}
		return nil, domain.ErrStorageError.WithCause(err)
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("%w: %s body: %v", ErrChecksumMismatch, id, err)
	}

	rec := &Record{
		Info:     info,
		Snapshot: &snap,
		Memory:   make(map[domain.DataspaceID][]byte, len(info.Blobs)),
	}
	for copyID, d := range info.Blobs {
		data, err := a.kv.Get(ctx, []byte(blobPrefix+d))
		if err != nil {
			if errors.Is(err, storage.ErrKeyNotFound) {
				return nil, fmt.Errorf("%w: blob %s missing", ErrChecksumMismatch, d)
			}
			return nil, domain.ErrStorageError.WithCause(err)
		}
		if digest(data) != d {
			return nil, fmt.Errorf("%w: blob %s", ErrChecksumMismatch, d)
		}
		rec.Memory[copyID] = data
	}
	return rec, nil
}

// Latest loads the newest snapshot that verifies. Corrupt snapshots
// are skipped.
func (a *Archive) Latest(ctx context.Context) (*Record, error) {
	infos, err := a.List(ctx)
	if err != nil {
		return nil, err
	}

	for i := len(infos) - 1; i >= 0; i-- {
		rec, err := a.Load(ctx, infos[i].ID)
		if err == nil {
			return rec, nil
		}
		if errors.Is(err, ErrChecksumMismatch) {
			a.logger.Warn("skipping corrupt snapshot", "snapshot_id", infos[i].ID, "error", err)
			continue
		}
		return nil, err
	}
	return nil, ErrNoSnapshots
}

// List returns the headers of all archived snapshots, oldest first.
func (a *Archive) List(ctx context.Context) ([]*Info, error) {
	var (
		infos  []*Info
		decErr error
	)
	err := a.kv.Scan(ctx, []byte(metaPrefix), func(key, value []byte) bool {
		var info Info
		if err := json.Unmarshal(value, &info); err != nil {
			decErr = fmt.Errorf("snapshot: decode %s: %w", key, err)
			return false
		}
		infos = append(infos, &info)
		return true
	})
	if err != nil {
		return nil, domain.ErrStorageError.WithCause(err)
	}
	if decErr != nil {
		return nil, decErr
	}

	// Snapshot ids are ULIDs, key order is time order.
	slices.SortFunc(infos, func(x, y *Info) int { return strings.Compare(x.ID, y.ID) })
	return infos, nil
}

// Delete removes one snapshot. Blobs are left for the next prune.
func (a *Archive) Delete(ctx context.Context, id string) error {
	if _, err := a.info(ctx, id); err != nil {
		return err
	}
	err := a.kv.Update(ctx, func(tx storage.Txn) error {
		if err := tx.Delete([]byte(metaPrefix + id)); err != nil {
			return err
		}
		return tx.Delete([]byte(snapPrefix + id))
	})
	if err != nil {
		return domain.ErrStorageError.WithCause(err)
	}
	return nil
}

// Prune applies the retention policy, then collects unreferenced blobs.
// Returns the number of snapshots removed.
func (a *Archive) Prune(ctx context.Context) (int, error) {
	infos, err := a.List(ctx)
	if err != nil {
		return 0, err
	}

	keep := make(map[string]struct{}, len(infos))

	// Keep last RetentionCount.
	start := max(len(infos)-a.cfg.RetentionCount, 0)
	for _, info := range infos[start:] {
		keep[info.ID] = struct{}{}
	}

	// Keep those within RetentionDays.
	if a.cfg.RetentionDays > 0 {
		cutoff := a.now().Add(-time.Duration(a.cfg.RetentionDays) * 24 * time.Hour)
		for _, info := range infos {
			if info.SavedAt.After(cutoff) {
				keep[info.ID] = struct{}{}
			}
		}
	}

	// Always keep at least the newest.
	if len(infos) > 0 {
		keep[infos[len(infos)-1].ID] = struct{}{}
	}

	removed := 0
	referenced := make(map[string]struct{})
	for _, info := range infos {
		if _, ok := keep[info.ID]; ok {
			for _, d := range info.Blobs {
				referenced[d] = struct{}{}
			}
			continue
		}
		if err := a.Delete(ctx, info.ID); err != nil {
			return removed, err
		}
		removed++
	}

	collected, err := a.collectBlobs(ctx, referenced)
	if err != nil {
		return removed, err
	}

	if a.metrics != nil {
		a.metrics.SetArchiveSnapshots(len(infos) - removed)
	}
	if removed > 0 || collected > 0 {
		a.logger.Info("archive pruned",
			"snapshots_removed", removed,
			"blobs_collected", collected,
			"snapshots_kept", len(infos)-removed)
	}
	return removed, nil
}

func (a *Archive) collectBlobs(ctx context.Context, referenced map[string]struct{}) (int, error) {
	var garbage [][]byte
	err := a.kv.Keys(ctx, []byte(blobPrefix), func(key []byte) bool {
		if _, ok := referenced[strings.TrimPrefix(string(key), blobPrefix)]; !ok {
			garbage = append(garbage, key)
		}
		return true
	})
	if err != nil {
		return 0, domain.ErrStorageError.WithCause(err)
	}
	for _, key := range garbage {
		if err := a.kv.Delete(ctx, key); err != nil {
			return 0, domain.ErrStorageError.WithCause(err)
		}
	}
	return len(garbage), nil
}

// Export writes a full dump of the archive to w.
func (a *Archive) Export(ctx context.Context, w io.Writer) error {
	return a.kv.Backup(ctx, w)
}

// Import replaces the archive's content with a dump produced by Export.
func (a *Archive) Import(ctx context.Context, r io.Reader) error {
	return a.kv.Restore(ctx, r)
}

func (a *Archive) info(ctx context.Context, id string) (*Info, error) {
	hdr, err := a.kv.Get(ctx, []byte(metaPrefix+id))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, domain.ErrStorageError.WithCause(err)
	}
	var info Info
	if err := json.Unmarshal(hdr, &info); err != nil {
		return nil, fmt.Errorf("%w: %s header: %v", ErrChecksumMismatch, id, err)
	}
	return &info, nil
}

// digest returns the murmur3-128 digest of data as 32 hex characters.
func digest(data []byte) string {
	h1, h2 := murmur3.Sum128(data)
	return fmt.Sprintf("%016x%016x", h1, h2)
}
