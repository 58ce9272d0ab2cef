// Package cache is a content-addressed result cache: processed artifacts are
// stored as blob files under type-scoped subdirectories, indexed by a sqlite
// database with TTL expiry and LRU eviction. Keys derive from the input
// file's content hash and the canonical parameter encoding, so a changed
// input or parameter set can never resurrect a stale result.
package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// Type namespaces cache entries by the kind of work they capture.
type Type string

const (
	TypeAudioProcessing   Type = "audio_processing"
	TypeFormatConversion  Type = "format_conversion"
	TypeQualityAnalysis   Type = "quality_analysis"
	TypeBatchProcessing   Type = "batch_processing"
	TypeAuditionRendering Type = "audition_rendering"
)

// Eviction drains size and entry count to this fraction of their caps.
const evictionTargetFraction = 0.8

// ErrClosed reports use of a closed cache.
var ErrClosed = errors.New("cache closed")

// Options configures Open.
type Options struct {
	// Dir is the cache root; it is created if missing.
	Dir string

	// MaxSizeMB caps the total blob size before LRU eviction.
	MaxSizeMB int64

	// MaxEntries caps the entry count before LRU eviction.
	MaxEntries int

	// DefaultTTL applies to entries stored without an explicit TTL.
	DefaultTTL time.Duration

	Log *logrus.Logger
}

// Stats are the cache counters. Hit, miss and eviction counts persist
// across restarts; entry count and size are recomputed from the index.
type Stats struct {
	TotalEntries int64 `json:"total_entries"`
	TotalSize    int64 `json:"total_size"`
	HitCount     int64 `json:"hit_count"`
	MissCount    int64 `json:"miss_count"`
	Evictions    int64 `json:"eviction_count"`
}

// HitRate returns hits over total lookups, zero when nothing was looked up.
func (s Stats) HitRate() float64 {
	total := s.HitCount + s.MissCount
	if total == 0 {
		return 0
	}
	return float64(s.HitCount) / float64(total)
}

// Entry describes one cached artifact.
type Entry struct {
	Key          string        `json:"cache_key"`
	Type         Type          `json:"cache_type"`
	InputHash    string        `json:"input_hash"`
	ParamsHash   string        `json:"params_hash"`
	FilePath     string        `json:"file_path"`
	CreatedAt    time.Time     `json:"created_at"`
	LastAccessed time.Time     `json:"last_accessed"`
	AccessCount  int64         `json:"access_count"`
	FileSize     int64         `json:"file_size"`
	TTL          time.Duration `json:"ttl"`
}

// expired reports whether the entry's TTL has lapsed. Zero TTL never expires.
func (e Entry) expired(now time.Time) bool {
	return e.TTL > 0 && now.Sub(e.CreatedAt) > e.TTL
}

// Cache is a concurrency-safe result cache. All index mutations run under
// one mutex and a SQL transaction, so partial writes never become visible.
type Cache struct {
	dir        string
	maxSize    int64
	maxEntries int
	defaultTTL time.Duration
	log        *logrus.Logger

	mu     sync.Mutex
	db     *sql.DB
	closed bool

	hits, misses, evictions int64
}

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	cache_key     TEXT PRIMARY KEY,
	cache_type    TEXT NOT NULL,
	input_hash    TEXT NOT NULL,
	params_hash   TEXT NOT NULL,
	file_path     TEXT NOT NULL,
	created_at    INTEGER NOT NULL,
	last_accessed INTEGER NOT NULL,
	access_count  INTEGER NOT NULL DEFAULT 0,
	file_size     INTEGER NOT NULL,
	ttl_seconds   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_cache_type ON cache_entries(cache_type);
CREATE INDEX IF NOT EXISTS idx_input_hash ON cache_entries(input_hash);
CREATE INDEX IF NOT EXISTS idx_last_accessed ON cache_entries(last_accessed);
CREATE TABLE IF NOT EXISTS cache_stats (
	key   TEXT PRIMARY KEY,
	value INTEGER NOT NULL
);
`

// Open creates or reopens a cache rooted at opts.Dir.
func Open(opts Options) (*Cache, error) {
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(opts.Dir, "cache.db"))
	if err != nil {
		return nil, fmt.Errorf("open cache index: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=30000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("configure cache index: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init cache schema: %w", err)
	}

	log := opts.Log
	if log == nil {
		log = logrus.New()
	}
	c := &Cache{
		dir:        opts.Dir,
		maxSize:    opts.MaxSizeMB * 1024 * 1024,
		maxEntries: opts.MaxEntries,
		defaultTTL: opts.DefaultTTL,
		log:        log,
		db:         db,
	}
	c.loadCounters()
	return c, nil
}

func (c *Cache) loadCounters() {
	rows, err := c.db.Query("SELECT key, value FROM cache_stats")
	if err != nil {
		c.log.WithError(err).Warn("cache counters unavailable")
		return
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var value int64
		if rows.Scan(&key, &value) != nil {
			continue
		}
		switch key {
		case "hit_count":
			c.hits = value
		case "miss_count":
			c.misses = value
		case "eviction_count":
			c.evictions = value
		}
	}
}

func (c *Cache) saveCountersLocked() {
	for key, value := range map[string]int64{
		"hit_count":      c.hits,
		"miss_count":     c.misses,
		"eviction_count": c.evictions,
	} {
		if _, err := c.db.Exec(
			"INSERT OR REPLACE INTO cache_stats (key, value) VALUES (?, ?)", key, value,
		); err != nil {
			c.log.WithError(err).Warn("cache counters not persisted")
			return
		}
	}
}

// Close persists the counters and closes the index.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.saveCountersLocked()
	return c.db.Close()
}

// Get returns the cached artifact path for (inputFile, params, typ), or
// ok=false on any miss. A stale, expired or damaged entry is removed and
// reported as a miss.
func (c *Cache) Get(inputFile string, params any, typ Type) (string, bool) {
	// Hashing reads the whole input file; do it before taking the lock so
	// a slow disk never stalls other cache users.
	inputHash, hashErr := fileHash(inputFile)
	var key string
	if hashErr == nil {
		key, hashErr = cacheKey(typ, inputHash, params)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", false
	}
	if hashErr != nil {
		c.missLocked()
		return "", false
	}

	entry, err := c.lookupLocked(key)
	if err != nil {
		c.missLocked()
		return "", false
	}

	now := time.Now()
	if entry.expired(now) || entry.InputHash != inputHash || !blobExists(entry.FilePath) {
		c.removeLocked(entry.Key)
		c.missLocked()
		return "", false
	}

	if _, err := c.db.Exec(
		"UPDATE cache_entries SET last_accessed = ?, access_count = access_count + 1 WHERE cache_key = ?",
		now.UnixMilli(), key,
	); err != nil {
		c.log.WithError(err).Warn("cache access bookkeeping failed")
	}
	c.hits++
	c.saveCountersLocked()
	c.log.WithField("key", key).Debug("cache hit")
	return entry.FilePath, true
}

// Put copies outputFile into the cache and indexes it under the key derived
// from inputFile's content and params. A zero ttl takes the default TTL.
func (c *Cache) Put(inputFile string, params any, typ Type, outputFile string, ttl time.Duration) error {
	// Content hashing stays outside the critical section, as in Get.
	inputHash, err := fileHash(inputFile)
	if err != nil {
		return err
	}
	pHash, err := paramsHash(params)
	if err != nil {
		return err
	}
	key := joinKey(typ, inputHash, pHash)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	blobPath, size, err := c.storeBlobLocked(typ, key, outputFile)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	now := time.Now().UnixMilli()
	if _, err := c.db.Exec(`
		INSERT OR REPLACE INTO cache_entries
		(cache_key, cache_type, input_hash, params_hash, file_path,
		 created_at, last_accessed, access_count, file_size, ttl_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		key, string(typ), inputHash, pHash, blobPath, now, now, size, int64(ttl.Seconds()),
	); err != nil {
		os.Remove(blobPath)
		return fmt.Errorf("index cache entry: %w", err)
	}

	c.evictLocked()
	c.saveCountersLocked()
	c.log.WithFields(logrus.Fields{"key": key, "bytes": size}).Debug("cache stored")
	return nil
}

// GetOrProcess returns the cached artifact for the key, or runs process and
// caches its output. The bool reports whether the result came from cache.
func (c *Cache) GetOrProcess(inputFile string, params any, typ Type, process func() (string, error)) (string, bool, error) {
	if path, ok := c.Get(inputFile, params, typ); ok {
		return path, true, nil
	}
	out, err := process()
	if err != nil {
		return "", false, err
	}
	if err := c.Put(inputFile, params, typ, out, 0); err != nil {
		// The work succeeded; a failed cache write only costs a recompute.
		c.log.WithError(err).Warn("result not cached")
		return out, false, nil
	}
	if path, ok := c.Get(inputFile, params, typ); ok {
		return path, false, nil
	}
	return out, false, nil
}

// Invalidate removes the entry for (inputFile, params, typ) if present.
func (c *Cache) Invalidate(inputFile string, params any, typ Type) error {
	inputHash, err := fileHash(inputFile)
	if err != nil {
		return err
	}
	key, err := cacheKey(typ, inputHash, params)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.removeLocked(key)
	return nil
}

// Clear removes every entry of typ, or all entries when typ is empty.
// It returns the number of removed entries.
func (c *Cache) Clear(typ Type) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrClosed
	}

	query := "SELECT cache_key FROM cache_entries"
	args := []any{}
	if typ != "" {
		query += " WHERE cache_type = ?"
		args = append(args, string(typ))
	}
	keys, err := c.keysLocked(query, args...)
	if err != nil {
		return 0, err
	}
	for _, key := range keys {
		c.removeLocked(key)
	}
	c.saveCountersLocked()
	return len(keys), nil
}

// Stats returns the current counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{HitCount: c.hits, MissCount: c.misses, Evictions: c.evictions}
	if c.closed {
		return s
	}
	row := c.db.QueryRow("SELECT COUNT(*), COALESCE(SUM(file_size), 0) FROM cache_entries")
	if err := row.Scan(&s.TotalEntries, &s.TotalSize); err != nil {
		c.log.WithError(err).Warn("cache stats query failed")
	}
	return s
}

// Entries lists entries of typ, most recently accessed first; an empty typ
// lists everything.
func (c *Cache) Entries(typ Type) ([]Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	query := `SELECT cache_key, cache_type, input_hash, params_hash, file_path,
		created_at, last_accessed, access_count, file_size, ttl_seconds
		FROM cache_entries`
	args := []any{}
	if typ != "" {
		query += " WHERE cache_type = ?"
		args = append(args, string(typ))
	}
	query += " ORDER BY last_accessed DESC"

	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list cache entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var e Entry
	var typ string
	var created, accessed, ttlSeconds int64
	if err := row.Scan(&e.Key, &typ, &e.InputHash, &e.ParamsHash, &e.FilePath,
		&created, &accessed, &e.AccessCount, &e.FileSize, &ttlSeconds); err != nil {
		return Entry{}, fmt.Errorf("scan cache entry: %w", err)
	}
	e.Type = Type(typ)
	e.CreatedAt = time.UnixMilli(created)
	e.LastAccessed = time.UnixMilli(accessed)
	e.TTL = time.Duration(ttlSeconds) * time.Second
	return e, nil
}

func (c *Cache) lookupLocked(key string) (Entry, error) {
	row := c.db.QueryRow(`SELECT cache_key, cache_type, input_hash, params_hash, file_path,
		created_at, last_accessed, access_count, file_size, ttl_seconds
		FROM cache_entries WHERE cache_key = ?`, key)
	return scanEntry(row)
}

func (c *Cache) keysLocked(query string, args ...any) ([]string, error) {
	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (c *Cache) missLocked() {
	c.misses++
	c.saveCountersLocked()
}

// removeLocked drops one entry and its blob.
func (c *Cache) removeLocked(key string) {
	entry, err := c.lookupLocked(key)
	if err != nil {
		return
	}
	if err := os.Remove(entry.FilePath); err != nil && !os.IsNotExist(err) {
		c.log.WithError(err).WithField("key", key).Warn("cache blob not removed")
	}
	if _, err := c.db.Exec("DELETE FROM cache_entries WHERE cache_key = ?", key); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("cache index entry not removed")
	}
}

// evictLocked enforces TTL, then the size cap, then the entry cap, draining
// to the eviction target so puts do not thrash at the boundary.
func (c *Cache) evictLocked() {
	now := time.Now().UnixMilli()
	expired, err := c.keysLocked(
		"SELECT cache_key FROM cache_entries WHERE ttl_seconds > 0 AND created_at + ttl_seconds*1000 < ?", now)
	if err == nil {
		for _, key := range expired {
			c.removeLocked(key)
			c.evictions++
		}
	}

	if c.maxSize > 0 {
		var total int64
		if err := c.db.QueryRow("SELECT COALESCE(SUM(file_size), 0) FROM cache_entries").Scan(&total); err == nil && total > c.maxSize {
			target := int64(float64(c.maxSize) * evictionTargetFraction)
			c.evictLRULocked(func() bool {
				c.db.QueryRow("SELECT COALESCE(SUM(file_size), 0) FROM cache_entries").Scan(&total)
				return total > target
			})
		}
	}

	if c.maxEntries > 0 {
		var count int64
		if err := c.db.QueryRow("SELECT COUNT(*) FROM cache_entries").Scan(&count); err == nil && count > int64(c.maxEntries) {
			target := int64(float64(c.maxEntries) * evictionTargetFraction)
			c.evictLRULocked(func() bool {
				c.db.QueryRow("SELECT COUNT(*) FROM cache_entries").Scan(&count)
				return count > target
			})
		}
	}
}

// evictLRULocked removes least recently used entries while over() holds.
func (c *Cache) evictLRULocked(over func() bool) {
	keys, err := c.keysLocked("SELECT cache_key FROM cache_entries ORDER BY last_accessed ASC")
	if err != nil {
		return
	}
	for _, key := range keys {
		if !over() {
			return
		}
		c.removeLocked(key)
		c.evictions++
	}
}

// storeBlobLocked copies src into the type's blob directory under key,
// writing a temp sibling first so a crash never leaves a half-copied blob
// behind the final name.
func (c *Cache) storeBlobLocked(typ Type, key, src string) (string, int64, error) {
	blobDir := filepath.Join(c.dir, string(typ))
	if err := os.MkdirAll(blobDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create blob dir: %w", err)
	}
	dst := filepath.Join(blobDir, key+filepath.Ext(src))

	in, err := os.Open(src)
	if err != nil {
		return "", 0, fmt.Errorf("open cache source: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(blobDir, ".blob-*")
	if err != nil {
		return "", 0, fmt.Errorf("create blob temp: %w", err)
	}
	tmpName := tmp.Name()
	size, err := tmp.ReadFrom(in)
	if err == nil {
		err = tmp.Close()
	} else {
		tmp.Close()
	}
	if err == nil {
		err = os.Rename(tmpName, dst)
	}
	if err != nil {
		os.Remove(tmpName)
		return "", 0, fmt.Errorf("store cache blob: %w", err)
	}
	return dst, size, nil
}

func blobExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
