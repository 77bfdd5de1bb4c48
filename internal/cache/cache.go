// Package cache maps module source fingerprints to translated modules and
// guarantees at most one translation per fingerprint.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tliron/commonlog"
	"golang.org/x/sync/singleflight"

	"panoptes/internal/instrument"
	"panoptes/internal/ir"
)

var log = commonlog.GetLogger("panoptes.cache")

// Fingerprint is the SHA-256 of a module's source bytes.
type Fingerprint [32]byte

func FingerprintOf(src []byte) Fingerprint {
	return sha256.Sum256(src)
}

func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// Short returns the first 12 hex digits, for logs.
func (f Fingerprint) Short() string {
	return f.String()[:12]
}

// Entry is one translated module. Entries are shared between callers and
// must be treated as read-only. They are never evicted.
type Entry struct {
	Fingerprint Fingerprint
	Module      *ir.Module
	// Text is the printed module handed to the driver.
	Text   []byte
	Report instrument.Report
	// FromDisk is set when the entry was restored from the disk tier.
	FromDisk bool

	refs atomic.Int64
}

// Release drops one reference taken by Translate.
func (e *Entry) Release() {
	e.refs.Add(-1)
}

// Refs returns the number of outstanding references.
func (e *Entry) Refs() int64 {
	return e.refs.Load()
}

// Observer receives cache events, typically for metrics.
type Observer interface {
	Lookup(hit bool)
	Translated(d time.Duration, report instrument.Report, err error)
}

// Options configure a Cache.
type Options struct {
	// Store, when set, is consulted on memory misses and filled after
	// successful translations.
	Store    *DiskStore
	Observer Observer
}

// Stats are cumulative counters.
type Stats struct {
	Hits         uint64
	Misses       uint64
	Translations uint64
	Failures     uint64
	DiskHits     uint64
}

// Cache is safe for concurrent use. Lookups of one fingerprint never wait
// for the translation of another.
type Cache struct {
	translator Translator
	opts       Options

	mu      sync.RWMutex
	entries map[Fingerprint]*Entry
	flight  singleflight.Group

	hits, misses, translations, failures, diskHits atomic.Uint64
}

func New(translator Translator, opts Options) *Cache {
	return &Cache{
		translator: translator,
		opts:       opts,
		entries:    make(map[Fingerprint]*Entry),
	}
}

// Translate returns the entry for src, translating it on first use. The
// returned entry carries one reference for the caller.
//
// Concurrent callers with the same source share one translation. A caller
// whose ctx ends stops waiting, but the translation still completes and is
// stored for everyone else.
func (c *Cache) Translate(ctx context.Context, src []byte) (*Entry, error) {
	fp := FingerprintOf(src)
	if e, ok := c.Get(fp); ok {
		c.hits.Add(1)
		c.observeLookup(true)
		e.refs.Add(1)
		return e, nil
	}
	c.misses.Add(1)
	c.observeLookup(false)

	ch := c.flight.DoChan(string(fp[:]), func() (any, error) {
		return c.fill(fp, src)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		e := res.Val.(*Entry)
		e.refs.Add(1)
		return e, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Get returns a stored entry without translating or taking a reference.
func (c *Cache) Get(fp Fingerprint) (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[fp]
	return e, ok
}

// fill runs once per fingerprint at a time, inside the flight.
func (c *Cache) fill(fp Fingerprint, src []byte) (*Entry, error) {
	// A flight that finished between our lookup and this one stored it.
	if e, ok := c.Get(fp); ok {
		return e, nil
	}

	if e := c.restore(fp); e != nil {
		c.store(e)
		return e, nil
	}

	start := time.Now()
	m, report, err := c.translator.Translate(src)
	if c.opts.Observer != nil {
		c.opts.Observer.Translated(time.Since(start), report, err)
	}
	if err != nil {
		c.failures.Add(1)
		log.Warningf("module %s failed to translate: %s", fp.Short(), err)
		return nil, &TranslationError{Fingerprint: fp, Err: err}
	}
	c.translations.Add(1)

	e := &Entry{Fingerprint: fp, Module: m, Text: []byte(ir.Print(m)), Report: report}
	if c.opts.Store != nil {
		if err := c.opts.Store.Put(fp, newDiskPayload(e)); err != nil {
			log.Warningf("module %s not written to disk cache: %s", fp.Short(), err)
		}
	}
	c.store(e)
	log.Debugf("module %s translated: %d guards in %d functions", fp.Short(), report.Guards, report.Functions)
	return e, nil
}

// restore loads an instrumented module from the disk tier. Its text is
// parsed and passed through the translator again, where the pass sees the
// marker and leaves it untouched.
func (c *Cache) restore(fp Fingerprint) *Entry {
	if c.opts.Store == nil {
		return nil
	}
	var payload DiskPayload
	ok, err := c.opts.Store.Get(fp, &payload)
	if err != nil {
		log.Warningf("disk cache entry %s unreadable: %s", fp.Short(), err)
		return nil
	}
	if !ok || payload.Schema != diskSchemaVersion {
		return nil
	}
	m, _, err := c.translator.Translate([]byte(payload.Text))
	if err != nil {
		log.Warningf("disk cache entry %s does not parse: %s", fp.Short(), err)
		return nil
	}
	c.diskHits.Add(1)
	return &Entry{
		Fingerprint: fp,
		Module:      m,
		Text:        []byte(ir.Print(m)),
		Report:      payload.report(),
		FromDisk:    true,
	}
}

func (c *Cache) store(e *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[e.Fingerprint] = e
}

func (c *Cache) observeLookup(hit bool) {
	if c.opts.Observer != nil {
		c.opts.Observer.Lookup(hit)
	}
}

// Len returns the number of stored entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) Stats() Stats {
	return Stats{
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
		Translations: c.translations.Load(),
		Failures:     c.failures.Load(),
		DiskHits:     c.diskHits.Load(),
	}
}
