// Package group implements lazy, bounded iteration over collections of
// remote entities, with optional filtering and concurrent preloading of each
// entity's full data.
package group

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	errs "github.com/tnychn/instascrape/pkg/errors"
	"github.com/tnychn/instascrape/pkg/logger"
)

const (
	// maxWorkers bounds the preload worker pool.
	maxWorkers = 15
	// preloadThreshold is the group length above which preloading is forced
	// off to avoid hammering the remote service.
	preloadThreshold = 500
)

// Item is an entity that can be held by a Group. Entities load lazily;
// EnsureLoaded fetches the full data when it has not been fetched yet.
type Item interface {
	Label() string
	EnsureLoaded() error
}

// NextFunc produces the group's items one at a time. The boolean is false
// when the underlying source is exhausted.
type NextFunc func() (Item, bool, error)

// Filter decides whether an item is yielded. Returning an error counts as an
// item failure, not a veto.
type Filter func(Item) (bool, error)

// ErrorItem records an item that failed during iteration or preloading.
type ErrorItem struct {
	Label string
	Kind  errs.Kind
	Err   error
}

func (e ErrorItem) Error() string {
	return fmt.Sprintf("%s: %v", e.Label, e.Err)
}

// Group holds a lazily produced collection of items. Conditions (limit,
// filter, preload, ignore-errors) are set fluently before iteration; the
// first complete iteration caches the yielded items so later iterations do
// not refetch pages.
type Group struct {
	total  int
	next   NextFunc
	logger logger.Logger

	cache  []Item
	cached bool

	limit        int
	filter       Filter
	preload      bool
	ignoreErrors bool

	mu     sync.Mutex
	bucket []ErrorItem
}

// New creates a group over a source reporting an estimated total of items.
func New(total int, next NextFunc, log logger.Logger) *Group {
	if log == nil {
		log = logger.Nop()
	}
	return &Group{
		total:  total,
		next:   next,
		logger: log,
		limit:  total,
	}
}

// Length returns the expected number of items this group will yield: the
// lesser of the source's estimated total and the configured limit. Once a
// complete iteration has cached the items, the cached count takes precedence
// when larger.
func (g *Group) Length() int {
	expected := g.total
	if g.limit < expected {
		expected = g.limit
	}
	if !g.cached {
		return expected
	}
	if len(g.cache) > expected {
		return len(g.cache)
	}
	return expected
}

// Limit caps the number of items yielded. A non-positive value restores the
// default (the source's estimated total).
func (g *Group) Limit(n int) *Group {
	if n <= 0 {
		n = g.total
	}
	g.limit = n
	return g
}

// WithFilter sets the yield predicate. Items rejected by the filter do not
// count towards the limit. A nil filter accepts everything.
func (g *Group) WithFilter(f Filter) *Group {
	g.filter = f
	return g
}

// Preload toggles concurrent full-data loading before items are yielded.
// Forced off when the expected length exceeds the preload threshold.
func (g *Group) Preload(on bool) *Group {
	if on && g.Length() > preloadThreshold {
		g.logger.WarnWithFields("preload is forced off for large groups", map[string]interface{}{
			"length":    g.Length(),
			"threshold": preloadThreshold,
		})
		on = false
	}
	g.preload = on
	return g
}

// IgnoreErrors toggles whether item failures abort iteration. When on,
// failed items are skipped and recorded in the error bucket instead.
func (g *Group) IgnoreErrors(on bool) *Group {
	g.ignoreErrors = on
	return g
}

// HasErrors reports whether any item failures were recorded.
func (g *Group) HasErrors() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.bucket) > 0
}

// Errors returns the item failures recorded during iteration.
func (g *Group) Errors() []ErrorItem {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]ErrorItem, len(g.bucket))
	copy(out, g.bucket)
	return out
}

func (g *Group) recordError(label string, err error) {
	g.mu.Lock()
	g.bucket = append(g.bucket, ErrorItem{Label: label, Kind: errs.KindOf(err), Err: err})
	g.mu.Unlock()
}

// Each iterates the group in order, invoking fn for every yielded item. An
// error from fn aborts the iteration and is returned as-is. Without
// preloading, items are yielded to fn as they are pulled from the source, so
// fn sees the first item before later pages are fetched. When preloading is
// on, every item's full data is loaded by a worker pool before the first
// invocation of fn.
func (g *Group) Each(fn func(Item) error) error {
	if g.cached || g.preload {
		items, err := g.gather()
		if err != nil {
			return err
		}
		if g.preload {
			items, err = g.preloadItems(items)
			if err != nil {
				return err
			}
		}
		for _, item := range items {
			if err := fn(item); err != nil {
				return err
			}
		}
		g.warnShort(len(items))
		return nil
	}

	items := make([]Item, 0, g.sizeHint())
	for len(items) < g.limit {
		item, ok, err := g.next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		keep, err := g.applyFilter(item)
		if err != nil {
			if !g.ignoreErrors {
				return err
			}
			continue
		}
		if !keep {
			continue
		}
		items = append(items, item)
		if err := fn(item); err != nil {
			return err
		}
	}

	// only a complete pass populates the cache; an aborted one refetches
	g.cache = items
	g.cached = true
	g.warnShort(len(items))
	return nil
}

func (g *Group) warnShort(n int) {
	if n < g.Length() {
		g.logger.WarnWithFields("fewer items returned than expected", map[string]interface{}{
			"returned": n,
			"expected": g.Length(),
		})
	}
}

// sizeHint bounds slice preallocation; sources without a known count report
// an effectively unbounded length.
func (g *Group) sizeHint() int {
	n := g.Length()
	if n > 4096 {
		n = 4096
	}
	return n
}

// Collect iterates the group and returns every yielded item.
func (g *Group) Collect() ([]Item, error) {
	items := make([]Item, 0, g.sizeHint())
	err := g.Each(func(item Item) error {
		items = append(items, item)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// gather pulls items from the source (or the cache) applying the filter and
// the limit. The first complete gather populates the cache.
func (g *Group) gather() ([]Item, error) {
	if g.cached {
		g.logger.Debug("group: using cached items")
		return g.fromCache()
	}

	items := make([]Item, 0, g.sizeHint())
	for len(items) < g.limit {
		item, ok, err := g.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		keep, err := g.applyFilter(item)
		if err != nil {
			if !g.ignoreErrors {
				return nil, err
			}
			continue
		}
		if !keep {
			continue
		}
		items = append(items, item)
	}

	g.cache = items
	g.cached = true
	return items, nil
}

// fromCache re-applies the filter and the limit to the cached items, so a
// group can be iterated again with tighter conditions without refetching.
func (g *Group) fromCache() ([]Item, error) {
	items := make([]Item, 0, len(g.cache))
	for _, item := range g.cache {
		if len(items) >= g.limit {
			break
		}
		keep, err := g.applyFilter(item)
		if err != nil {
			if !g.ignoreErrors {
				return nil, err
			}
			continue
		}
		if keep {
			items = append(items, item)
		}
	}
	return items, nil
}

func (g *Group) applyFilter(item Item) (bool, error) {
	if g.filter == nil {
		return true, nil
	}
	keep, err := g.filter(item)
	if err != nil {
		g.recordError(item.Label(), err)
		return false, err
	}
	return keep, nil
}

// preloadItems loads the full data of every item concurrently, preserving
// input order. With ignore-errors on, failed items are dropped from the
// result; otherwise the first failure cancels outstanding loads and aborts.
func (g *Group) preloadItems(items []Item) ([]Item, error) {
	if len(items) == 0 {
		return items, nil
	}

	workers := maxWorkers
	if len(items) < workers {
		workers = len(items)
	}
	g.logger.DebugWithFields("preloading items", map[string]interface{}{
		"items":   len(items),
		"workers": workers,
	})

	failed := make([]bool, len(items))
	eg, ctx := errgroup.WithContext(context.Background())
	eg.SetLimit(workers)

	for i, item := range items {
		i, item := i, item
		eg.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := item.EnsureLoaded(); err != nil {
				g.recordError(item.Label(), err)
				if !g.ignoreErrors {
					return err
				}
				g.logger.WarnWithFields("failed to preload item", map[string]interface{}{
					"item":  item.Label(),
					"error": err.Error(),
				})
				failed[i] = true
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	loaded := make([]Item, 0, len(items))
	for i, item := range items {
		if !failed[i] {
			loaded = append(loaded, item)
		}
	}
	g.logger.Debug("preloading completed")
	return loaded, nil
}
