// Package view derives the per-category, paginated location lists shown next
// to the map. It holds no records of its own beyond the latest replica slice
// it was handed.
package view

import (
	"fmt"
	"sync"

	"github.com/onnwee/locamap/internal/location"
	"github.com/onnwee/locamap/internal/syncerr"
)

// All is the category key that matches every record.
const All = "all"

// PageSize is the number of records per list page.
const PageSize = 7

// Errors returned by Controller.
var (
	ErrUnknownCategory = fmt.Errorf("%w: unknown category", syncerr.ErrValidation)
	ErrInvalidPage     = fmt.Errorf("%w: page must be at least 1", syncerr.ErrValidation)
)

// Page is one rendered page of a category.
type Page struct {
	Key       string
	Page      int
	PageCount int
	Items     []location.Location
}

// Controller owns the active category and one page cursor per category.
// Cursors beyond the last page are clamped whenever the replica shrinks.
type Controller struct {
	mu         sync.RWMutex
	records    []location.Location
	categories []string
	active     string
	pages      map[string]int
}

// NewController returns a controller over an empty replica with "all" active.
func NewController() *Controller {
	return &Controller{
		records:    []location.Location{},
		categories: []string{},
		active:     All,
		pages:      make(map[string]int),
	}
}

// Apply installs a new replica. Categories are recomputed, every stored
// cursor is clamped to its category's new page count, and if the active
// category no longer exists the controller falls back to "all".
func (c *Controller) Apply(records []location.Location) {
	cats := Categories(records)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.records = records
	c.categories = cats

	if c.active != All && !contains(cats, c.active) {
		c.active = All
	}
	for key, p := range c.pages {
		if n := PageCount(countMatching(records, key)); p > n {
			c.pages[key] = n
		}
	}
}

// SelectCategory makes key active and resets its cursor to 1. Other cursors
// are left as they are.
func (c *Controller) SelectCategory(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if key != All && !contains(c.categories, key) {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, key)
	}
	c.active = key
	c.pages[key] = 1
	return nil
}

// SetPage stores the cursor for key. Pages past the end are clamped to the
// last page; the stored value is returned.
func (c *Controller) SetPage(key string, page int) (int, error) {
	if page < 1 {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidPage, page)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if key != All && !contains(c.categories, key) {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCategory, key)
	}
	if n := PageCount(countMatching(c.records, key)); page > n {
		page = n
	}
	c.pages[key] = page
	return page, nil
}

// Active returns the active category key.
func (c *Controller) Active() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// Categories returns the current category keys, excluding "all".
func (c *Controller) Categories() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.categories...)
}

// Tabs returns "all" followed by the current categories.
func (c *Controller) Tabs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tabs := make([]string, 0, len(c.categories)+1)
	tabs = append(tabs, All)
	return append(tabs, c.categories...)
}

// CurrentPage returns the stored cursor for key, 1 if none was stored.
func (c *Controller) CurrentPage(key string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pageLocked(key)
}

func (c *Controller) pageLocked(key string) int {
	if p, ok := c.pages[key]; ok {
		return p
	}
	return 1
}

// PageCount returns the page count of key over the current replica.
func (c *Controller) PageCount(key string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return PageCount(countMatching(c.records, key))
}

// List renders the stored page of key.
func (c *Controller) List(key string) Page {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.renderLocked(key)
}

// ActiveList renders the stored page of the active category.
func (c *Controller) ActiveList() Page {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.renderLocked(c.active)
}

func (c *Controller) renderLocked(key string) Page {
	matching := Filter(c.records, key)
	page := c.pageLocked(key)
	return Page{
		Key:       key,
		Page:      page,
		PageCount: PageCount(len(matching)),
		Items:     Slice(matching, page),
	}
}

// Filter returns the records of category key in replica order.
func Filter(records []location.Location, key string) []location.Location {
	if key == All {
		return records
	}
	out := make([]location.Location, 0, len(records))
	for _, r := range records {
		if r.Country == key {
			out = append(out, r)
		}
	}
	return out
}

// Slice returns page (1-based) of records, empty when out of range.
func Slice(records []location.Location, page int) []location.Location {
	start := (page - 1) * PageSize
	if page < 1 || start >= len(records) {
		return []location.Location{}
	}
	end := min(start+PageSize, len(records))
	return records[start:end]
}

// PageCount returns the number of pages needed for n records, at least 1.
func PageCount(n int) int {
	if n <= 0 {
		return 1
	}
	return (n + PageSize - 1) / PageSize
}

// Categories returns the distinct non-empty countries of records in order
// of first appearance. A country literally named "all" is left out so it
// cannot shadow the fixed tab.
func Categories(records []location.Location) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, r := range records {
		if r.Country == "" || r.Country == All {
			continue
		}
		if _, ok := seen[r.Country]; ok {
			continue
		}
		seen[r.Country] = struct{}{}
		out = append(out, r.Country)
	}
	return out
}

func countMatching(records []location.Location, key string) int {
	if key == All {
		return len(records)
	}
	n := 0
	for _, r := range records {
		if r.Country == key {
			n++
		}
	}
	return n
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
