package browser

import (
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/solvarr/turnstiled/internal/types"
)

// Instance is a single browser process owned by the pool. It holds up to
// maxPages page slots that are leased out one at a time.
//
// The slots and pending fields are guarded by the pool mutex, not by the
// instance itself. The page/close/alive functions are injected at spawn
// time so the pool machinery can be exercised without real browsers.
type Instance struct {
	id        string
	browser   *rod.Browser
	createdAt time.Time
	maxPages  int
	closed    atomic.Bool
	useCount  atomic.Int64

	// Guarded by the pool mutex.
	slots   []*PageSlot
	pending int // in-flight page creations

	newPage func() (*rod.Page, error)
	closeFn func() error
	aliveFn func() bool
}

// newInstance wires an instance around the given behavior functions.
func newInstance(browser *rod.Browser, maxPages int, newPage func() (*rod.Page, error), closeFn func() error, aliveFn func() bool) *Instance {
	return &Instance{
		id:        uuid.NewString(),
		browser:   browser,
		createdAt: time.Now(),
		maxPages:  maxPages,
		newPage:   newPage,
		closeFn:   closeFn,
		aliveFn:   aliveFn,
	}
}

// ID returns the instance identifier.
func (i *Instance) ID() string {
	return i.id
}

// Browser returns the underlying rod browser handle. May be nil in tests.
func (i *Instance) Browser() *rod.Browser {
	return i.browser
}

// Age returns how long the instance has existed.
func (i *Instance) Age() time.Duration {
	return time.Since(i.createdAt)
}

// Capacity returns the maximum number of page slots.
func (i *Instance) Capacity() int {
	return i.maxPages
}

// reserveSlot claims capacity for one in-flight page creation. The caller
// must hold the pool mutex, and must either materialize the slot or undo
// the reservation by decrementing pending.
func (i *Instance) reserveSlot() error {
	if i.closed.Load() {
		return types.ErrInstanceClosed
	}
	if len(i.slots)+i.pending >= i.maxPages {
		return types.ErrInstanceSaturated
	}
	i.pending++
	return nil
}

// Alive reports whether the browser process is still responsive.
// A closed instance is never alive.
func (i *Instance) Alive() bool {
	if i.closed.Load() {
		return false
	}
	if i.aliveFn != nil {
		return i.aliveFn()
	}
	return true
}

// Close shuts down the browser process. It is idempotent; only the first
// call closes, later calls return nil.
func (i *Instance) Close() error {
	if i.closed.Swap(true) {
		return nil
	}
	if i.closeFn == nil {
		return nil
	}
	if err := i.closeFn(); err != nil {
		log.Warn().Err(err).Str("instance", i.id).Msg("Error closing browser instance")
		return err
	}
	return nil
}

// PageSlot is a lease unit: one open page inside an instance. A slot is
// handed to at most one task at a time. The busy, releasing and lastUsed
// fields are guarded by the pool mutex.
type PageSlot struct {
	id        string
	inst      *Instance
	page      *rod.Page
	busy      bool
	releasing bool // release in progress: page reset not yet finished
	lastUsed  time.Time
}

// ID returns the slot identifier.
func (s *PageSlot) ID() string {
	return s.id
}

// Page returns the slot's page. May be nil in tests.
func (s *PageSlot) Page() *rod.Page {
	return s.page
}

// Instance returns the instance that owns this slot.
func (s *PageSlot) Instance() *Instance {
	return s.inst
}

func newSlotID() string {
	return uuid.NewString()
}
