// Package browser provides the two-level browser pool: a bounded set of
// browser instances, each exposing a bounded set of page slots that are
// leased to solve tasks and reused across requests.
//
// Instances and slots are created lazily up to the configured maxima, so an
// idle service holds no browser processes at all.
package browser

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/solvarr/turnstiled/internal/config"
	"github.com/solvarr/turnstiled/internal/metrics"
	"github.com/solvarr/turnstiled/internal/types"
)

// Pool manages browser instances and their page slots.
//
// Lock ordering: mu guards instances, every instance's slots/pending, and
// the lease counter. Never hold mu while performing slow I/O (launching,
// page creation, navigation).
type Pool struct {
	mu        sync.Mutex
	instances []*Instance
	cfg       *config.Config
	closed    atomic.Bool

	// Guarded by mu.
	spawning int // in-flight instance launches
	leases   int // slots currently leased out

	// freeCh is signaled whenever capacity may have appeared: a slot was
	// released or an instance evicted. Sized to total page capacity so a
	// burst of releases never drops a wakeup; waiters tolerate spurious
	// signals by re-scanning.
	freeCh chan struct{}

	stopCh chan struct{}
	wg     sync.WaitGroup

	// Tracks background instance-close goroutines for clean shutdown.
	closeWg sync.WaitGroup

	// spawn launches a new instance. Overridable in tests.
	spawn func(ctx context.Context) (*Instance, error)

	// resetPage returns a slot's page to a neutral state before the slot
	// becomes leasable again. Overridable in tests.
	resetPage func(slot *PageSlot) error

	stats PoolStats
}

// PoolStats provides statistics about pool usage.
type PoolStats struct {
	Acquired atomic.Int64
	Released atomic.Int64
	Spawned  atomic.Int64
	Evicted  atomic.Int64
	Errors   atomic.Int64
}

// PoolStatsSnapshot holds a point-in-time snapshot of pool statistics.
type PoolStatsSnapshot struct {
	Acquired  int64
	Released  int64
	Spawned   int64
	Evicted   int64
	Errors    int64
	Instances int
	Leases    int
}

// NewPool creates a browser pool. No browsers are launched here; instances
// are spawned on demand by AcquireSlot (or explicitly via Prewarm).
func NewPool(cfg *config.Config) *Pool {
	p := &Pool{
		cfg:    cfg,
		freeCh: make(chan struct{}, cfg.MaxConcurrentSolves()),
		stopCh: make(chan struct{}),
	}
	p.spawn = p.spawnInstance
	p.resetPage = func(slot *PageSlot) error {
		if slot.page == nil {
			return nil
		}
		return slot.page.Navigate("about:blank")
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.janitor()
	}()

	log.Info().
		Int("max_browsers", cfg.MaxBrowsers).
		Int("pages_per_browser", cfg.PagesPerBrowser).
		Bool("headless", cfg.Headless).
		Msg("Browser pool initialized")

	return p
}

// spawnInstance launches a real browser process and wires an Instance
// around it. Each call creates a fresh launcher since launchers can only
// be used once.
func (p *Pool) spawnInstance(ctx context.Context) (*Instance, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	instanceID := fmt.Sprintf("browser-%d", time.Now().UnixNano())
	l := createLauncher(p.cfg, instanceID)

	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	b := rod.New().ControlURL(url)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	cfg := p.cfg
	inst := newInstance(b, cfg.PagesPerBrowser,
		func() (*rod.Page, error) {
			page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
			if err != nil {
				return nil, err
			}
			if err := preparePage(page, cfg); err != nil {
				_ = page.Close()
				return nil, err
			}
			return page, nil
		},
		b.Close,
		func() bool {
			_, err := proto.BrowserGetVersion{}.Call(b)
			return err == nil
		},
	)

	log.Debug().Str("instance", inst.ID()).Str("url", url).Msg("Browser instance spawned")
	return inst, nil
}

// AcquireSlot leases a page slot. It prefers an idle slot, then grows an
// existing instance, then launches a new instance, and otherwise blocks
// until a slot frees up, the context is canceled, or the configured
// acquire timeout elapses (ErrPoolExhausted).
//
// The caller MUST release the slot exactly once:
//
//	slot, err := pool.AcquireSlot(ctx)
//	if err != nil {
//	    return err
//	}
//	defer pool.ReleaseSlot(slot)
func (p *Pool) AcquireSlot(ctx context.Context) (*PageSlot, error) {
	if p.closed.Load() {
		return nil, types.ErrPoolClosed
	}

	deadline := time.NewTimer(p.cfg.PoolAcquireTimeout)
	defer deadline.Stop()

	for {
		slot, err := p.tryAcquire(ctx)
		if err != nil {
			return nil, err
		}
		if slot != nil {
			// Lazy health check: a process may have died while its
			// slots sat idle.
			if !slot.inst.Alive() {
				log.Warn().Str("instance", slot.inst.ID()).Msg("Leased slot on dead instance, evicting")
				p.discardLease(slot)
				p.Evict(slot.inst)
				continue
			}
			p.stats.Acquired.Add(1)
			p.updateMetrics()
			return slot, nil
		}

		// Pool is at capacity with every slot leased: wait.
		select {
		case <-p.freeCh:
		case <-ctx.Done():
			return nil, fmt.Errorf("slot acquisition canceled: %w", ctx.Err())
		case <-deadline.C:
			p.stats.Errors.Add(1)
			return nil, types.ErrPoolExhausted
		case <-p.stopCh:
			return nil, types.ErrPoolClosed
		}
	}
}

// tryAcquire makes one pass over the pool. It returns a leased slot, or
// (nil, nil) when the caller should wait and retry.
func (p *Pool) tryAcquire(ctx context.Context) (*PageSlot, error) {
	p.mu.Lock()

	if p.closed.Load() {
		p.mu.Unlock()
		return nil, types.ErrPoolClosed
	}

	// 1. Reuse an idle slot.
	for _, inst := range p.instances {
		if inst.closed.Load() {
			continue
		}
		for _, s := range inst.slots {
			if !s.busy {
				s.busy = true
				p.leases++
				inst.useCount.Add(1)
				p.mu.Unlock()
				return s, nil
			}
		}
	}

	// 2. Open another page on an instance with spare capacity.
	for _, inst := range p.instances {
		if inst.reserveSlot() != nil {
			continue
		}
		p.mu.Unlock()
		return p.growInstance(inst)
	}

	// 3. Launch a new instance if under the cap.
	if len(p.instances)+p.spawning < p.cfg.MaxBrowsers {
		p.spawning++
		p.mu.Unlock()
		return p.launchAndGrow(ctx)
	}

	p.mu.Unlock()
	return nil, nil
}

// growInstance opens a new page on inst and leases it. The pending
// reservation made by the caller is consumed here. Returns (nil, nil) on
// transient failure so the acquire loop can retry elsewhere.
func (p *Pool) growInstance(inst *Instance) (*PageSlot, error) {
	page, err := inst.newPage()

	p.mu.Lock()
	inst.pending--

	if err != nil {
		p.mu.Unlock()
		p.stats.Errors.Add(1)
		log.Warn().Err(err).Str("instance", inst.ID()).Msg("Failed to open page, evicting instance")
		p.Evict(inst)
		return nil, nil
	}

	if p.closed.Load() || inst.closed.Load() {
		p.mu.Unlock()
		if page != nil {
			_ = page.Close()
		}
		if p.closed.Load() {
			return nil, types.ErrPoolClosed
		}
		return nil, nil
	}

	slot := &PageSlot{
		id:       newSlotID(),
		inst:     inst,
		page:     page,
		busy:     true,
		lastUsed: time.Now(),
	}
	inst.slots = append(inst.slots, slot)
	inst.useCount.Add(1)
	p.leases++
	p.mu.Unlock()

	log.Debug().
		Str("instance", inst.ID()).
		Str("slot", slot.id).
		Msg("Page slot created")
	return slot, nil
}

// launchAndGrow spawns a new instance and leases its first slot. The
// spawning reservation made by the caller is consumed here.
func (p *Pool) launchAndGrow(ctx context.Context) (*PageSlot, error) {
	inst, err := p.spawn(ctx)

	p.mu.Lock()
	p.spawning--

	if err != nil {
		p.mu.Unlock()
		p.stats.Errors.Add(1)
		p.signalFree()
		return nil, types.NewPoolSpawnError(err.Error(), err)
	}

	if p.closed.Load() {
		p.mu.Unlock()
		_ = inst.Close()
		return nil, types.ErrPoolClosed
	}

	p.instances = append(p.instances, inst)
	inst.pending++
	p.mu.Unlock()

	p.stats.Spawned.Add(1)
	p.updateMetrics()
	log.Info().Str("instance", inst.ID()).Int("instances", p.Instances()).Msg("Browser instance added to pool")

	return p.growInstance(inst)
}

// ReleaseSlot returns a leased slot to the pool. The page is reset before
// the slot is marked idle, so a subsequent lease can never race the reset
// navigation. Releasing a slot that is not leased (double release, nil
// slot) is a logged no-op, so the exactly-once contract degrades safely.
func (p *Pool) ReleaseSlot(slot *PageSlot) {
	if slot == nil {
		return
	}

	p.mu.Lock()
	if !slot.busy || slot.releasing {
		p.mu.Unlock()
		log.Warn().Str("slot", slot.id).Msg("Ignoring release of slot that is not leased")
		return
	}
	slot.releasing = true
	poolClosed := p.closed.Load()
	instClosed := slot.inst.closed.Load()
	p.mu.Unlock()

	// Reset the page outside the lock but while the slot is still marked
	// busy, so it cannot be leased mid-reset. Instance teardown owns page
	// cleanup for dead/closing instances.
	resetFailed := false
	if !poolClosed && !instClosed {
		if err := p.resetPage(slot); err != nil {
			log.Warn().Err(err).Str("slot", slot.id).Msg("Failed to reset page on release, evicting instance")
			resetFailed = true
		}
	}

	p.mu.Lock()
	slot.releasing = false
	slot.lastUsed = time.Now()
	p.leases--
	// A slot whose reset failed stays busy so it is never leased again;
	// it is retired with its instance below.
	if !resetFailed {
		slot.busy = false
	}
	p.mu.Unlock()

	p.stats.Released.Add(1)

	if resetFailed {
		p.Evict(slot.inst)
	}

	p.updateMetrics()
	p.signalFree()
}

// discardLease undoes the bookkeeping of a lease that was never handed to
// a caller (acquire-time health check failure).
func (p *Pool) discardLease(slot *PageSlot) {
	p.mu.Lock()
	if slot.busy {
		slot.busy = false
		p.leases--
	}
	p.mu.Unlock()
}

// Evict removes an instance from the pool and closes it in the background.
// Slots currently leased from the instance stay with their tasks, which
// will fail independently and release as usual; idle slots die with the
// instance. Capacity for a replacement instance is freed immediately.
func (p *Pool) Evict(inst *Instance) {
	if inst == nil {
		return
	}

	p.mu.Lock()
	found := false
	for idx, cand := range p.instances {
		if cand == inst {
			last := len(p.instances) - 1
			p.instances[idx] = p.instances[last]
			p.instances = p.instances[:last]
			found = true
			break
		}
	}
	p.mu.Unlock()

	if !found {
		return // already evicted
	}

	p.stats.Evicted.Add(1)
	log.Warn().Str("instance", inst.ID()).Msg("Evicting browser instance")

	p.closeWg.Add(1)
	go func() {
		defer p.closeWg.Done()
		p.closeInstanceWithTimeout(inst, 10*time.Second)
	}()

	p.updateMetrics()
	p.signalFree()
}

// closeInstanceWithTimeout closes an instance, abandoning the wait (but
// not the close) if it exceeds the timeout.
func (p *Pool) closeInstanceWithTimeout(inst *Instance, timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = inst.Close()
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		p.stats.Errors.Add(1)
		log.Warn().Str("instance", inst.ID()).Msg("Browser instance close timed out")
	}
}

// Prewarm launches up to n instances ahead of demand, each with one idle
// slot, so the first requests skip browser startup latency.
func (p *Pool) Prewarm(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		if p.closed.Load() {
			return types.ErrPoolClosed
		}

		p.mu.Lock()
		if len(p.instances)+p.spawning >= p.cfg.MaxBrowsers {
			p.mu.Unlock()
			return nil
		}
		p.spawning++
		p.mu.Unlock()

		inst, err := p.spawn(ctx)

		p.mu.Lock()
		p.spawning--
		if err != nil {
			p.mu.Unlock()
			return types.NewPoolSpawnError(err.Error(), err)
		}
		if p.closed.Load() {
			p.mu.Unlock()
			_ = inst.Close()
			return types.ErrPoolClosed
		}
		p.instances = append(p.instances, inst)
		inst.pending++
		p.mu.Unlock()

		p.stats.Spawned.Add(1)

		page, err := inst.newPage()

		p.mu.Lock()
		inst.pending--
		if err != nil {
			p.mu.Unlock()
			p.Evict(inst)
			return fmt.Errorf("prewarm page creation failed: %w", err)
		}
		inst.slots = append(inst.slots, &PageSlot{
			id:       newSlotID(),
			inst:     inst,
			page:     page,
			lastUsed: time.Now(),
		})
		p.mu.Unlock()

		p.updateMetrics()
		p.signalFree()
	}
	return nil
}

// janitor periodically evicts dead instances and recycles idle instances
// past their max age.
func (p *Pool) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			log.Debug().Msg("Pool janitor stopping")
			return
		case <-ticker.C:
			if p.closed.Load() {
				return
			}
			p.sweep()
		}
	}
}

// sweep collects eviction candidates under the lock, then evicts outside it.
func (p *Pool) sweep() {
	p.mu.Lock()
	snapshot := make([]*Instance, len(p.instances))
	copy(snapshot, p.instances)

	var dead, stale, probe []*Instance
	for _, inst := range snapshot {
		idle := true
		for _, s := range inst.slots {
			if s.busy {
				idle = false
				break
			}
		}
		switch {
		case inst.closed.Load():
			dead = append(dead, inst)
		case idle && inst.pending == 0 && inst.Age() > p.cfg.BrowserMaxAge:
			stale = append(stale, inst)
		default:
			probe = append(probe, inst)
		}
	}
	p.mu.Unlock()

	// Liveness probes are slow I/O, run them outside the lock.
	for _, inst := range probe {
		if !inst.Alive() && !inst.closed.Load() {
			dead = append(dead, inst)
		}
	}

	for _, inst := range dead {
		log.Warn().Str("instance", inst.ID()).Msg("Janitor evicting dead instance")
		p.Evict(inst)
	}
	for _, inst := range stale {
		log.Info().
			Str("instance", inst.ID()).
			Dur("age", inst.Age()).
			Msg("Janitor recycling stale idle instance")
		p.Evict(inst)
	}
}

// Instances returns the current number of live instances.
func (p *Pool) Instances() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.instances)
}

// Leases returns the number of slots currently leased out.
func (p *Pool) Leases() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.leases
}

// Capacity returns the maximum number of concurrent leases.
func (p *Pool) Capacity() int {
	return p.cfg.MaxConcurrentSolves()
}

// Stats returns a snapshot of the current pool statistics.
func (p *Pool) Stats() PoolStatsSnapshot {
	p.mu.Lock()
	instances := len(p.instances)
	leases := p.leases
	p.mu.Unlock()

	return PoolStatsSnapshot{
		Acquired:  p.stats.Acquired.Load(),
		Released:  p.stats.Released.Load(),
		Spawned:   p.stats.Spawned.Load(),
		Evicted:   p.stats.Evicted.Load(),
		Errors:    p.stats.Errors.Load(),
		Instances: instances,
		Leases:    leases,
	}
}

// Close shuts down the pool and all instances. After Close, AcquireSlot
// returns ErrPoolClosed. Close is safe to call multiple times.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed.Swap(true) {
		p.mu.Unlock()
		return nil
	}
	instances := make([]*Instance, len(p.instances))
	copy(instances, p.instances)
	p.instances = nil
	p.mu.Unlock()

	log.Info().Int("instances", len(instances)).Msg("Closing browser pool")

	// Wake blocked acquirers and stop background routines.
	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		log.Warn().Msg("Timeout waiting for pool background goroutines to stop")
	}

	// Close instances in parallel, bounded to avoid a shutdown stampede.
	eg := new(errgroup.Group)
	eg.SetLimit(4)
	for _, inst := range instances {
		inst := inst
		eg.Go(func() error {
			return inst.Close()
		})
	}
	closeErr := eg.Wait()

	// Wait for eviction close goroutines still in flight.
	evictDone := make(chan struct{})
	go func() {
		p.closeWg.Wait()
		close(evictDone)
	}()
	select {
	case <-evictDone:
	case <-time.After(15 * time.Second):
		log.Warn().Msg("Timeout waiting for instance close goroutines")
	}

	log.Info().
		Int64("total_acquired", p.stats.Acquired.Load()).
		Int64("total_released", p.stats.Released.Load()).
		Int64("total_spawned", p.stats.Spawned.Load()).
		Int64("total_evicted", p.stats.Evicted.Load()).
		Msg("Browser pool closed")

	return closeErr
}

// signalFree wakes one waiter. The channel is sized to total capacity, so
// the send only drops when every possible waiter already has a pending
// wakeup.
func (p *Pool) signalFree() {
	select {
	case p.freeCh <- struct{}{}:
	default:
	}
}

func (p *Pool) updateMetrics() {
	s := p.Stats()
	metrics.UpdatePoolMetrics(s.Instances, s.Leases, p.Capacity())
}
