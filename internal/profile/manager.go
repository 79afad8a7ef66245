package profile

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/mdrv/python-game/internal/clock"
	"github.com/mdrv/python-game/internal/events"
	"github.com/mdrv/python-game/internal/storage"
)

// AutoSaveStatus reflects persistence progress, not story progress.
type AutoSaveStatus string

const (
	StatusIdle    AutoSaveStatus = "idle"
	StatusPending AutoSaveStatus = "pending"
	StatusSaving  AutoSaveStatus = "saving"
	StatusSuccess AutoSaveStatus = "success"
	StatusError   AutoSaveStatus = "error"
)

// ErrNoActiveProfile is returned (and logged) when a mutation arrives with
// no profile loaded. Callers treat it as a programming error, not a failure.
var ErrNoActiveProfile = errors.New("no active profile")

type Options struct {
	// Debounce is the quiet period after the last mutation before saving.
	Debounce time.Duration
	// Interval is the period of the safety-net save while a profile is active.
	Interval time.Duration
	// SuccessHold is how long StatusSuccess is shown before returning to idle.
	SuccessHold time.Duration
	// Language is the default language of new profiles.
	Language string
	Clock    clock.Clock
	// OnStatus is called outside the manager's lock on every status change.
	OnStatus func(AutoSaveStatus)
}

func (o Options) withDefaults() Options {
	if o.Debounce <= 0 {
		o.Debounce = 2 * time.Second
	}
	if o.Interval <= 0 {
		o.Interval = 30 * time.Second
	}
	if o.SuccessHold <= 0 {
		o.SuccessHold = time.Second
	}
	if o.Language == "" {
		o.Language = "id"
	}
	if o.Clock == nil {
		o.Clock = clock.Real{}
	}
	return o
}

// pendingSave is a debounced write for one profile. Profiles detached by
// ClearProfile keep theirs until it fires.
type pendingSave struct {
	timer  clock.Timer
	gen    uint64
	target *KidProfile
}

type statusNotice struct {
	status    AutoSaveStatus
	profileID string
}

// Manager owns at most one active profile and schedules its durable writes.
// The debounce and periodic paths share one save routine, guarded so that
// at most one write is in flight at a time.
type Manager struct {
	gw   Gateway
	opts Options
	ctx  context.Context

	mu          sync.Mutex
	active      *KidProfile
	status      AutoSaveStatus
	statusSeq   uint64
	saving      bool
	inflight    chan struct{}
	debounces   map[string]*pendingSave
	debounceGen uint64
	periodic    clock.Timer
	notices     []statusNotice

	unavailableOnce sync.Once
}

func NewManager(gw Gateway, opts Options) *Manager {
	return &Manager{
		gw:        gw,
		opts:      opts.withDefaults(),
		ctx:       context.Background(),
		status:    StatusIdle,
		debounces: make(map[string]*pendingSave),
	}
}

// Init opens the gateway. A failure is reported once as storage.unavailable;
// story playback can continue without saving.
func (m *Manager) Init(ctx context.Context, cfg storage.Config) error {
	if m.gw.IsInitialized() {
		return nil
	}
	if err := m.gw.Init(ctx, cfg); err != nil {
		m.unavailableOnce.Do(func() {
			log.Printf("profile: durable storage unavailable: %v", err)
			events.Emit("error", "storage.unavailable", "durable storage unavailable", map[string]interface{}{
				"error": err.Error(),
			})
		})
		return err
	}
	return nil
}

// CreateProfile builds a fresh profile and makes it active. No I/O happens.
func (m *Manager) CreateProfile(name string, age int) *KidProfile {
	p := New(name, age, m.opts.Language, m.opts.Clock.Now())

	m.mu.Lock()
	m.setActiveLocked(p)
	out := p.Clone()
	m.unlock()

	events.Emit("info", "profile.created", "", map[string]interface{}{"profile_id": p.ID})
	return out
}

// LoadProfile fetches id and makes it active. An unknown id leaves no
// profile active and returns (nil, nil); storage failures are returned.
// A profile whose debounced save is still pending is resumed from memory.
func (m *Manager) LoadProfile(ctx context.Context, id string) (*KidProfile, error) {
	p, err := m.gw.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if pending, ok := m.debounces[id]; ok {
		// the unsaved in-memory copy is newer than the stored one
		p = pending.target
	}
	m.setActiveLocked(p)
	out := p.Clone()
	m.unlock()

	events.Emit("info", "profile.loaded", "", map[string]interface{}{
		"profile_id": id,
		"found":      p != nil,
	})
	return out, nil
}

// UpdateProfile shallow-merges u into the active profile and schedules a save.
func (m *Manager) UpdateProfile(u Update) error {
	m.mu.Lock()
	if m.active == nil {
		m.unlock()
		log.Printf("profile: cannot update profile: %v", ErrNoActiveProfile)
		return ErrNoActiveProfile
	}
	u.apply(m.active)
	id := m.active.ID
	m.scheduleLocked()
	m.unlock()

	events.Emit("info", "profile.updated", "", map[string]interface{}{"profile_id": id})
	return nil
}

// UpdateStoryProgress merges u into the active profile's story, refreshes
// the last-played time and schedules a save.
func (m *Manager) UpdateStoryProgress(u StoryUpdate) error {
	m.mu.Lock()
	defer m.unlock()
	if m.active == nil {
		log.Printf("profile: cannot update story: %v", ErrNoActiveProfile)
		return ErrNoActiveProfile
	}
	u.Apply(&m.active.Story)
	m.active.LastPlayedAt = m.opts.Clock.Now().UTC().Round(0)
	m.scheduleLocked()
	return nil
}

// UpdateLastPlayed refreshes the last-played time without scheduling a save.
func (m *Manager) UpdateLastPlayed() {
	m.mu.Lock()
	defer m.unlock()
	if m.active != nil {
		m.active.LastPlayedAt = m.opts.Clock.Now().UTC().Round(0)
	}
}

// ForceSave writes the active profile now, waiting for an in-flight save to
// finish first. Pending saves of detached profiles are left to fire.
// It reports whether the write succeeded.
func (m *Manager) ForceSave(ctx context.Context) bool {
	for {
		m.mu.Lock()
		if m.active == nil {
			m.unlock()
			return false
		}
		if !m.saving {
			break
		}
		wait := m.inflight
		m.unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return false
		}
	}
	m.cancelDebounceLocked(m.active.ID)
	snapshot := m.beginSaveLocked(m.active)
	m.unlock()
	return m.write(ctx, snapshot)
}

// ClearProfile detaches the active profile and stops the periodic save.
// A pending debounced save still writes the detached profile's last state.
func (m *Manager) ClearProfile() {
	m.mu.Lock()
	var id string
	if m.active != nil {
		id = m.active.ID
	}
	m.setActiveLocked(nil)
	m.unlock()

	if id != "" {
		events.Emit("info", "profile.cleared", "", map[string]interface{}{"profile_id": id})
	}
}

// DeleteProfile removes id from durable storage. Deleting the active profile
// also clears it and drops any pending save for it.
func (m *Manager) DeleteProfile(ctx context.Context, id string) error {
	m.mu.Lock()
	m.cancelDebounceLocked(id)
	if m.active != nil && m.active.ID == id {
		m.setActiveLocked(nil)
	}
	m.unlock()

	if err := m.gw.Delete(ctx, id); err != nil {
		return err
	}
	events.Emit("info", "profile.deleted", "", map[string]interface{}{"profile_id": id})
	return nil
}

// ListProfiles returns every stored profile, most recently played first.
func (m *Manager) ListProfiles(ctx context.Context) ([]*KidProfile, error) {
	all, err := m.gw.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].LastPlayedAt.After(all[j].LastPlayedAt)
	})
	return all, nil
}

// Active returns a copy of the active profile, or nil.
func (m *Manager) Active() *KidProfile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active.Clone()
}

func (m *Manager) IsLoaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active != nil
}

func (m *Manager) Status() AutoSaveStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// IsAutoSaving reports whether a save is pending or in flight.
func (m *Manager) IsAutoSaving() bool {
	s := m.Status()
	return s == StatusPending || s == StatusSaving
}

func (m *Manager) setActiveLocked(p *KidProfile) {
	m.active = p
	if p != nil && m.periodic == nil {
		m.periodic = clock.Every(m.opts.Clock, m.opts.Interval, m.periodicTick)
	}
	if p == nil && m.periodic != nil {
		m.periodic.Stop()
		m.periodic = nil
	}
}

// scheduleLocked restarts the debounce window for the active profile.
// Pending saves of other profiles are not touched.
func (m *Manager) scheduleLocked() {
	id := m.active.ID
	if p, ok := m.debounces[id]; ok {
		p.timer.Stop()
	}
	m.debounceGen++
	p := &pendingSave{gen: m.debounceGen, target: m.active}
	p.timer = m.opts.Clock.AfterFunc(m.opts.Debounce, func() { m.debounceFired(id, p.gen) })
	m.debounces[id] = p
	m.setStatusLocked(StatusPending)
}

func (m *Manager) cancelDebounceLocked(id string) {
	if p, ok := m.debounces[id]; ok {
		p.timer.Stop()
		delete(m.debounces, id)
	}
}

func (m *Manager) debounceFired(id string, gen uint64) {
	m.mu.Lock()
	p, ok := m.debounces[id]
	if !ok || p.gen != gen {
		// superseded by a newer mutation or cancelled
		m.unlock()
		return
	}
	if m.saving {
		p.timer = m.opts.Clock.AfterFunc(m.opts.Debounce, func() { m.debounceFired(id, gen) })
		m.unlock()
		return
	}
	delete(m.debounces, id)
	if !m.gw.IsInitialized() {
		// storage unavailable: nothing will be written
		m.setStatusLocked(StatusError)
		m.unlock()
		return
	}
	snapshot := m.beginSaveLocked(p.target)
	m.unlock()
	m.write(m.ctx, snapshot)
}

func (m *Manager) periodicTick() {
	m.mu.Lock()
	if m.active == nil || m.saving || !m.gw.IsInitialized() {
		m.unlock()
		return
	}
	snapshot := m.beginSaveLocked(m.active)
	m.unlock()
	m.write(m.ctx, snapshot)
}

func (m *Manager) beginSaveLocked(target *KidProfile) *KidProfile {
	m.saving = true
	m.inflight = make(chan struct{})
	m.setStatusLocked(StatusSaving)
	return target.Clone()
}

func (m *Manager) write(ctx context.Context, snapshot *KidProfile) bool {
	res := m.gw.Put(ctx, snapshot)

	m.mu.Lock()
	m.saving = false
	close(m.inflight)
	m.inflight = nil
	if res.Success {
		m.setStatusLocked(StatusSuccess)
		seq := m.statusSeq
		m.opts.Clock.AfterFunc(m.opts.SuccessHold, func() {
			m.mu.Lock()
			if m.statusSeq == seq {
				m.setStatusLocked(StatusIdle)
			}
			m.unlock()
		})
	} else {
		m.setStatusLocked(StatusError)
	}
	m.unlock()

	if !res.Success {
		log.Printf("profile: auto-save of %s failed: %s", snapshot.ID, res.Error)
		events.Emit("error", "storage.error", res.Error, map[string]interface{}{
			"op":         "put",
			"profile_id": snapshot.ID,
		})
	}
	return res.Success
}

func (m *Manager) setStatusLocked(s AutoSaveStatus) {
	m.status = s
	m.statusSeq++
	var id string
	if m.active != nil {
		id = m.active.ID
	}
	m.notices = append(m.notices, statusNotice{status: s, profileID: id})
}

// unlock releases mu and then publishes queued status changes, so callbacks
// and the event journal never run under the lock.
func (m *Manager) unlock() {
	notices := m.notices
	m.notices = nil
	m.mu.Unlock()

	for _, n := range notices {
		fields := map[string]interface{}{"status": string(n.status)}
		if n.profileID != "" {
			fields["profile_id"] = n.profileID
		}
		level := "info"
		if n.status == StatusError {
			level = "error"
		}
		events.Emit(level, "autosave.status", "", fields)
		if m.opts.OnStatus != nil {
			m.opts.OnStatus(n.status)
		}
	}
}
