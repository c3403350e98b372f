package settings

import "sync"

// Model owns GlobalSettings and the preset array behind one lock.
// Every mutation normalizes the aggregate before the lock is released.
type Model struct {
	mu      sync.RWMutex
	global  GlobalSettings
	presets [NumPresets]Preset
	changes chan struct{}
}

func NewModel(global GlobalSettings, presets *[NumPresets]Preset) *Model {
	m := &Model{changes: make(chan struct{}, 1)}
	m.replaceLocked(global, presets)

	return m
}

func (m *Model) Changes() <-chan struct{} {
	return m.changes
}

func (m *Model) Global() GlobalSettings {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.global
}

func (m *Model) Preset(index int) (Preset, bool) {
	if index < 0 || index >= NumPresets {
		return Preset{}, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.presets[index], true
}

// Current returns the global settings together with the active preset as one consistent view.
func (m *Model) Current() (GlobalSettings, Preset) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.global, m.presets[m.global.CurrentPreset]
}

func (m *Model) CurrentPreset() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return int(m.global.CurrentPreset)
}

// SetCurrentPreset changes the active preset. Out-of-range indexes are rejected.
func (m *Model) SetCurrentPreset(index int) bool {
	if index < 0 || index >= NumPresets {
		return false
	}
	m.mu.Lock()
	m.global.CurrentPreset = uint16(index)
	m.mu.Unlock()
	m.notify()

	return true
}

// StepPreset moves the active preset by delta with wrap-around and returns the new index.
func (m *Model) StepPreset(delta int) int {
	m.mu.Lock()
	next := (int(m.global.CurrentPreset) + delta) % NumPresets
	if next < 0 {
		next += NumPresets
	}
	m.global.CurrentPreset = uint16(next)
	m.mu.Unlock()
	m.notify()

	return next
}

// Update applies fn to the whole aggregate atomically.
func (m *Model) Update(fn func(g *GlobalSettings, presets *[NumPresets]Preset)) {
	m.mu.Lock()
	fn(&m.global, &m.presets)
	m.normalizeLocked()
	m.mu.Unlock()
	m.notify()
}

func (m *Model) UpdateGlobal(fn func(g *GlobalSettings)) {
	m.Update(func(g *GlobalSettings, _ *[NumPresets]Preset) {
		fn(g)
	})
}

func (m *Model) UpdatePreset(index int, fn func(p *Preset)) bool {
	if index < 0 || index >= NumPresets {
		return false
	}
	m.Update(func(_ *GlobalSettings, presets *[NumPresets]Preset) {
		fn(&presets[index])
	})

	return true
}

// Snapshot copies the full aggregate.
func (m *Model) Snapshot() (GlobalSettings, *[NumPresets]Preset) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	presets := m.presets

	return m.global, &presets
}

func (m *Model) replaceLocked(global GlobalSettings, presets *[NumPresets]Preset) {
	m.global = global
	if presets != nil {
		m.presets = *presets
	}
	m.normalizeLocked()
}

func (m *Model) normalizeLocked() {
	m.global.Normalize()
	for i := range m.presets {
		m.presets[i].Normalize(i)
	}
}

func (m *Model) notify() {
	select {
	case m.changes <- struct{}{}:
	default:
	}
}
