package cert

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var ErrMissingSerialNumber = errors.New("certificate descriptor has no serial number")

// Manager is a registry of certificate descriptors keyed by serial number.
// Lookups also accept the gateway SN, which is what responses and callbacks
// carry in alipay_cert_sn.
type Manager struct {
	mu       sync.RWMutex
	bySerial map[string]Descriptor
	bySN     map[string]string
}

func NewManager() *Manager {
	return &Manager{
		bySerial: map[string]Descriptor{},
		bySN:     map[string]string{},
	}
}

// Add stores d, replacing any descriptor with the same serial number.
func (m *Manager) Add(d Descriptor) error {
	if d.SerialNumber == "" {
		return ErrMissingSerialNumber
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if previous, ok := m.bySerial[d.SerialNumber]; ok && previous.SN != "" {
		delete(m.bySN, previous.SN)
	}
	m.bySerial[d.SerialNumber] = d
	if d.SN != "" {
		m.bySN[d.SN] = d.SerialNumber
	}
	return nil
}

// Get looks a descriptor up by serial number or gateway SN.
func (m *Manager) Get(id string) (Descriptor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.bySerial[id]; ok {
		return d, true
	}
	if serial, ok := m.bySN[id]; ok {
		d, ok := m.bySerial[serial]
		return d, ok
	}
	return Descriptor{}, false
}

func (m *Manager) Remove(serialNumber string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(serialNumber)
}

func (m *Manager) removeLocked(serialNumber string) bool {
	d, ok := m.bySerial[serialNumber]
	if !ok {
		return false
	}
	delete(m.bySerial, serialNumber)
	if d.SN != "" {
		delete(m.bySN, d.SN)
	}
	return true
}

// PruneExpired removes every descriptor whose NotAfter is before now and
// returns how many were removed.
func (m *Manager) PruneExpired(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for serial, d := range m.bySerial {
		if now.After(d.NotAfter) {
			m.removeLocked(serial)
			removed++
		}
	}
	return removed
}

// Valid lists descriptors valid at now, ordered by serial number.
func (m *Manager) Valid(now time.Time) []Descriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Descriptor, 0, len(m.bySerial))
	for _, d := range m.bySerial {
		if d.ValidAt(now) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SerialNumber < out[j].SerialNumber
	})
	return out
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bySerial)
}
