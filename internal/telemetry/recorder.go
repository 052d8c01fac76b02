package telemetry

import (
	"sort"
	"sync"
)

// Recorder accepts named scalar observability signals. The training core
// only pushes values; nothing in it reads them back.
type Recorder interface {
	Record(series string, value float64)
}

// Discard drops every signal.
type Discard struct{}

func (Discard) Record(string, float64) {}

// Memory keeps recorded values grouped by series, optionally bounding
// retention per series so long runs do not grow without limit. Safe for
// concurrent use.
type Memory struct {
	mu     sync.Mutex
	limit  int
	series map[string][]float64
}

// NewMemory returns a memory recorder. A limit of 0 keeps every value;
// otherwise only the most recent limit values per series are retained.
func NewMemory(limitPerSeries int) *Memory {
	return &Memory{
		limit:  limitPerSeries,
		series: make(map[string][]float64),
	}
}

func (m *Memory) Record(series string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	values := append(m.series[series], value)
	if m.limit > 0 && len(values) > m.limit {
		values = values[len(values)-m.limit:]
	}
	m.series[series] = values
}

// Values returns a copy of the retained values for one series.
func (m *Memory) Values(series string) []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]float64(nil), m.series[series]...)
}

// Last returns the most recent value of a series, if any was recorded.
func (m *Memory) Last(series string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	values := m.series[series]
	if len(values) == 0 {
		return 0, false
	}
	return values[len(values)-1], true
}

// Count returns how many values a series currently retains.
func (m *Memory) Count(series string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.series[series])
}

// Names returns the recorded series names in sorted order.
func (m *Memory) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.series))
	for name := range m.series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a deep copy of all retained series.
func (m *Memory) Snapshot() map[string][]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string][]float64, len(m.series))
	for name, values := range m.series {
		out[name] = append([]float64(nil), values...)
	}
	return out
}
