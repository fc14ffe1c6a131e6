// Package hookstest provides an in-memory hooks.Host for tests.
package hookstest

import "github.com/danielpatrickdp/trainwatch/internal/hooks"

// Entry is one logged pair.
type Entry struct {
	Name  string
	Value float64
	Step  int64
}

// Host records every Log call and serves the latest value per name.
type Host struct {
	Step    int64
	Configs []*hooks.ScheduleConfig
	Entries []Entry
	latest  map[string]float64
}

// NewHost returns an empty host at step zero.
func NewHost() *Host {
	return &Host{latest: make(map[string]float64)}
}

func (h *Host) Log(name string, value float64) {
	h.Entries = append(h.Entries, Entry{Name: name, Value: value, Step: h.Step})
	h.latest[name] = value
}

func (h *Host) GlobalStep() int64                  { return h.Step }
func (h *Host) Schedules() []*hooks.ScheduleConfig { return h.Configs }

func (h *Host) LoggedMetric(name string) (float64, bool) {
	v, ok := h.latest[name]
	return v, ok
}

// Values returns every value logged under name, in order.
func (h *Host) Values(name string) []float64 {
	var out []float64
	for _, e := range h.Entries {
		if e.Name == name {
			out = append(out, e.Value)
		}
	}
	return out
}

// Names returns the logged names in order, with repeats.
func (h *Host) Names() []string {
	out := make([]string, len(h.Entries))
	for i, e := range h.Entries {
		out[i] = e.Name
	}
	return out
}

// Schedule counts Step calls and reports rate = base * factor^steps.
type Schedule struct {
	Base   float64
	Factor float64
	Steps  int
}

func (s *Schedule) Step() { s.Steps++ }

func (s *Schedule) Rates() []float64 {
	r := s.Base
	for i := 0; i < s.Steps; i++ {
		r *= s.Factor
	}
	return []float64{r}
}
