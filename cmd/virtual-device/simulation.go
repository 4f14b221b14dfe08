package main

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/victron-virtual/dbus-virtual-go/pkg/interaction"
	"github.com/victron-virtual/dbus-virtual-go/pkg/model"
)

// simulator periodically writes random in-bounds values to the measured
// properties of a device and emits one change batch per tick.
type simulator struct {
	srv      *interaction.Server
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	rnd     *rand.Rand
	cancel  context.CancelFunc
	running bool
}

const defaultSimulationInterval = 5 * time.Second

func newSimulator(srv *interaction.Server, interval time.Duration, logger *slog.Logger) *simulator {
	if interval <= 0 {
		interval = defaultSimulationInterval
	}
	return &simulator{
		srv:      srv,
		interval: interval,
		logger:   logger,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start runs the simulation until Stop. Starting twice is a no-op.
func (s *simulator) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true
	go s.run(ctx)
	s.logger.Info("simulation started", "interval", s.interval)
}

// Stop ends the simulation.
func (s *simulator) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.cancel()
	s.running = false
	s.logger.Info("simulation stopped")
}

// Running reports whether the simulation is active.
func (s *simulator) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *simulator) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			batch := s.Tick(ctx)
			s.logger.Debug("simulation tick", "seq", batch.Seq, "changed", len(batch.Changes))
		}
	}
}

// Tick updates every simulated property once and emits the batch.
func (s *simulator) Tick(ctx context.Context) interaction.ChangeSet {
	for _, pd := range s.srv.Descriptor().Properties {
		if !simulated(pd) {
			continue
		}
		current, err := s.srv.GetValue(ctx, pd.Name)
		if err != nil {
			continue
		}
		next, ok := s.next(pd, current)
		if !ok {
			continue
		}
		if err := s.srv.SetValue(ctx, interaction.CallerDevice, pd.Name, next); err != nil {
			s.logger.Warn("simulated write rejected", "property", pd.Name, "value", next, "error", err)
		}
	}
	return s.srv.EmitChanges()
}

// simulated reports whether a property gets random values: writable
// measurements only, never fixed values, enum codes or unbounded integers.
func simulated(pd model.PropertyDescriptor) bool {
	if !pd.Writable || pd.Fixed || !pd.Type.IsNumeric() {
		return false
	}
	if strings.HasPrefix(pd.Formatter, "enum:") {
		return false
	}
	if pd.Type == model.WireInt32 && (pd.Min == nil || pd.Max == nil) {
		return false
	}
	return true
}

// next picks a value within bounds. Unbounded doubles walk up to 5% away
// from the current value.
func (s *simulator) next(pd model.PropertyDescriptor, current any) (any, bool) {
	s.mu.Lock()
	r := s.rnd.Float64()
	s.mu.Unlock()

	var v float64
	switch {
	case pd.Min != nil && pd.Max != nil:
		v = *pd.Min + r*(*pd.Max-*pd.Min)
	default:
		base, ok := current.(float64)
		if !ok {
			base = 100 * r
		}
		v = base * (0.95 + 0.1*r)
		if pd.Min != nil && v < *pd.Min {
			v = *pd.Min
		}
		if pd.Max != nil && v > *pd.Max {
			v = *pd.Max
		}
	}

	if pd.Type == model.WireInt32 {
		return int32(math.Round(v)), true
	}
	return math.Round(v*100) / 100, true
}
