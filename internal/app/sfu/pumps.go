package sfu

import (
	"context"
	"sync"

	"github.com/dkeye/copilot/internal/domain"
	"github.com/rs/zerolog/log"
)

// PumpManager runs one pump per producer.
type PumpManager struct {
	mu    sync.RWMutex
	pumps map[domain.ProducerID]*Pump
}

func NewPumpManager() *PumpManager {
	return &PumpManager{pumps: make(map[domain.ProducerID]*Pump)}
}

// Start runs src -> sink for id, replacing any pump already registered.
func (m *PumpManager) Start(ctx context.Context, id domain.ProducerID, src PacketSource, sink PacketSink) *Pump {
	logger := log.With().
		Str("module", "sfu.pump").
		Str("producer", string(id)).
		Logger()

	pumpCtx, cancel := context.WithCancel(ctx)
	pump := NewPump(src, sink)
	pump.cancel = cancel

	m.mu.Lock()
	if old, ok := m.pumps[id]; ok {
		logger.Info().Msg("replacing existing pump")
		old.cancel()
	}
	m.pumps[id] = pump
	m.mu.Unlock()

	logger.Info().Msg("starting pump loop")
	go func() {
		pump.loop(pumpCtx, &logger)
		m.forget(id, pump)
	}()
	return pump
}

// Stop cancels the pump for id. The loop exits after its pending read returns.
func (m *PumpManager) Stop(id domain.ProducerID) bool {
	m.mu.Lock()
	p, ok := m.pumps[id]
	delete(m.pumps, id)
	m.mu.Unlock()
	if ok {
		p.cancel()
	}
	return ok
}

func (m *PumpManager) StopAll() {
	m.mu.Lock()
	pumps := m.pumps
	m.pumps = make(map[domain.ProducerID]*Pump)
	m.mu.Unlock()
	for _, p := range pumps {
		p.cancel()
	}
}

func (m *PumpManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pumps)
}

func (m *PumpManager) forget(id domain.ProducerID, p *Pump) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.pumps[id]; ok && cur == p {
		delete(m.pumps, id)
	}
}
