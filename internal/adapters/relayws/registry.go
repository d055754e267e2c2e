package relayws

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

type entry struct {
	conn   *Conn
	cancel context.CancelFunc
}

// Registry tracks live relay connections so shutdown can close them.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*entry
	log   zerolog.Logger
}

func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		conns: make(map[string]*entry),
		log:   logger.With().Str("module", "relayws.registry").Logger(),
	}
}

func (r *Registry) Bind(c *Conn, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.ID()] = &entry{conn: c, cancel: cancel}
	r.log.Info().Str("conn", c.ID()).Int("live", len(r.conns)).Msg("bound connection")
}

func (r *Registry) Unbind(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[id]; !ok {
		return
	}
	delete(r.conns, id)
	r.log.Info().Str("conn", id).Int("live", len(r.conns)).Msg("unbind connection")
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll closes every live connection.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.conns))
	for id, e := range r.conns {
		entries = append(entries, e)
		delete(r.conns, id)
	}
	r.mu.Unlock()

	for _, e := range entries {
		if e.cancel != nil {
			e.cancel()
		}
		e.conn.Close()
	}
	r.log.Info().Int("closed", len(entries)).Msg("closed all connections")
}
