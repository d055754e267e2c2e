package session

import (
	"github.com/dkeye/VoiceBridge/internal/core"
)

// SendClientEvent sends ev to the peer over the data channel, assigning an
// event_id when it has none. It fails with *core.TransportNotReadyError unless
// the session is Active and the channel open.
func (c *Controller) SendClientEvent(ev core.Event) error {
	c.mu.Lock()
	s := c.sess
	active := c.state == Active && s != nil && s.dc != nil
	c.mu.Unlock()
	if !active || !s.dc.IsOpen() {
		return &core.TransportNotReadyError{Transport: core.TransportDataChannel}
	}

	id := ev.EnsureID()
	data, err := ev.Marshal()
	if err != nil {
		return err
	}
	if err := s.dc.Send(data); err != nil {
		return err
	}
	c.emit(SourceClient, core.Envelope{Type: ev.Type(), EventID: id}, data)
	return nil
}

// SendTextMessage sends a user text message and asks for a response.
func (c *Controller) SendTextMessage(text string) error {
	if err := c.SendClientEvent(core.TextMessage(text)); err != nil {
		return err
	}
	return c.SendClientEvent(core.ResponseCreate())
}
