package rtc

import (
	"sync"

	"github.com/dkeye/VoiceBridge/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// DataChannel adapts *webrtc.DataChannel to core.DataChannel.
type DataChannel struct {
	dc     *webrtc.DataChannel
	logger zerolog.Logger

	mu        sync.Mutex
	onMessage func(core.Frame)
	onOpen    func()
	onClose   func()
}

func newDataChannel(dc *webrtc.DataChannel, logger zerolog.Logger) *DataChannel {
	d := &DataChannel{dc: dc, logger: logger.With().Str("label", dc.Label()).Logger()}
	dc.OnOpen(func() {
		d.logger.Info().Msg("data channel open")
		d.mu.Lock()
		fn := d.onOpen
		d.mu.Unlock()
		if fn != nil {
			fn()
		}
	})
	dc.OnClose(func() {
		d.logger.Info().Msg("data channel closed")
		d.mu.Lock()
		fn := d.onClose
		d.mu.Unlock()
		if fn != nil {
			fn()
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		d.mu.Lock()
		fn := d.onMessage
		d.mu.Unlock()
		if fn != nil {
			fn(core.Frame(msg.Data))
		}
	})
	return d
}

func (d *DataChannel) Label() string { return d.dc.Label() }

func (d *DataChannel) IsOpen() bool {
	return d.dc.ReadyState() == webrtc.DataChannelStateOpen
}

func (d *DataChannel) Send(f core.Frame) error {
	if !d.IsOpen() {
		return &core.TransportNotReadyError{Transport: core.TransportDataChannel}
	}
	return d.dc.SendText(string(f))
}

func (d *DataChannel) OnMessage(fn func(core.Frame)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onMessage = fn
}

func (d *DataChannel) OnOpen(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onOpen = fn
}

func (d *DataChannel) OnClose(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onClose = fn
}

func (d *DataChannel) Close() error {
	return d.dc.Close()
}
