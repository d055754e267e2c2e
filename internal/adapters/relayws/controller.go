package relayws

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/dkeye/VoiceBridge/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Settings shape the session.update sent to every new realtime session.
type Settings struct {
	Instructions string
	Voice        string
	Greeting     string
	SilenceMS    int
}

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	SendBuffer int
}

// Controller serves the relay websocket. It configures each realtime session
// as soon as the peer announces it and logs what the conversation produced.
type Controller struct {
	Registry *Registry

	settings atomic.Pointer[Settings]
	tools    toolSet
	opts     Options
	upgrader websocket.Upgrader
	now      func() time.Time
	log      zerolog.Logger
}

func NewController(s Settings, opts Options, reg *Registry, logger zerolog.Logger) *Controller {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 32
	}
	ctl := &Controller{
		Registry: reg,
		opts:     opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		now: time.Now,
		log: logger.With().Str("module", "relayws").Logger(),
	}
	ctl.SetSettings(s)
	return ctl
}

// SetSettings swaps the settings used for sessions created from now on.
func (ctl *Controller) SetSettings(s Settings) {
	if s.SilenceMS <= 0 {
		s.SilenceMS = 750
	}
	ctl.settings.Store(&s)
}

func (ctl *Controller) Settings() Settings { return *ctl.settings.Load() }

// connState is touched only by the read pump of its connection.
type connState struct {
	inputTokens  int64
	outputTokens int64

	// turnEnd marks when the user stopped talking or the assistant finished
	// playing; zero when no turn is waiting for an answer.
	turnEnd     time.Time
	lastLatency time.Duration
}

func (ctl *Controller) Handle(ctx context.Context, c *gin.Context) {
	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		ctl.log.Error().Err(err).Msg("ws upgrade")
		return
	}
	if ctl.opts.ReadLimit > 0 {
		ws.SetReadLimit(ctl.opts.ReadLimit)
	}
	if p := ctl.opts.PingPeriod; p > 0 {
		_ = ws.SetReadDeadline(time.Now().Add(p * 2))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(p * 2))
		})
	}

	conn := newConn(uuid.NewString(), ws, ctl.opts.SendBuffer)
	ctl.log.Info().Str("conn", conn.ID()).Str("ip", c.ClientIP()).Msg("new relay connection")

	ctx, cancel := context.WithCancel(ctx)
	ctl.Registry.Bind(conn, cancel)

	st := &connState{}
	go ctl.writePump(ctx, conn, ctl.opts.PingPeriod)
	go ctl.readPump(ctx, conn, st)
}

func (ctl *Controller) handleEvent(c *Conn, st *connState, data []byte) {
	ev, err := core.DecodeEvent(core.TransportRelay, data)
	if err != nil {
		ctl.log.Error().Err(err).Str("conn", c.ID()).Msg("bad json")
		return
	}
	log := ctl.log.With().Str("conn", c.ID()).Str("type", ev.Type()).Logger()

	switch ev.Type() {
	case core.EventTypeSessionCreated:
		log.Info().Msg("session created, configuring")
		s := ctl.Settings()
		ctl.sendEvent(c, SessionUpdate(s, ctl.tools.list()))
		if s.Greeting != "" {
			ctl.sendEvent(c, Respond(s.Greeting))
		}
	case core.EventTypeSessionUpdated:
		log.Debug().Msg("session updated")
	case core.EventTypePing:
		ctl.sendEvent(c, core.Event{"type": core.EventTypePong})
	case core.EventTypeError:
		log.Error().Interface("error", ev["error"]).Msg("event error")
	case core.EventTypeTranscriptionCompleted:
		log.Info().Interface("transcript", ev["transcript"]).Msg("user said")
	case core.EventTypeAudioTranscriptDone:
		log.Info().Interface("transcript", ev["transcript"]).Msg("assistant said")
	case core.EventTypeSpeechStopped, core.EventTypeOutputAudioStopped:
		st.turnEnd = ctl.now()
	case core.EventTypeOutputAudioStarted:
		if !st.turnEnd.IsZero() {
			st.lastLatency = ctl.now().Sub(st.turnEnd)
			st.turnEnd = time.Time{}
			log.Info().Int64("latency_ms", st.lastLatency.Milliseconds()).Msg("response latency")
		}
	case core.EventTypeResponseDone:
		in, out := usage(ev)
		st.inputTokens += in
		st.outputTokens += out
		log.Debug().
			Int64("input_tokens", st.inputTokens).
			Int64("output_tokens", st.outputTokens).
			Msg("response done")
	case core.EventTypeFunctionCallDone:
		name, _ := ev["name"].(string)
		args, _ := ev["arguments"].(string)
		start := ctl.now()
		instructions := ctl.callTool(name, args)
		ctl.sendEvent(c, Respond(instructions))
		log.Info().
			Str("tool", name).
			Interface("call_id", ev["call_id"]).
			Int64("latency_ms", ctl.now().Sub(start).Milliseconds()).
			Msg("function call answered")
	default:
		log.Debug().Msg("event")
	}
}

func (ctl *Controller) sendEvent(c *Conn, ev core.Event) {
	ev.EnsureID()
	b, err := ev.Marshal()
	if err != nil {
		ctl.log.Error().Err(err).Msg("sendEvent marshal")
		return
	}
	if err := c.TrySend(b); err != nil {
		ctl.log.Warn().Err(err).Str("conn", c.ID()).Str("type", ev.Type()).Msg("sendEvent")
	}
}

// SessionUpdate builds the session.update for s, advertising tools.
func SessionUpdate(s Settings, tools []Tool) core.Event {
	session := map[string]any{
		"modalities":   []string{"text", "audio"},
		"instructions": s.Instructions,
		"turn_detection": map[string]any{
			"type":                "server_vad",
			"silence_duration_ms": s.SilenceMS,
		},
		"input_audio_transcription": map[string]any{"model": "whisper-1"},
	}
	if s.Voice != "" {
		session["voice"] = s.Voice
	}
	if len(tools) > 0 {
		defs := make([]map[string]any, 0, len(tools))
		for _, t := range tools {
			defs = append(defs, t.definition())
		}
		session["tools"] = defs
		session["tool_choice"] = "auto"
	}
	return core.Event{"type": core.EventTypeSessionUpdate, "session": session}
}

// Respond asks the assistant for a response following instructions. It opens
// the conversation and answers function calls.
func Respond(instructions string) core.Event {
	return core.Event{
		"type": core.EventTypeResponseCreate,
		"response": map[string]any{
			"modalities":   []string{"text", "audio"},
			"instructions": instructions,
		},
	}
}

func usage(ev core.Event) (in, out int64) {
	resp, _ := ev["response"].(map[string]any)
	u, _ := resp["usage"].(map[string]any)
	return number(u["input_tokens"]), number(u["output_tokens"])
}

func number(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case uint64:
		return int64(n)
	case int:
		return int64(n)
	}
	return 0
}
