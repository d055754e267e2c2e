package relayws

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

const defaultToolTimeout = 30 * time.Second

// ToolFunc runs one function call. The returned text becomes the
// instructions of the response the assistant gives next.
type ToolFunc func(ctx context.Context, args json.RawMessage) (string, error)

// Tool is a function the assistant may call during a session.
type Tool struct {
	Name        string
	Description string
	// Parameters is the JSON schema of the arguments object.
	Parameters map[string]any
	Call       ToolFunc
}

func (t Tool) definition() map[string]any {
	params := t.Parameters
	if params == nil {
		params = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return map[string]any{
		"type":        "function",
		"name":        t.Name,
		"description": t.Description,
		"parameters":  params,
	}
}

type toolSet struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func (s *toolSet) add(t Tool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tools == nil {
		s.tools = make(map[string]Tool)
	}
	s.tools[t.Name] = t
}

func (s *toolSet) get(name string) (Tool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tools[name]
	return t, ok
}

// list returns the tools sorted by name.
func (s *toolSet) list() []Tool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Tool, 0, len(s.tools))
	for _, t := range s.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RegisterTool makes t available to sessions configured from now on.
func (ctl *Controller) RegisterTool(t Tool) error {
	if t.Name == "" || t.Call == nil {
		return fmt.Errorf("tool %q: name and call are required", t.Name)
	}
	ctl.tools.add(t)
	ctl.log.Info().Str("tool", t.Name).Msg("tool registered")
	return nil
}

// callTool runs the named tool and returns the instructions for the follow-up
// response. Failures are turned into instructions too, so the assistant can
// tell the user.
func (ctl *Controller) callTool(name, arguments string) string {
	t, ok := ctl.tools.get(name)
	if !ok {
		return fmt.Sprintf("The tool %q is not available. Tell the user you cannot do that right now.", name)
	}
	if arguments == "" {
		arguments = "{}"
	}
	if !json.Valid([]byte(arguments)) {
		return fmt.Sprintf("The arguments for %q were not valid JSON. Ask the user to repeat the request.", name)
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultToolTimeout)
	defer cancel()
	out, err := t.Call(ctx, json.RawMessage(arguments))
	if err != nil {
		ctl.log.Error().Err(err).Str("tool", name).Msg("tool call failed")
		return fmt.Sprintf("The tool %q failed. Apologise briefly and offer to try again.", name)
	}
	return out
}

// ClockTool reports the server's current time.
func ClockTool(now func() time.Time) Tool {
	if now == nil {
		now = time.Now
	}
	return Tool{
		Name:        "get-current-time",
		Description: "Returns the current date and time of the server.",
		Call: func(context.Context, json.RawMessage) (string, error) {
			return "The current time is " + now().Format(time.RFC1123) + ".", nil
		},
	}
}
