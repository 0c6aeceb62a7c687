package testutil

import (
	"context"
	"errors"
	"sync"

	"booking-assistant-backend/internal/llm"
)

// ScriptedLLM replays one scripted turn per Stream call and records the
// history it was given.
type ScriptedLLM struct {
	mu        sync.Mutex
	turns     [][]llm.Event
	histories [][]llm.Turn
}

// NewScriptedLLM returns a client that answers with turns in order.
func NewScriptedLLM(turns ...[]llm.Event) *ScriptedLLM {
	return &ScriptedLLM{turns: turns}
}

// Push appends more turns to the script.
func (s *ScriptedLLM) Push(turns ...[]llm.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, turns...)
}

func (s *ScriptedLLM) Stream(_ context.Context, history []llm.Turn, _ []llm.FunctionDecl) (<-chan llm.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.histories = append(s.histories, append([]llm.Turn(nil), history...))
	if len(s.turns) == 0 {
		return nil, errors.New("scripted llm: no turns left")
	}
	turn := s.turns[0]
	s.turns = s.turns[1:]

	ch := make(chan llm.Event, len(turn))
	for _, ev := range turn {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

// Histories returns the history passed to each Stream call.
func (s *ScriptedLLM) Histories() [][]llm.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]llm.Turn(nil), s.histories...)
}

// Calls is the number of Stream calls so far.
func (s *ScriptedLLM) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.histories)
}

// Reply is a turn that answers with text.
func Reply(text string) []llm.Event {
	return []llm.Event{
		{Type: llm.EventText, Text: text},
		{Type: llm.EventEnd, Reason: llm.FinishStop},
	}
}

// Call is a turn that calls name with the JSON object args, streamed in two
// fragments.
func Call(name, args string) []llm.Event {
	half := len(args) / 2
	return []llm.Event{
		{Type: llm.EventCall, CallID: "call_" + name, Name: name, Arguments: args[:half]},
		{Type: llm.EventCall, Arguments: args[half:]},
		{Type: llm.EventEnd, Reason: llm.FinishCall},
	}
}

// Failure is a turn whose stream breaks.
func Failure(err error) []llm.Event {
	return []llm.Event{{Type: llm.EventError, Err: err}}
}

var _ llm.Client = (*ScriptedLLM)(nil)
