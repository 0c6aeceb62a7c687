// Package llm streams model turns from a language model with function calling.
package llm

import (
	"context"
	"errors"
)

// ErrEmptyStream is reported when a stream ends without text, a function
// call or a finish marker.
var ErrEmptyStream = errors.New("model stream ended without output")

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleFunction  Role = "function"
)

// FunctionCall is a complete call emitted by the model.
type FunctionCall struct {
	ID        string
	Name      string
	Arguments string // JSON object
}

// Turn is one entry of the conversation history. An assistant turn carries
// either Content or Call; a function turn carries the serialized result of
// Call in Content.
type Turn struct {
	Role    Role
	Content string
	Call    *FunctionCall
}

type EventType int

const (
	// EventText carries a text fragment.
	EventText EventType = iota
	// EventCall carries a fragment of a function call. ID and Name are set on
	// the first fragment; Arguments are to be concatenated.
	EventCall
	// EventEnd closes the turn; Reason tells why.
	EventEnd
	// EventError closes the turn with Err.
	EventError
)

type FinishReason string

const (
	FinishStop FinishReason = "stop"
	FinishCall FinishReason = "function_call"
)

type Event struct {
	Type      EventType
	Text      string
	CallID    string
	Name      string
	Arguments string
	Reason    FinishReason
	Err       error
}

// Schema is the JSON schema subset used to declare function parameters.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
}

// FunctionDecl declares a callable function to the model.
type FunctionDecl struct {
	Name        string
	Description string
	Parameters  *Schema
}

// Client streams one model turn over history. The returned channel is closed
// after exactly one EventEnd or EventError.
type Client interface {
	Stream(ctx context.Context, history []Turn, functions []FunctionDecl) (<-chan Event, error)
}
