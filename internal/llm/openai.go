package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const openaiBaseURL = "https://api.openai.com/v1"

// OpenAI talks to an OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	client *openai.Client
	model  string
}

func NewOpenAI(apiKey, model, baseURL string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = apiBaseURL(baseURL)
	return &OpenAI{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// apiBaseURL accepts a bare host, a /v1 base or the full completions endpoint.
func apiBaseURL(base string) string {
	if base == "" {
		return openaiBaseURL
	}
	base = strings.TrimSuffix(base, "/")
	base = strings.TrimSuffix(base, "/chat/completions")
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return base
}

func toOpenAIMessages(history []Turn) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, t := range history {
		switch {
		case t.Role == RoleFunction:
			id := ""
			if t.Call != nil {
				id = t.Call.ID
			}
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    t.Content,
				ToolCallID: id,
			})
		case t.Role == RoleAssistant && t.Call != nil:
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: t.Content,
				ToolCalls: []openai.ToolCall{{
					ID:   t.Call.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      t.Call.Name,
						Arguments: t.Call.Arguments,
					},
				}},
			})
		default:
			msgs = append(msgs, openai.ChatCompletionMessage{Role: string(t.Role), Content: t.Content})
		}
	}
	return msgs
}

func toOpenAITools(functions []FunctionDecl) []openai.Tool {
	tools := make([]openai.Tool, 0, len(functions))
	for _, f := range functions {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        f.Name,
				Description: f.Description,
				Parameters:  f.Parameters,
			},
		})
	}
	return tools
}

func (o *OpenAI) Stream(ctx context.Context, history []Turn, functions []FunctionDecl) (<-chan Event, error) {
	req := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: toOpenAIMessages(history),
		Stream:   true,
	}
	if len(functions) > 0 {
		req.Tools = toOpenAITools(functions)
		// One call per model turn.
		req.ParallelToolCalls = false
	}

	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai stream: %w", err)
	}

	events := make(chan Event, 64)
	go streamOpenAI(ctx, stream, events)
	return events, nil
}

func streamOpenAI(ctx context.Context, stream *openai.ChatCompletionStream, events chan<- Event) {
	defer close(events)
	defer stream.Close()

	send := func(ev Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	var sawOutput, sawCall bool
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			send(Event{Type: EventError, Err: fmt.Errorf("read stream: %w", err)})
			return
		}

		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				sawOutput = true
				if !send(Event{Type: EventText, Text: choice.Delta.Content}) {
					return
				}
			}
			for _, tc := range choice.Delta.ToolCalls {
				// Only the first call of a turn is honoured.
				if tc.Index != nil && *tc.Index != 0 {
					continue
				}
				sawOutput, sawCall = true, true
				ev := Event{Type: EventCall, CallID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments}
				if !send(ev) {
					return
				}
			}
			switch choice.FinishReason {
			case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
				send(Event{Type: EventEnd, Reason: FinishCall})
				return
			case "":
			default:
				send(Event{Type: EventEnd, Reason: FinishStop})
				return
			}
		}
	}

	switch {
	case sawCall:
		send(Event{Type: EventEnd, Reason: FinishCall})
	case sawOutput:
		send(Event{Type: EventEnd, Reason: FinishStop})
	default:
		send(Event{Type: EventError, Err: ErrEmptyStream})
	}
}

var _ Client = (*OpenAI)(nil)
