package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Gemini streams turns from Google's Gemini models.
type Gemini struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Close() error {
	return g.client.Close()
}

func (g *Gemini) Stream(ctx context.Context, history []Turn, functions []FunctionDecl) (<-chan Event, error) {
	system, contents, err := toGeminiContents(history)
	if err != nil {
		return nil, err
	}
	if len(contents) == 0 {
		return nil, errors.New("gemini: nothing to send")
	}

	model := g.client.GenerativeModel(g.model)
	if system != nil {
		model.SystemInstruction = system
	}
	if len(functions) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(functions))
		for _, f := range functions {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        f.Name,
				Description: f.Description,
				Parameters:  toGeminiSchema(f.Parameters),
			})
		}
		model.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	cs := model.StartChat()
	last := contents[len(contents)-1]
	cs.History = contents[:len(contents)-1]
	iter := cs.SendMessageStream(ctx, last.Parts...)

	events := make(chan Event, 64)
	go streamGemini(ctx, iter, events)
	return events, nil
}

func streamGemini(ctx context.Context, iter *genai.GenerateContentResponseIterator, events chan<- Event) {
	defer close(events)

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
		resp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			send(Event{Type: EventError, Err: fmt.Errorf("gemini stream: %w", err)})
			return
		}
		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				switch p := part.(type) {
				case genai.Text:
					if p == "" {
						continue
					}
					sawOutput = true
					if !send(Event{Type: EventText, Text: string(p)}) {
						return
					}
				case genai.FunctionCall:
					if sawCall {
						continue
					}
					args, err := json.Marshal(p.Args)
					if err != nil {
						send(Event{Type: EventError, Err: fmt.Errorf("encode %s arguments: %w", p.Name, err)})
						return
					}
					sawOutput, sawCall = true, true
					if !send(Event{Type: EventCall, Name: p.Name, Arguments: string(args)}) {
						return
					}
				}
			}
			// Only the first candidate is used.
			break
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

// toGeminiContents splits history into the system instruction and the chat
// contents. Function results are sent back as user FunctionResponse parts.
func toGeminiContents(history []Turn) (*genai.Content, []*genai.Content, error) {
	var system []string
	var contents []*genai.Content
	for _, t := range history {
		switch t.Role {
		case RoleSystem:
			system = append(system, t.Content)
		case RoleUser:
			contents = append(contents, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(t.Content)}})
		case RoleAssistant:
			c := &genai.Content{Role: "model"}
			if t.Content != "" {
				c.Parts = append(c.Parts, genai.Text(t.Content))
			}
			if t.Call != nil {
				args := map[string]any{}
				if t.Call.Arguments != "" {
					if err := json.Unmarshal([]byte(t.Call.Arguments), &args); err != nil {
						return nil, nil, fmt.Errorf("decode %s arguments: %w", t.Call.Name, err)
					}
				}
				c.Parts = append(c.Parts, genai.FunctionCall{Name: t.Call.Name, Args: args})
			}
			if len(c.Parts) > 0 {
				contents = append(contents, c)
			}
		case RoleFunction:
			if t.Call == nil {
				return nil, nil, errors.New("function result without call")
			}
			var response map[string]any
			if err := json.Unmarshal([]byte(t.Content), &response); err != nil {
				response = map[string]any{"result": t.Content}
			}
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []genai.Part{genai.FunctionResponse{Name: t.Call.Name, Response: response}},
			})
		}
	}

	var sys *genai.Content
	if len(system) > 0 {
		sys = &genai.Content{Parts: []genai.Part{genai.Text(strings.Join(system, "\n\n"))}}
	}
	return sys, contents, nil
}

func toGeminiSchema(s *Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Description: s.Description,
		Required:    s.Required,
		Enum:        s.Enum,
		Items:       toGeminiSchema(s.Items),
	}
	switch s.Type {
	case "object":
		out.Type = genai.TypeObject
	case "array":
		out.Type = genai.TypeArray
	case "integer":
		out.Type = genai.TypeInteger
	case "number":
		out.Type = genai.TypeNumber
	case "boolean":
		out.Type = genai.TypeBoolean
	default:
		out.Type = genai.TypeString
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, p := range s.Properties {
			out.Properties[name] = toGeminiSchema(p)
		}
	}
	return out
}

var _ Client = (*Gemini)(nil)
