package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"booking-assistant-backend/internal/booking"
	"booking-assistant-backend/internal/llm"
	"booking-assistant-backend/internal/session"
)

// ErrTooManyCalls aborts a turn in which the model keeps calling functions
// without replying.
var ErrTooManyCalls = errors.New("too many function calls in one turn")

// History is the conversation of one connection. It is not safe for
// concurrent use; a connection runs one turn at a time.
type History struct {
	turns []llm.Turn
}

func NewHistory(system string) *History {
	return &History{turns: []llm.Turn{{Role: llm.RoleSystem, Content: system}}}
}

func (h *History) Append(turns ...llm.Turn) {
	h.turns = append(h.turns, turns...)
}

// Turns returns a copy of the conversation so far.
func (h *History) Turns() []llm.Turn {
	return append([]llm.Turn(nil), h.turns...)
}

func (h *History) Len() int { return len(h.turns) }

// failure is the function result reported to the model for calls it made
// incorrectly. The turn continues.
type failure struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Loop runs model turns with function calling.
type Loop struct {
	model    llm.Client
	maxCalls int
	now      func() time.Time
	logger   *zap.Logger
}

func NewLoop(model llm.Client, maxCalls int, logger *zap.Logger) *Loop {
	if maxCalls <= 0 {
		maxCalls = 8
	}
	return &Loop{
		model:    model,
		maxCalls: maxCalls,
		now:      time.Now,
		logger:   logger.Named("dispatch"),
	}
}

// streamed is one model turn after aggregation.
type streamed struct {
	text string
	call *llm.FunctionCall
}

func (l *Loop) stream(ctx context.Context, h *History) (streamed, error) {
	events, err := l.model.Stream(ctx, h.Turns(), Declarations())
	if err != nil {
		return streamed{}, fmt.Errorf("start model stream: %w", err)
	}

	var (
		out  streamed
		text strings.Builder
		args strings.Builder
		call llm.FunctionCall
	)
	for ev := range events {
		switch ev.Type {
		case llm.EventText:
			text.WriteString(ev.Text)
		case llm.EventCall:
			if ev.Name != "" {
				call.Name = ev.Name
			}
			if ev.CallID != "" {
				call.ID = ev.CallID
			}
			args.WriteString(ev.Arguments)
		case llm.EventError:
			return streamed{}, fmt.Errorf("model stream: %w", ev.Err)
		}
	}
	if err := ctx.Err(); err != nil {
		return streamed{}, err
	}

	out.text = text.String()
	if call.Name != "" {
		if call.ID == "" {
			call.ID = "call_" + uuid.NewString()
		}
		call.Arguments = args.String()
		out.call = &call
	}
	return out, nil
}

// RunTurn appends the user's message to h and runs the model until it gives a
// final reply. Intermediate text, announcements, progress toggles and the
// reply go to send. On failure a single error message is sent, h keeps every
// completed step and the error is returned.
func (l *Loop) RunTurn(ctx context.Context, booker Booker, h *History, text string, send Sink) error {
	h.Append(llm.Turn{Role: llm.RoleUser, Content: text})

	announced := make(map[FunctionName]bool)
	var last extras
	calls := 0
	for {
		out, err := l.stream(ctx, h)
		if err != nil {
			return l.abort(send, err)
		}

		if out.call == nil {
			reply := strings.TrimSpace(out.text)
			if reply == "" {
				return l.abort(send, llm.ErrEmptyStream)
			}
			msg := botText(out.text)
			last.apply(&msg)
			send(msg)
			h.Append(llm.Turn{Role: llm.RoleAssistant, Content: out.text})
			return nil
		}

		calls++
		if calls > l.maxCalls {
			return l.abort(send, ErrTooManyCalls)
		}

		if strings.TrimSpace(out.text) != "" {
			send(botText(out.text))
		}
		result, err := l.execute(ctx, booker, out.call, announced, send)
		if err != nil {
			return l.abort(send, err)
		}
		last = extrasOf(result)

		content, err := json.Marshal(result)
		if err != nil {
			return l.abort(send, fmt.Errorf("encode %s result: %w", out.call.Name, err))
		}
		h.Append(
			llm.Turn{Role: llm.RoleAssistant, Content: out.text, Call: out.call},
			llm.Turn{Role: llm.RoleFunction, Content: string(content), Call: out.call},
		)
	}
}

// execute runs one function call. Mistakes the model can correct come back as
// a failure result; anything else is returned as an error.
func (l *Loop) execute(ctx context.Context, booker Booker, call *llm.FunctionCall, announced map[FunctionName]bool, send Sink) (any, error) {
	fn, ok := lookup(call.Name)
	if !ok {
		l.logger.Warn("model called an unknown function", zap.String("function", call.Name))
		return failure{Message: fmt.Sprintf("Unknown function %q. Use one of the declared functions.", call.Name)}, nil
	}

	name := FunctionName(call.Name)
	if fn.say != "" && !announced[name] {
		announced[name] = true
		send(botText(fn.say))
	}
	if fn.slow {
		send(executing(true))
		defer send(executing(false))
	}

	start := time.Now()
	result, err := fn.handle(ctx, env{booker: booker, now: l.now()}, json.RawMessage(call.Arguments))
	logger := l.logger.With(zap.String("function", call.Name), zap.Duration("took", time.Since(start)))

	var (
		protoErr *session.ProtocolError
		argErr   *ArgumentError
	)
	switch {
	case err == nil:
		logger.Debug("function executed")
		return result, nil
	case errors.As(err, &protoErr), errors.As(err, &argErr):
		logger.Info("function call rejected", zap.Error(err))
		return failure{Message: err.Error()}, nil
	default:
		logger.Error("function failed", zap.Error(err))
		return nil, err
	}
}

func (l *Loop) abort(send Sink, err error) error {
	send(ErrorMessage(userMessage(err)))
	return err
}

// userMessage is what the user sees when a turn fails.
func userMessage(err error) string {
	var (
		resErr     *session.ResourceError
		adapterErr *session.AdapterError
	)
	switch {
	case errors.As(err, &resErr):
		return "I couldn't open the booking site right now. Please try again in a moment."
	case errors.As(err, &adapterErr):
		return fmt.Sprintf("Something went wrong while working on %s, so the booking was stopped. Please try again.", booking.DisplayName(adapterErr.Platform))
	case errors.Is(err, ErrTooManyCalls):
		return "I got stuck working on that request. Could you rephrase it?"
	default:
		return "Sorry, something went wrong. Please try again."
	}
}
