package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"booking-assistant-backend/internal/booking"
	"booking-assistant-backend/internal/dispatch"
	"booking-assistant-backend/internal/llm"
	"booking-assistant-backend/internal/platform"
	"booking-assistant-backend/internal/session"
	"booking-assistant-backend/internal/testutil"
)

type fakeTransport struct {
	msgs chan dispatch.Message
}

func newTransport() *fakeTransport {
	return &fakeTransport{msgs: make(chan dispatch.Message, 64)}
}

func (f *fakeTransport) Send(_ context.Context, m dispatch.Message) error {
	f.msgs <- m
	return nil
}

// waitText reads messages until one carries text.
func (f *fakeTransport) waitText(t *testing.T, text string) dispatch.Message {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case m := <-f.msgs:
			if m.Text == text {
				return m
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %q", text)
		}
	}
}

// blockingLLM holds every Stream call until release is closed.
type blockingLLM struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingLLM) Stream(ctx context.Context, _ []llm.Turn, _ []llm.FunctionDecl) (<-chan llm.Event, error) {
	b.entered <- struct{}{}
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	ch := make(chan llm.Event, 2)
	for _, ev := range testutil.Reply("ok") {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

type fixture struct {
	reg   *Registry
	agent *testutil.FakeAgent
	model *testutil.ScriptedLLM

	mu           sync.Mutex
	disconnected []string
}

func newFixture(t *testing.T, opts Options, turns ...[]llm.Event) *fixture {
	t.Helper()
	f := &fixture{
		agent: &testutil.FakeAgent{},
		model: testutil.NewScriptedLLM(turns...),
	}
	opts.Agent = f.agent
	opts.Adapters = platform.NewRegistry(
		&testutil.FakeAdapter{P: booking.PlatformCalendly, Caps: platform.Capabilities{RequiresCheck: true}},
	)
	if opts.Loop == nil {
		opts.Loop = dispatch.NewLoop(f.model, 8, zap.NewNop())
	}
	opts.OnDisconnect = func(id string) {
		f.mu.Lock()
		f.disconnected = append(f.disconnected, id)
		f.mu.Unlock()
	}
	f.reg = New(opts, zap.NewNop())
	return f
}

const checkArgs = `{"name":"John Doe","email":"john@x.com","date":"2025-06-19","time":"14:00","platform":"calendly"}`

func TestConnect_SendsGreeting(t *testing.T) {
	f := newFixture(t, Options{}, testutil.Reply("Calendly it is."))
	tr := newTransport()

	c := f.reg.Connect(context.Background(), tr)
	defer c.Disconnect()

	greet := <-tr.msgs
	assert.Equal(t, greeting, greet.Text)
	assert.Equal(t, c.ID(), greet.ConnectionID)
	assert.True(t, greet.IsComplete)
	assert.Zero(t, f.agent.Acquired(), "no automation before a function needs it")

	got, ok := f.reg.Get(c.ID())
	require.True(t, ok)
	assert.Same(t, c, got)

	c.Receive([]byte(`{"type":"message","payload":{"text":"calendly please"}}`))
	tr.waitText(t, "Calendly it is.")

	history := f.model.Histories()[0]
	require.Len(t, history, 3)
	assert.Equal(t, llm.RoleSystem, history[0].Role)
	assert.Equal(t, llm.Turn{Role: llm.RoleAssistant, Content: greeting}, history[1])
	assert.Equal(t, llm.Turn{Role: llm.RoleUser, Content: "calendly please"}, history[2])
}

func TestConn_HandlesMessagesInOrder(t *testing.T) {
	f := newFixture(t, Options{}, testutil.Reply("first"), testutil.Reply("second"))
	tr := newTransport()
	c := f.reg.Connect(context.Background(), tr)
	defer c.Disconnect()

	c.Receive([]byte("one"))
	c.Receive([]byte("two"))
	tr.waitText(t, "first")
	tr.waitText(t, "second")

	histories := f.model.Histories()
	require.Len(t, histories, 2)
	second := histories[1]
	require.Len(t, second, 5)
	assert.Equal(t, "one", second[2].Content)
	assert.Equal(t, "first", second[3].Content)
	assert.Equal(t, "two", second[4].Content)
	assert.EqualValues(t, 2, f.reg.Stats().MessagesHandled)
}

func TestConn_RejectsWhenQueueFull(t *testing.T) {
	model := &blockingLLM{entered: make(chan struct{}, 4), release: make(chan struct{})}
	f := newFixture(t, Options{QueueSize: 1, Loop: dispatch.NewLoop(model, 8, zap.NewNop())})
	tr := newTransport()
	c := f.reg.Connect(context.Background(), tr)
	defer c.Disconnect()
	<-tr.msgs // greeting

	c.Receive([]byte("first"))
	<-model.entered
	c.Receive([]byte("second"))
	c.Receive([]byte("third"))

	busy := <-tr.msgs
	assert.Equal(t, busyReply, busy.Text)
	assert.True(t, busy.Error)

	close(model.release)
	tr.waitText(t, "ok")
	<-model.entered
	tr.waitText(t, "ok")
	assert.EqualValues(t, 2, f.reg.Stats().MessagesHandled)
}

func TestDisconnect_TearsDownSession(t *testing.T) {
	f := newFixture(t, Options{DisconnectGrace: time.Second},
		testutil.Call("checkAvailability", checkArgs),
		testutil.Reply("2 PM is open."),
	)
	tr := newTransport()
	c := f.reg.Connect(context.Background(), tr)

	c.Receive([]byte("June 19 at 2pm please"))
	tr.waitText(t, "2 PM is open.")
	require.Equal(t, 1, f.agent.Live())
	assert.Equal(t, 1, f.reg.Stats().ActiveSessions)

	c.Disconnect()
	c.Disconnect()

	select {
	case <-c.Done():
	default:
		t.Fatal("Done not closed after Disconnect")
	}
	assert.Zero(t, f.agent.Live())
	assert.Equal(t, 1, f.agent.Resources()[0].Closes())
	_, ok := f.reg.Get(c.ID())
	assert.False(t, ok)
	assert.Equal(t, []string{c.ID()}, f.disconnected)
	assert.Zero(t, f.reg.Stats().Connections)

	c.Receive([]byte("anyone there?"))
	assert.Equal(t, 2, f.model.Calls(), "no turns after disconnect")
}

func TestCancelBookingTearsDownFirst(t *testing.T) {
	f := newFixture(t, Options{},
		testutil.Call("checkAvailability", checkArgs),
		testutil.Reply("2 PM is open."),
		testutil.Reply("Cancelled."),
	)
	tr := newTransport()
	c := f.reg.Connect(context.Background(), tr)
	defer c.Disconnect()

	c.Receive([]byte("June 19 at 2pm please"))
	tr.waitText(t, "2 PM is open.")
	require.Equal(t, 1, f.agent.Live())

	c.Receive([]byte(`{"type":"cancel_booking"}`))
	tr.waitText(t, "Cancelled.")
	assert.Zero(t, f.agent.Live())

	histories := f.model.Histories()
	last := histories[len(histories)-1]
	assert.Equal(t, cancelUtterance, last[len(last)-1].Content)
}

func TestSweepEvictsIdleSessions(t *testing.T) {
	f := newFixture(t, Options{IdleTimeout: time.Hour},
		testutil.Call("checkAvailability", checkArgs),
		testutil.Reply("2 PM is open."),
	)
	tr := newTransport()
	c := f.reg.Connect(context.Background(), tr)
	defer c.Disconnect()
	c.Receive([]byte("June 19 at 2pm please"))
	tr.waitText(t, "2 PM is open.")

	assert.Zero(t, f.reg.Sweep(time.Now()), "fresh sessions stay")
	assert.Equal(t, 1, f.reg.Sweep(time.Now().Add(2*time.Hour)))
	assert.Zero(t, f.agent.Live())
	assert.Zero(t, f.reg.Sweep(time.Now().Add(3*time.Hour)), "teardown is not repeated")

	stats := f.reg.Stats()
	assert.EqualValues(t, 1, stats.SessionsEvicted)
	assert.Zero(t, stats.ActiveSessions)
	assert.Equal(t, 1, stats.Connections)
}

func TestRunStopsWithContext(t *testing.T) {
	f := newFixture(t, Options{SweepInterval: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		f.reg.Run(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestShutdownDisconnectsAll(t *testing.T) {
	f := newFixture(t, Options{})
	a := f.reg.Connect(context.Background(), newTransport())
	b := f.reg.Connect(context.Background(), newTransport())
	assert.NotEqual(t, a.ID(), b.ID())
	assert.EqualValues(t, 2, f.reg.Stats().TotalConnections)

	f.reg.Shutdown()
	assert.Zero(t, f.reg.Stats().Connections)
	assert.ElementsMatch(t, []string{a.ID(), b.ID()}, f.disconnected)
}

func TestOutcomesAreForwarded(t *testing.T) {
	var mu sync.Mutex
	var outcomes []session.Outcome
	f := newFixture(t, Options{OnOutcome: func(o session.Outcome) {
		mu.Lock()
		outcomes = append(outcomes, o)
		mu.Unlock()
	}},
		testutil.Call("bookAppointment", checkArgs),
		testutil.Reply("Booked!"),
	)
	tr := newTransport()
	c := f.reg.Connect(context.Background(), tr)
	defer c.Disconnect()

	c.Receive([]byte(`{"type":"confirm_booking","payload":{"confirm":true}}`))
	tr.waitText(t, "Booked!")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, outcomes, 1)
	assert.Equal(t, c.ID(), outcomes[0].ConnectionID)
	assert.Equal(t, session.StateCompleted, outcomes[0].State)
	assert.Equal(t, confirmUtterance, f.model.Histories()[0][2].Content)
}
