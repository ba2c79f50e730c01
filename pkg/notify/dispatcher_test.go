package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aquamon/aquamon/pkg/alert"
)

type fakeSender struct {
	mu    sync.Mutex
	calls int
	errs  []error
	last  Message
}

func (f *fakeSender) Send(_ context.Context, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = msg
	f.calls++
	if f.calls <= len(f.errs) {
		return f.errs[f.calls-1]
	}
	return nil
}

func (f *fakeSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type dispatchFixture struct {
	dispatcher  *Dispatcher
	obligations *MemoryObligationStore
	alerts      *alert.MemoryStore
	sender      *fakeSender
	obligation  *Obligation
}

func newDispatchFixture(t *testing.T, sender *fakeSender, maxAttempts int) *dispatchFixture {
	t.Helper()
	ctx := context.Background()

	alerts := alert.NewMemoryStore()
	a := warningAlert("tank-1")
	if err := alerts.Create(ctx, a); err != nil {
		t.Fatal(err)
	}

	prefs := NewMemoryPreferenceStore()
	if err := prefs.Put(ctx, &Preference{
		SubscriberID: "sub-1",
		Email:        "ops@example.com",
		Channels:     []Channel{ChannelEmail},
	}); err != nil {
		t.Fatal(err)
	}

	obligations := NewMemoryObligationStore()
	now := time.Now()
	o := &Obligation{
		ID:            "ob-1",
		AlertID:       a.ID,
		SubscriberID:  "sub-1",
		Channel:       ChannelEmail,
		Outcome:       OutcomePending,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := obligations.Create(ctx, o); err != nil {
		t.Fatal(err)
	}

	d := NewDispatcher(obligations, prefs, alerts,
		map[Channel]Sender{ChannelEmail: sender},
		DispatcherOptions{MaxAttempts: maxAttempts, Backoff: Backoff{Base: time.Minute, Ceiling: time.Hour}},
	)
	return &dispatchFixture{dispatcher: d, obligations: obligations, alerts: alerts, sender: sender, obligation: o}
}

func (f *dispatchFixture) reload(t *testing.T) *Obligation {
	t.Helper()
	o, err := f.obligations.Get(context.Background(), f.obligation.ID)
	if err != nil {
		t.Fatal(err)
	}
	return o
}

func TestDispatchSuccess(t *testing.T) {
	f := newDispatchFixture(t, &fakeSender{}, 3)
	f.dispatcher.process(context.Background(), f.obligation)

	got := f.reload(t)
	if got.Outcome != OutcomeDelivered {
		t.Fatalf("outcome = %s, want delivered", got.Outcome)
	}
	if got.Attempt != 1 {
		t.Errorf("attempt = %d, want 1", got.Attempt)
	}
	if !strings.Contains(f.sender.last.Subject, "warning") {
		t.Errorf("subject %q should carry the severity", f.sender.last.Subject)
	}
}

func TestDispatchRetryableSchedulesBackoff(t *testing.T) {
	f := newDispatchFixture(t, &fakeSender{errs: []error{Retryable(errors.New("relay busy"))}}, 3)
	before := time.Now()
	f.dispatcher.process(context.Background(), f.obligation)

	got := f.reload(t)
	if got.Outcome != OutcomePending {
		t.Fatalf("outcome = %s, want pending", got.Outcome)
	}
	if got.Attempt != 1 {
		t.Errorf("attempt = %d, want 1", got.Attempt)
	}
	if !got.NextAttemptAt.After(before) {
		t.Error("next attempt should be pushed into the future")
	}
	if got.LastError == "" {
		t.Error("last error should be recorded")
	}
}

func TestDispatchExhaustsAtAttemptCap(t *testing.T) {
	sender := &fakeSender{errs: []error{
		Retryable(errors.New("try 1")),
		Retryable(errors.New("try 2")),
		Retryable(errors.New("try 3")),
	}}
	f := newDispatchFixture(t, sender, 3)

	for i := 0; i < 3; i++ {
		o := f.reload(t)
		f.dispatcher.process(context.Background(), o)
	}

	got := f.reload(t)
	if got.Outcome != OutcomeExhausted {
		t.Fatalf("outcome = %s, want exhausted", got.Outcome)
	}
	if got.Attempt != 3 {
		t.Errorf("attempt = %d, want 3", got.Attempt)
	}
	if sender.callCount() != 3 {
		t.Errorf("sender called %d times, want 3", sender.callCount())
	}
}

func TestDispatchTerminalErrorExhaustsImmediately(t *testing.T) {
	f := newDispatchFixture(t, &fakeSender{errs: []error{Terminal(errors.New("mailbox does not exist"))}}, 3)
	f.dispatcher.process(context.Background(), f.obligation)

	got := f.reload(t)
	if got.Outcome != OutcomeExhausted {
		t.Fatalf("outcome = %s, want exhausted on terminal error", got.Outcome)
	}
	if got.Attempt != 1 {
		t.Errorf("attempt = %d, want 1", got.Attempt)
	}
}

func TestDispatchMissingRecipientIsTerminal(t *testing.T) {
	f := newDispatchFixture(t, &fakeSender{}, 3)

	// Swap the obligation onto a channel with no configured target.
	f.obligation.Channel = ChannelPush
	if err := f.obligations.Update(context.Background(), f.obligation); err != nil {
		t.Fatal(err)
	}
	f.dispatcher.senders[ChannelPush] = f.sender

	f.dispatcher.process(context.Background(), f.obligation)

	got := f.reload(t)
	if got.Outcome != OutcomeExhausted {
		t.Fatalf("outcome = %s, want exhausted", got.Outcome)
	}
	if f.sender.callCount() != 0 {
		t.Error("sender should not be invoked without a recipient")
	}
}

func TestDispatchDeliversForResolvedAlert(t *testing.T) {
	f := newDispatchFixture(t, &fakeSender{}, 3)
	ctx := context.Background()

	a, err := f.alerts.Get(ctx, f.obligation.AlertID)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	a.Status = alert.StatusResolved
	a.ResolvedAt = &now
	if err := f.alerts.Update(ctx, a); err != nil {
		t.Fatal(err)
	}

	f.dispatcher.process(ctx, f.obligation)

	got := f.reload(t)
	if got.Outcome != OutcomeDelivered {
		t.Fatalf("outcome = %s, resolved alerts still get delivered", got.Outcome)
	}
	if !strings.Contains(f.sender.last.Body, "resolved") {
		t.Error("body should mention the alert resolved")
	}
}

func TestSingleFlightClaim(t *testing.T) {
	f := newDispatchFixture(t, &fakeSender{}, 3)

	if !f.dispatcher.claim("ob-1") {
		t.Fatal("first claim should succeed")
	}
	if f.dispatcher.claim("ob-1") {
		t.Error("second claim on an in-flight obligation should fail")
	}
	f.dispatcher.release("ob-1")
	if !f.dispatcher.claim("ob-1") {
		t.Error("claim after release should succeed")
	}
}

func TestDispatcherStartStop(t *testing.T) {
	f := newDispatchFixture(t, &fakeSender{}, 3)
	f.dispatcher.opts.PollInterval = 10 * time.Millisecond

	f.dispatcher.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f.reload(t).Outcome == OutcomeDelivered {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	f.dispatcher.Stop()

	if got := f.reload(t); got.Outcome != OutcomeDelivered {
		t.Fatalf("outcome = %s, want delivered via poll loop", got.Outcome)
	}
}
