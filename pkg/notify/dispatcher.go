package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aquamon/aquamon/pkg/alert"
	"github.com/aquamon/aquamon/pkg/infra/logger"
)

// Sender delivers one rendered message over a single channel.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// DispatcherOptions tune the delivery loop.
type DispatcherOptions struct {
	Workers      int
	PollInterval time.Duration
	MaxAttempts  int
	BatchSize    int
	Backoff      Backoff
}

func DefaultDispatcherOptions() DispatcherOptions {
	return DispatcherOptions{
		Workers:      4,
		PollInterval: 5 * time.Second,
		MaxAttempts:  3,
		BatchSize:    64,
		Backoff:      DefaultBackoff(),
	}
}

// Dispatcher polls for due obligations and drives each one to a
// terminal outcome: delivered, or exhausted after the attempt cap.
// A single-flight guard keeps one obligation from being worked by two
// pollers at once.
type Dispatcher struct {
	obligations ObligationStore
	prefs       PreferenceStore
	alerts      alert.Store
	senders     map[Channel]Sender
	opts        DispatcherOptions
	now         func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

func NewDispatcher(obligations ObligationStore, prefs PreferenceStore, alerts alert.Store, senders map[Channel]Sender, opts DispatcherOptions) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	if opts.Backoff.Base <= 0 {
		opts.Backoff = DefaultBackoff()
	}
	return &Dispatcher{
		obligations: obligations,
		prefs:       prefs,
		alerts:      alerts,
		senders:     senders,
		opts:        opts,
		now:         time.Now,
		inflight:    make(map[string]struct{}),
	}
}

// Start launches the poll loop and worker pool. Stop with Stop.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})

	jobs := make(chan *Obligation, d.opts.BatchSize)

	var wg sync.WaitGroup
	for i := 0; i < d.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for o := range jobs {
				d.process(ctx, o)
			}
		}()
	}

	go func() {
		defer close(d.done)
		ticker := time.NewTicker(d.opts.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				close(jobs)
				wg.Wait()
				return
			case <-ticker.C:
				d.poll(ctx, jobs)
			}
		}
	}()
}

// Stop cancels the loop and waits for in-flight deliveries to finish.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
		<-d.done
	}
}

func (d *Dispatcher) poll(ctx context.Context, jobs chan<- *Obligation) {
	due, err := d.obligations.Due(ctx, d.now(), d.opts.BatchSize)
	if err != nil {
		logger.WithContext(ctx).Error("listing due obligations", "error", err)
		return
	}
	for _, o := range due {
		if !d.claim(o.ID) {
			continue
		}
		select {
		case jobs <- o:
		case <-ctx.Done():
			d.release(o.ID)
			return
		}
	}
}

func (d *Dispatcher) claim(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.inflight[id]; busy {
		return false
	}
	d.inflight[id] = struct{}{}
	return true
}

func (d *Dispatcher) release(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inflight, id)
}

// process runs one delivery attempt and records the outcome. Alerts
// that resolved while an obligation was queued still get delivered so
// the subscriber hears the full story.
func (d *Dispatcher) process(ctx context.Context, o *Obligation) {
	defer d.release(o.ID)

	msg, err := d.render(ctx, o)
	if err != nil {
		d.recordFailure(ctx, o, err)
		return
	}

	sender, ok := d.senders[o.Channel]
	if !ok {
		d.recordFailure(ctx, o, Terminal(fmt.Errorf("%w: %s", ErrUnknownChannel, o.Channel)))
		return
	}

	if err := sender.Send(ctx, msg); err != nil {
		d.recordFailure(ctx, o, err)
		return
	}

	now := d.now()
	o.Attempt++
	o.Outcome = OutcomeDelivered
	o.LastError = ""
	o.UpdatedAt = now
	if err := d.obligations.Update(ctx, o); err != nil {
		logger.WithContext(ctx).Error("recording delivery", "obligation_id", o.ID, "error", err)
		return
	}
	logger.WithContext(ctx).Info("notification delivered",
		"obligation_id", o.ID, "channel", string(o.Channel), "attempt", o.Attempt)
}

func (d *Dispatcher) recordFailure(ctx context.Context, o *Obligation, sendErr error) {
	now := d.now()
	o.Attempt++
	o.LastError = sendErr.Error()
	o.UpdatedAt = now

	if !IsRetryable(sendErr) || o.Attempt >= d.opts.MaxAttempts {
		o.Outcome = OutcomeExhausted
		logger.WithContext(ctx).Warn("notification exhausted",
			"obligation_id", o.ID, "channel", string(o.Channel),
			"attempt", o.Attempt, "error", sendErr)
	} else {
		o.NextAttemptAt = now.Add(d.opts.Backoff.Delay(o.Attempt))
		logger.WithContext(ctx).Info("notification retry scheduled",
			"obligation_id", o.ID, "channel", string(o.Channel),
			"attempt", o.Attempt, "next_attempt_at", o.NextAttemptAt)
	}

	if err := d.obligations.Update(ctx, o); err != nil {
		logger.WithContext(ctx).Error("recording delivery failure", "obligation_id", o.ID, "error", err)
	}
}

// render builds the channel message from the obligation's alert and
// subscriber preference. Missing recipients are terminal.
func (d *Dispatcher) render(ctx context.Context, o *Obligation) (Message, error) {
	a, err := d.alerts.Get(ctx, o.AlertID)
	if err != nil {
		return Message{}, Terminal(fmt.Errorf("loading alert %s: %w", o.AlertID, err))
	}
	p, err := d.prefs.Get(ctx, o.SubscriberID)
	if err != nil {
		return Message{}, Terminal(fmt.Errorf("loading preference %s: %w", o.SubscriberID, err))
	}

	var recipient string
	switch o.Channel {
	case ChannelEmail:
		recipient = p.Email
	case ChannelPush:
		recipient = p.PushTarget
	}
	if recipient == "" {
		return Message{}, Terminal(fmt.Errorf("%w: %s", ErrNoRecipient, o.Channel))
	}

	subject := fmt.Sprintf("[%s] %s alert on %s", a.Severity, a.Parameter, a.DeviceID)
	body := fmt.Sprintf(
		"Device %s reported %s = %.2f (%s).\nSeverity: %s\nOccurrences: %d\nFirst seen: %s\nLast seen: %s\n",
		a.DeviceID, a.Parameter, a.CurrentValue, a.Threshold,
		a.Severity, a.OccurrenceCount,
		a.FirstOccurrence.Format(time.RFC3339), a.LastOccurrence.Format(time.RFC3339),
	)
	if a.Status == alert.StatusResolved {
		body += "This alert has since resolved.\n"
	}
	return Message{Recipient: recipient, Subject: subject, Body: body}, nil
}
