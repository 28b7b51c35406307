// Package dispatch routes inbound messages: new-user creation, the
// onboarding wizard, quota enforcement, checkout links, and the
// translation pipeline. Processing is asynchronous so webhook
// handlers can acknowledge immediately.
package dispatch

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/voxlate/internal/billing"
	"github.com/haasonsaas/voxlate/internal/dedupe"
	"github.com/haasonsaas/voxlate/internal/menu"
	"github.com/haasonsaas/voxlate/internal/observability"
	"github.com/haasonsaas/voxlate/internal/pipeline"
	"github.com/haasonsaas/voxlate/internal/store"
	"github.com/haasonsaas/voxlate/internal/wizard"
)

// Inbound is one normalized message from any channel.
type Inbound struct {
	Channel          string // "twilio" or "whatsmeow"
	MessageID        string
	From             string // E.164
	Body             string
	MediaURL         string
	MediaContentType string
	MediaData        []byte
}

// Users loads or creates the sender's row.
type Users interface {
	GetOrCreateByPhone(ctx context.Context, phone string) (*store.User, bool, error)
}

// Onboarder runs the language and voice wizard.
type Onboarder interface {
	Handle(ctx context.Context, u *store.User, input string) ([]string, error)
	Reset(ctx context.Context, u *store.User) ([]string, error)
}

// Biller creates hosted checkout links.
type Biller interface {
	Enabled() bool
	CheckoutURL(ctx context.Context, u *store.User, tier billing.Tier) (string, error)
}

// Runner executes the translation pipeline for one message.
type Runner interface {
	Run(ctx context.Context, u *store.User, in *pipeline.Inbound, send pipeline.Sender) error
}

// Sender is the outbound side of the channel the message came from.
type Sender = pipeline.Sender

// Dispatcher routes messages. One instance serves all channels.
type Dispatcher struct {
	users    Users
	wizard   Onboarder
	biller   Biller
	pipeline Runner
	dedupe   *dedupe.Cache
	quota    int
	timeout  time.Duration
	logger   *observability.Logger
	metrics  *observability.Metrics

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	wg    sync.WaitGroup
}

// Options tunes the dispatcher. Zero values get defaults.
type Options struct {
	FreeQuota      int
	ProcessTimeout time.Duration
	DedupeTTL      time.Duration
}

// New builds a dispatcher. metrics may be nil.
func New(users Users, wiz Onboarder, biller Biller, runner Runner,
	logger *observability.Logger, metrics *observability.Metrics, opts Options) *Dispatcher {
	if opts.FreeQuota <= 0 {
		opts.FreeQuota = 5
	}
	if opts.ProcessTimeout <= 0 {
		opts.ProcessTimeout = 2 * time.Minute
	}
	if opts.DedupeTTL <= 0 {
		opts.DedupeTTL = 10 * time.Minute
	}
	return &Dispatcher{
		users:    users,
		wizard:   wiz,
		biller:   biller,
		pipeline: runner,
		dedupe:   dedupe.New(opts.DedupeTTL, 10_000),
		quota:    opts.FreeQuota,
		timeout:  opts.ProcessTimeout,
		logger:   logger,
		metrics:  metrics,
		locks:    map[string]*sync.Mutex{},
	}
}

// HandleInbound accepts one message and processes it in the
// background. Redelivered messages (same channel and message id) are
// dropped. Returns immediately so the webhook can ack.
func (d *Dispatcher) HandleInbound(in Inbound, send Sender) {
	if d.dedupe.Seen(dedupe.Key(in.Channel, in.MessageID)) {
		d.logger.Debug(context.Background(), "duplicate delivery dropped",
			"channel", in.Channel, "message_id", in.MessageID)
		return
	}
	if d.metrics != nil {
		d.metrics.MessageReceived(in.Channel)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error(context.Background(), "panic processing message",
					"panic", r, "channel", in.Channel, "message_id", in.MessageID)
			}
		}()

		// One message at a time per sender, so wizard saves and
		// quota checks never race with themselves.
		lock := d.senderLock(in.From)
		lock.Lock()
		defer lock.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		ctx = observability.WithChannel(observability.WithPhone(ctx, in.From), in.Channel)

		d.process(ctx, in, send)
	}()
}

// Wait blocks until all in-flight messages finish. For shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) process(ctx context.Context, in Inbound, send Sender) {
	u, created, err := d.users.GetOrCreateByPhone(ctx, in.From)
	if err != nil {
		d.logger.Error(ctx, "user lookup failed", "error", err)
		d.reply(ctx, send, in.From, menu.ProcessingFailed(menu.DefaultLang))
		return
	}
	if created {
		d.logger.Info(ctx, "new user", "user_id", u.ID)
	}

	body := strings.TrimSpace(in.Body)
	exhausted := d.quotaExhausted(u)

	// A tier digit from a blocked user buys their way back in. This
	// outranks the wizard so "1" after the paywall never reads as a
	// language pick.
	if exhausted {
		if tier, ok := billing.TierFromDigit(body); ok {
			d.sendCheckout(ctx, u, tier, send)
			return
		}
	}

	if wizard.IsResetCommand(body) {
		replies, err := d.wizard.Reset(ctx, u)
		if err != nil {
			d.logger.Error(ctx, "wizard reset failed", "error", err)
			d.reply(ctx, send, u.Phone, menu.ProcessingFailed(d.uiLang(u)))
			return
		}
		d.replyAll(ctx, send, u.Phone, replies)
		return
	}

	if exhausted {
		if d.metrics != nil {
			d.metrics.QuotaBlocked()
		}
		d.reply(ctx, send, u.Phone, menu.Paywall(d.uiLang(u)))
		return
	}

	if u.Step != store.StepReady {
		replies, err := d.wizard.Handle(ctx, u, body)
		if err != nil {
			d.logger.Error(ctx, "wizard step failed", "error", err)
			d.reply(ctx, send, u.Phone, menu.ProcessingFailed(d.uiLang(u)))
			return
		}
		d.replyAll(ctx, send, u.Phone, replies)
		return
	}

	pin := &pipeline.Inbound{
		Body:             in.Body,
		MediaURL:         in.MediaURL,
		MediaContentType: in.MediaContentType,
		MediaData:        in.MediaData,
	}
	if !pin.HasVoice() && body == "" {
		return
	}
	if err := d.pipeline.Run(ctx, u, pin, send); err != nil {
		d.logger.Error(ctx, "pipeline failed", "error", err)
		d.reply(ctx, send, u.Phone, menu.ProcessingFailed(d.uiLang(u)))
	}
}

// quotaExhausted is only enforceable when checkout is configured;
// without billing there is nothing to upsell to.
func (d *Dispatcher) quotaExhausted(u *store.User) bool {
	return d.biller.Enabled() && u.Plan == store.PlanFree && u.FreeUsed >= d.quota
}

func (d *Dispatcher) sendCheckout(ctx context.Context, u *store.User, tier billing.Tier, send Sender) {
	url, err := d.biller.CheckoutURL(ctx, u, tier)
	if err != nil {
		d.logger.Error(ctx, "checkout link failed", "error", err, "tier", string(tier))
		d.reply(ctx, send, u.Phone, menu.ProcessingFailed(d.uiLang(u)))
		return
	}
	d.reply(ctx, send, u.Phone, menu.CheckoutLink(d.uiLang(u), url))
}

func (d *Dispatcher) uiLang(u *store.User) string {
	if u.UILang != "" {
		return u.UILang
	}
	return menu.DefaultLang
}

func (d *Dispatcher) replyAll(ctx context.Context, send Sender, to string, bodies []string) {
	for _, b := range bodies {
		d.reply(ctx, send, to, b)
	}
}

func (d *Dispatcher) reply(ctx context.Context, send Sender, to, body string) {
	if err := send.SendText(ctx, to, body); err != nil {
		d.logger.Error(ctx, "reply failed", "error", err)
		return
	}
	if d.metrics != nil {
		d.metrics.MessageSent(channelFrom(ctx))
	}
}

func channelFrom(ctx context.Context) string {
	if ch, ok := ctx.Value(observability.ChannelKey).(string); ok {
		return ch
	}
	return "unknown"
}

func (d *Dispatcher) senderLock(phone string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.locks[phone]
	if !ok {
		l = &sync.Mutex{}
		d.locks[phone] = l
	}
	return l
}
