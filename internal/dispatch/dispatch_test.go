package dispatch

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haasonsaas/voxlate/internal/billing"
	"github.com/haasonsaas/voxlate/internal/observability"
	"github.com/haasonsaas/voxlate/internal/pipeline"
	"github.com/haasonsaas/voxlate/internal/store"
)

type fakeUsers struct {
	mu    sync.Mutex
	users map[string]*store.User
}

func (f *fakeUsers) GetOrCreateByPhone(_ context.Context, phone string) (*store.User, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.users == nil {
		f.users = map[string]*store.User{}
	}
	if u, ok := f.users[phone]; ok {
		return u, false, nil
	}
	u := &store.User{ID: "u-" + phone, Phone: phone, Step: store.StepInit, Plan: store.PlanFree}
	f.users[phone] = u
	return u, true, nil
}

type fakeWizard struct {
	mu      sync.Mutex
	handled []string
	resets  int
}

func (f *fakeWizard) Handle(_ context.Context, _ *store.User, input string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handled = append(f.handled, input)
	return []string{"wizard reply"}, nil
}

func (f *fakeWizard) Reset(context.Context, *store.User) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return []string{"welcome again"}, nil
}

type fakeBiller struct {
	enabled bool
	tiers   []billing.Tier
}

func (f *fakeBiller) Enabled() bool { return f.enabled }

func (f *fakeBiller) CheckoutURL(_ context.Context, _ *store.User, tier billing.Tier) (string, error) {
	f.tiers = append(f.tiers, tier)
	return "https://checkout.stripe.com/pay/cs_" + string(tier), nil
}

type fakeRunner struct {
	mu       sync.Mutex
	runs     int
	inflight int32
	maxSeen  int32
	delay    time.Duration
	err      error
}

func (f *fakeRunner) Run(_ context.Context, _ *store.User, _ *pipeline.Inbound, send pipeline.Sender) error {
	n := atomic.AddInt32(&f.inflight, 1)
	defer atomic.AddInt32(&f.inflight, -1)
	for {
		peak := atomic.LoadInt32(&f.maxSeen)
		if n <= peak || atomic.CompareAndSwapInt32(&f.maxSeen, peak, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	return send.SendText(context.Background(), "", "translated")
}

type safeSender struct {
	mu     sync.Mutex
	bodies []string
}

func (s *safeSender) SendText(_ context.Context, _, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bodies = append(s.bodies, body)
	return nil
}

func (s *safeSender) SendMedia(_ context.Context, _, mediaURL string) error {
	return s.SendText(context.Background(), "", mediaURL)
}

func (s *safeSender) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.bodies...)
}

type fixture struct {
	d      *Dispatcher
	users  *fakeUsers
	wizard *fakeWizard
	biller *fakeBiller
	runner *fakeRunner
	send   *safeSender
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		users:  &fakeUsers{},
		wizard: &fakeWizard{},
		biller: &fakeBiller{enabled: true},
		runner: &fakeRunner{},
		send:   &safeSender{},
	}
	logger := observability.NewLogger(observability.LogConfig{Output: io.Discard})
	f.d = New(f.users, f.wizard, f.biller, f.runner, logger, nil, Options{FreeQuota: 5})
	return f
}

func (f *fixture) seed(u *store.User) {
	f.users.mu.Lock()
	defer f.users.mu.Unlock()
	if f.users.users == nil {
		f.users.users = map[string]*store.User{}
	}
	f.users.users[u.Phone] = u
}

func readyUser(phone string) *store.User {
	return &store.User{
		ID: "u1", Phone: phone, Step: store.StepReady,
		UILang: "es", SourceLang: "es", TargetLang: "en",
		Gender: store.GenderFemale, Plan: store.PlanFree,
	}
}

func TestNewSenderEntersWizard(t *testing.T) {
	f := newFixture(t)
	f.d.HandleInbound(Inbound{Channel: "twilio", MessageID: "SM1", From: "+1555", Body: "3"}, f.send)
	f.d.Wait()

	if len(f.wizard.handled) != 1 || f.wizard.handled[0] != "3" {
		t.Errorf("wizard handled %v", f.wizard.handled)
	}
	if got := f.send.all(); len(got) != 1 || got[0] != "wizard reply" {
		t.Errorf("sent = %v", got)
	}
	if f.runner.runs != 0 {
		t.Error("pipeline must not run before onboarding completes")
	}
}

func TestDuplicateDeliveryDropped(t *testing.T) {
	f := newFixture(t)
	f.seed(readyUser("+1555"))

	in := Inbound{Channel: "twilio", MessageID: "SM1", From: "+1555", Body: "hello"}
	f.d.HandleInbound(in, f.send)
	f.d.HandleInbound(in, f.send)
	f.d.Wait()

	if f.runner.runs != 1 {
		t.Errorf("runs = %d, want 1", f.runner.runs)
	}
}

func TestExhaustedQuotaSendsPaywall(t *testing.T) {
	f := newFixture(t)
	u := readyUser("+1555")
	u.FreeUsed = 5
	f.seed(u)

	f.d.HandleInbound(Inbound{Channel: "twilio", MessageID: "SM1", From: "+1555", Body: "hola"}, f.send)
	f.d.Wait()

	got := f.send.all()
	if len(got) != 1 || !strings.Contains(got[0], "🔒") {
		t.Errorf("sent = %v, want paywall", got)
	}
	if f.runner.runs != 0 {
		t.Error("pipeline must not run past the quota")
	}
}

func TestExhaustedQuotaDigitBuysCheckoutLink(t *testing.T) {
	f := newFixture(t)
	u := readyUser("+1555")
	u.FreeUsed = 5
	f.seed(u)

	f.d.HandleInbound(Inbound{Channel: "twilio", MessageID: "SM1", From: "+1555", Body: "2"}, f.send)
	f.d.Wait()

	if len(f.biller.tiers) != 1 || f.biller.tiers[0] != billing.TierAnnual {
		t.Errorf("tiers = %v", f.biller.tiers)
	}
	got := f.send.all()
	if len(got) != 1 || !strings.Contains(got[0], "checkout.stripe.com") {
		t.Errorf("sent = %v", got)
	}
	if len(f.wizard.handled) != 0 {
		t.Error("tier digit must not reach the wizard")
	}
}

func TestResetWorksEvenWhenBlocked(t *testing.T) {
	f := newFixture(t)
	u := readyUser("+1555")
	u.FreeUsed = 99
	f.seed(u)

	f.d.HandleInbound(Inbound{Channel: "twilio", MessageID: "SM1", From: "+1555", Body: "Reset"}, f.send)
	f.d.Wait()

	if f.wizard.resets != 1 {
		t.Errorf("resets = %d", f.wizard.resets)
	}
}

func TestReadyUserRunsPipeline(t *testing.T) {
	f := newFixture(t)
	f.seed(readyUser("+1555"))

	f.d.HandleInbound(Inbound{Channel: "twilio", MessageID: "SM1", From: "+1555", Body: "good morning"}, f.send)
	f.d.Wait()

	if f.runner.runs != 1 {
		t.Fatalf("runs = %d", f.runner.runs)
	}
	if got := f.send.all(); len(got) != 1 || got[0] != "translated" {
		t.Errorf("sent = %v", got)
	}
}

func TestPipelineFailureSendsApology(t *testing.T) {
	f := newFixture(t)
	f.seed(readyUser("+1555"))
	f.runner.err = errors.New("stt down")

	f.d.HandleInbound(Inbound{Channel: "twilio", MessageID: "SM1", From: "+1555", Body: "hola"}, f.send)
	f.d.Wait()

	got := f.send.all()
	if len(got) == 0 || !strings.Contains(got[len(got)-1], "😕") {
		t.Errorf("sent = %v, want apology", got)
	}
}

func TestQuotaIgnoredWhenBillingDisabled(t *testing.T) {
	f := newFixture(t)
	f.biller.enabled = false
	u := readyUser("+1555")
	u.FreeUsed = 99
	f.seed(u)

	f.d.HandleInbound(Inbound{Channel: "twilio", MessageID: "SM1", From: "+1555", Body: "hola"}, f.send)
	f.d.Wait()

	if f.runner.runs != 1 {
		t.Errorf("runs = %d, want pipeline to run with billing off", f.runner.runs)
	}
}

func TestEmptyTextFromReadyUserIgnored(t *testing.T) {
	f := newFixture(t)
	f.seed(readyUser("+1555"))

	f.d.HandleInbound(Inbound{Channel: "twilio", MessageID: "SM1", From: "+1555", Body: "   "}, f.send)
	f.d.Wait()

	if f.runner.runs != 0 || len(f.send.all()) != 0 {
		t.Errorf("runs = %d, sent = %v", f.runner.runs, f.send.all())
	}
}

func TestSameSenderProcessedSerially(t *testing.T) {
	f := newFixture(t)
	f.seed(readyUser("+1555"))
	f.runner.delay = 20 * time.Millisecond

	for _, id := range []string{"SM1", "SM2", "SM3"} {
		f.d.HandleInbound(Inbound{Channel: "twilio", MessageID: id, From: "+1555", Body: "hola"}, f.send)
	}
	f.d.Wait()

	if f.runner.runs != 3 {
		t.Fatalf("runs = %d", f.runner.runs)
	}
	if peak := atomic.LoadInt32(&f.runner.maxSeen); peak != 1 {
		t.Errorf("max concurrent runs for one sender = %d", peak)
	}
}
