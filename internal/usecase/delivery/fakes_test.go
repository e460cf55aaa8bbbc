package delivery

import (
	"context"
	"errors"
	"sync"
	"time"

	"guest-delivery/internal/domain/entity"
	"guest-delivery/internal/infra/notifier"
)

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

// fakeProvider records every envelope it is asked to deliver.
type fakeProvider struct {
	channel    entity.Channel
	configured bool
	can        func(Envelope) bool
	// respond decides the result per call; nil means success with id "id-<phone>".
	respond func(env Envelope) entity.DeliveryResult
	panics  bool

	mu    sync.Mutex
	calls []Envelope
}

func newFakeProvider(ch entity.Channel) *fakeProvider {
	return &fakeProvider{channel: ch, configured: true}
}

func (f *fakeProvider) Channel() entity.Channel { return f.channel }
func (f *fakeProvider) IsConfigured() bool      { return f.configured }

func (f *fakeProvider) CanDeliver(env Envelope) bool {
	if f.can == nil {
		return true
	}
	return f.can(env)
}

func (f *fakeProvider) Deliver(_ context.Context, env Envelope) entity.DeliveryResult {
	f.mu.Lock()
	f.calls = append(f.calls, env)
	f.mu.Unlock()
	if f.panics {
		panic("provider exploded")
	}
	if f.respond != nil {
		return f.respond(env)
	}
	return entity.SentResult(f.channel, "id-"+env.Phone(), testNow)
}

func (f *fakeProvider) Calls() []Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Envelope(nil), f.calls...)
}

type fakeDirectory struct {
	recipients map[int64]*entity.Recipient
	events     map[int64]*entity.Event
	err        error
}

func (d *fakeDirectory) GetRecipient(_ context.Context, id int64) (*entity.Recipient, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.recipients[id], nil
}

func (d *fakeDirectory) GetEvent(_ context.Context, id int64) (*entity.Event, error) {
	return d.events[id], nil
}

type fakeNotices struct {
	err   error
	saved []*entity.Notice
}

func (n *fakeNotices) SaveNotice(_ context.Context, notice *entity.Notice) error {
	if n.err != nil {
		return n.err
	}
	n.saved = append(n.saved, notice)
	return nil
}

// panicTemplater panics for one recipient and substitutes nothing otherwise.
type panicTemplater struct {
	recipientID int64
}

func (p panicTemplater) Apply(req entity.DeliveryRequest, _ *entity.Recipient, _ *entity.Event) (entity.DeliveryRequest, error) {
	if req.RecipientID == p.recipientID {
		panic("template blew up")
	}
	return req, nil
}

type failingTemplater struct{}

func (failingTemplater) Apply(req entity.DeliveryRequest, _ *entity.Recipient, _ *entity.Event) (entity.DeliveryRequest, error) {
	req.Body = "should not be used"
	return req, errors.New("bad template")
}

// transport fakes

type fakeMailer struct {
	configured bool
	err        error
	sent       []string
}

func (m *fakeMailer) Configured() bool { return m.configured }

func (m *fakeMailer) SendMail(_ context.Context, to, subject, _ string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, to+"|"+subject)
	return "<mail-1@example.com>", nil
}

type fakeTextSender struct {
	configured bool
	err        error
	to         []string
}

func (s *fakeTextSender) Configured() bool { return s.configured }

func (s *fakeTextSender) SendText(_ context.Context, to, _ string) (string, error) {
	s.to = append(s.to, to)
	if s.err != nil {
		return "", s.err
	}
	return "SM-" + to, nil
}

type fakeChatSender struct {
	creds []notifier.ChatCredentials
	msgs  []notifier.ChatMessage
}

func (s *fakeChatSender) SendChat(_ context.Context, creds notifier.ChatCredentials, msg notifier.ChatMessage) (string, error) {
	s.creds = append(s.creds, creds)
	s.msgs = append(s.msgs, msg)
	return "wamid." + msg.To, nil
}

type fakeBridge struct {
	configured bool
	err        error
	calls      int
}

func (b *fakeBridge) Configured() bool { return b.configured }

func (b *fakeBridge) SendViaDevice(_ context.Context, to, _ string) (string, error) {
	b.calls++
	if b.err != nil {
		return "", b.err
	}
	return "dev-" + to, nil
}

func threePhoneRecipient() *entity.Recipient {
	return &entity.Recipient{
		ID:      42,
		EventID: 7,
		Name:    "Ana Lima",
		Phones: []entity.PhoneNumber{
			{Number: "+15550000001", Primary: true, Category: "MOBILE"},
			{Number: "+15550000002", Category: "HOME", Label: "Ana (home)"},
			{Number: "+15550000003", Category: "WORK"},
		},
	}
}
