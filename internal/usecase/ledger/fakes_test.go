package ledger

import (
	"context"
	"sync"
	"time"

	"guest-delivery/internal/domain/entity"
)

var fixedTime = time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return fixedTime }

type pairKey struct{ invitation, recipient int64 }

// memLedger enforces the unique (invitation, recipient) pair like the database does.
type memLedger struct {
	mu       sync.Mutex
	nextID   int64
	entries  map[int64]*entity.InvitationLedgerEntry
	pairs    map[pairKey]int64
	contacts map[int64][]entity.PhoneContactRecord
	updates  int

	// createHook runs before Create stores the entry.
	createHook func(e *entity.InvitationLedgerEntry) error
	// updateErr, when set, fails UpdateOutcome without storing anything.
	updateErr error
}

func newMemLedger() *memLedger {
	return &memLedger{
		entries:  map[int64]*entity.InvitationLedgerEntry{},
		pairs:    map[pairKey]int64{},
		contacts: map[int64][]entity.PhoneContactRecord{},
	}
}

func (m *memLedger) Find(_ context.Context, invitationID, recipientID int64) (*entity.InvitationLedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.pairs[pairKey{invitationID, recipientID}]
	if !ok {
		return nil, nil
	}
	c := *m.entries[id]
	return &c, nil
}

func (m *memLedger) Get(_ context.Context, id int64) (*entity.InvitationLedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, nil
	}
	c := *e
	return &c, nil
}

func (m *memLedger) Create(_ context.Context, e *entity.InvitationLedgerEntry) error {
	if m.createHook != nil {
		if err := m.createHook(e); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey{e.InvitationID, e.RecipientID}
	if _, ok := m.pairs[key]; ok {
		return entity.ErrAlreadyExists
	}
	m.nextID++
	e.ID = m.nextID
	c := *e
	m.entries[e.ID] = &c
	m.pairs[key] = e.ID
	return nil
}

func (m *memLedger) UpdateOutcome(_ context.Context, e *entity.InvitationLedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	if m.updateErr != nil {
		return m.updateErr
	}
	c := *e
	m.entries[e.ID] = &c
	return nil
}

func (m *memLedger) ListByInvitation(_ context.Context, invitationID int64) ([]*entity.InvitationLedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.InvitationLedgerEntry
	for id := int64(1); id <= m.nextID; id++ {
		if e, ok := m.entries[id]; ok && e.InvitationID == invitationID {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *memLedger) AddPhoneContacts(_ context.Context, entryID int64, records []entity.PhoneContactRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		r.LedgerEntryID = entryID
		m.contacts[entryID] = append(m.contacts[entryID], r)
	}
	return nil
}

func (m *memLedger) ListPhoneContacts(_ context.Context, entryID int64) ([]entity.PhoneContactRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]entity.PhoneContactRecord(nil), m.contacts[entryID]...), nil
}

func (m *memLedger) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

type fakeDirectory struct {
	invitations map[int64]*entity.Invitation
	recipients  map[int64]*entity.Recipient
}

func (d *fakeDirectory) GetInvitation(_ context.Context, id int64) (*entity.Invitation, error) {
	return d.invitations[id], nil
}

func (d *fakeDirectory) GetRecipient(_ context.Context, id int64) (*entity.Recipient, error) {
	return d.recipients[id], nil
}

type sendCall struct {
	req entity.DeliveryRequest
	ch  entity.Channel
}

// fakeSender answers per recipient; recipients absent from results succeed.
type fakeSender struct {
	mu      sync.Mutex
	calls   []sendCall
	results map[int64]entity.DeliveryResult
}

func (f *fakeSender) DeliverOn(_ context.Context, req entity.DeliveryRequest, ch entity.Channel) entity.DeliveryResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sendCall{req: req, ch: ch})
	if res, ok := f.results[req.RecipientID]; ok {
		return res
	}
	return entity.SentResult(ch, "wamid-"+req.MessageID, fixedTime)
}

func (f *fakeSender) recipients() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int64
	for _, c := range f.calls {
		ids = append(ids, c.req.RecipientID)
	}
	return ids
}

func testDirectory() *fakeDirectory {
	return &fakeDirectory{
		invitations: map[int64]*entity.Invitation{
			7: {ID: 7, EventID: 3, Title: "You're invited", Body: "Join us", ContentType: entity.ContentText},
			8: {ID: 8, EventID: 3, ContentType: entity.ContentTemplate, TemplateName: "gala_invite"},
			9: {ID: 9, EventID: 3, ContentType: entity.ContentTemplate},
		},
		recipients: map[int64]*entity.Recipient{
			1: {ID: 1, EventID: 3, Name: "Ana", Phones: []entity.PhoneNumber{{Number: "+351910000001", Primary: true, Category: "mobile"}}},
			2: {ID: 2, EventID: 3, Name: "Ben", Phones: []entity.PhoneNumber{
				{Number: "+351910000002", Category: "home"},
				{Number: "+351910000003", Primary: true, Category: "mobile"},
			}},
			3: {ID: 3, EventID: 3, Name: "Cy"},
			9: {ID: 9, EventID: 3, Name: "Ines"},
		},
	}
}

type fixture struct {
	svc    *Service
	repo   *memLedger
	dir    *fakeDirectory
	sender *fakeSender
}

func newFixture(opts ...Option) *fixture {
	repo := newMemLedger()
	dir := testDirectory()
	sender := &fakeSender{results: map[int64]entity.DeliveryResult{}}
	svc := NewService(repo, dir, dir, sender, opts...)
	svc.now = fixedNow
	return &fixture{svc: svc, repo: repo, dir: dir, sender: sender}
}
