package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"guest-delivery/internal/domain/entity"
	"guest-delivery/internal/infra/db"
	"guest-delivery/internal/observability/slo"
	"guest-delivery/internal/usecase/delivery"
	"guest-delivery/internal/usecase/queue"
)

// newFlagSet returns a flag set that reports errors instead of exiting, plus its -output flag.
func newFlagSet(name string, stderr io.Writer) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	output := fs.String("output", "text", "Output format: text or json")
	return fs, output
}

// messageFlags are the request fields shared by send and enqueue.
type messageFlags struct {
	messageID string
	recipient int64
	event     int64
	channel   string
	kind      string
	title     string
	body      string
	sender    string
	template  string
}

func (m *messageFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&m.messageID, "message-id", "", "Caller-chosen message ID (generated when empty)")
	fs.Int64Var(&m.recipient, "recipient", 0, "Recipient ID (required)")
	fs.Int64Var(&m.event, "event", 0, "Event ID")
	fs.StringVar(&m.channel, "channel", "", "Preferred channel: EMAIL, SMS, CHAT_APP_CLOUD, CHAT_APP_DEVICE, INTERNAL")
	fs.StringVar(&m.kind, "kind", "MESSAGE", "Message kind: MESSAGE or INVITATION")
	fs.StringVar(&m.title, "title", "", "Message title")
	fs.StringVar(&m.body, "body", "", "Message body; placeholders like "+
		delivery.TokenGuestName+" or "+delivery.TokenEventName+" are substituted")
	fs.StringVar(&m.sender, "sender", "deliveryctl", "Sender ID recorded on the message")
	fs.StringVar(&m.template, "template", "", "Pre-approved chat-app template name")
}

func (m *messageFlags) request() (entity.DeliveryRequest, error) {
	ch, err := entity.ParseChannel(m.channel)
	if err != nil {
		return entity.DeliveryRequest{}, err
	}
	kind, err := entity.ParseMessageKind(m.kind)
	if err != nil {
		return entity.DeliveryRequest{}, err
	}
	req := entity.DeliveryRequest{
		MessageID:        m.messageID,
		Kind:             kind,
		Title:            m.title,
		Body:             m.body,
		RecipientID:      m.recipient,
		EventID:          m.event,
		PreferredChannel: ch,
		SenderID:         m.sender,
		TemplateName:     m.template,
	}
	if err := req.Validate(); err != nil {
		return entity.DeliveryRequest{}, err
	}
	return req, nil
}

func runSend(ctx context.Context, env *cliEnv, args []string) error {
	fs, output := newFlagSet("send", errWriter(env))
	var m messageFlags
	m.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	req, err := m.request()
	if err != nil {
		return err
	}

	res := env.app.Delivery.Send(ctx, req)
	if err := printResult(env.out, *output, res); err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("delivery failed: %s", res.Error)
	}
	return nil
}

func runEnqueue(ctx context.Context, env *cliEnv, args []string) error {
	fs, output := newFlagSet("enqueue", errWriter(env))
	var m messageFlags
	m.register(fs)
	priority := fs.Int("priority", 0, "Priority 1-10, higher first (default 5)")
	maxRetries := fs.Int("max-retries", 0, "Failed attempts before FAILED (default 3)")
	at := fs.String("at", "", "Schedule the first attempt at an RFC 3339 time")
	if err := fs.Parse(args); err != nil {
		return err
	}
	req, err := m.request()
	if err != nil {
		return err
	}
	scheduledAt, err := parseTime(*at)
	if err != nil {
		return err
	}

	id, err := env.app.Queue.Enqueue(ctx, req, queue.EnqueueOptions{
		ScheduledAt: scheduledAt,
		Priority:    *priority,
		MaxRetries:  *maxRetries,
	})
	if err != nil {
		return err
	}
	return printValue(env.out, *output, map[string]string{"message_id": id}, func(w io.Writer) {
		fmt.Fprintf(w, "Queued %s\n", id)
	})
}

func runStats(ctx context.Context, env *cliEnv, args []string) error {
	fs, output := newFlagSet("stats", errWriter(env))
	if err := fs.Parse(args); err != nil {
		return err
	}
	stats, err := env.app.Queue.Stats(ctx)
	if err != nil {
		return err
	}
	return printStats(env.out, *output, stats, slo.Evaluate(stats))
}

func runStatus(ctx context.Context, env *cliEnv, args []string) error {
	fs, output := newFlagSet("status", errWriter(env))
	messageID := fs.String("message-id", "", "Message ID to look up")
	recipient := fs.Int64("recipient", 0, "List the recipient's messages instead")
	event := fs.Int64("event", 0, "List the event's messages instead")
	limit := fs.Int("limit", queue.DefaultListLimit, "Maximum rows when listing")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch {
	case *messageID != "":
		item, err := env.app.Queue.Get(ctx, *messageID)
		if err != nil {
			return err
		}
		receipt, err := env.app.Queue.Receipt(ctx, *messageID)
		if err != nil && !errors.Is(err, entity.ErrNotFound) {
			return err
		}
		return printItem(env.out, *output, item, receipt)
	case *recipient > 0:
		items, err := env.app.Queue.ListByRecipient(ctx, *recipient, *limit)
		if err != nil {
			return err
		}
		return printItems(env.out, *output, items)
	case *event > 0:
		items, err := env.app.Queue.ListByEvent(ctx, *event, *limit)
		if err != nil {
			return err
		}
		return printItems(env.out, *output, items)
	default:
		return errors.New("one of -message-id, -recipient or -event is required")
	}
}

func runLedgerSend(ctx context.Context, env *cliEnv, args []string) error {
	fs, output := newFlagSet("ledger-send", errWriter(env))
	invitation := fs.Int64("invitation", 0, "Invitation ID (required)")
	recipients := fs.String("recipients", "", "Comma-separated recipient IDs (required)")
	sentBy := fs.String("by", "deliveryctl", "Operator recorded as the sender")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ids, err := parseIDs(*recipients)
	if err != nil {
		return err
	}
	if *invitation <= 0 || len(ids) == 0 {
		return errors.New("-invitation and -recipients are required")
	}

	entries, err := env.app.Ledger.Send(ctx, *invitation, ids, *sentBy)
	if err != nil && len(entries) == 0 {
		return err
	}
	if perr := printEntries(env.out, *output, entries); perr != nil {
		return perr
	}
	// entries whose outcome was not stored stay PENDING until ledger-retry after the lease
	return err
}

func runLedgerRetry(ctx context.Context, env *cliEnv, args []string) error {
	fs, output := newFlagSet("ledger-retry", errWriter(env))
	entryID := fs.Int64("entry", 0, "Ledger entry ID (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *entryID <= 0 {
		return errors.New("-entry is required")
	}

	entry, err := env.app.Ledger.Retry(ctx, *entryID)
	if err != nil {
		return err
	}
	return printEntries(env.out, *output, []*entity.InvitationLedgerEntry{entry})
}

func runMarkExternal(ctx context.Context, env *cliEnv, args []string) error {
	fs, output := newFlagSet("mark-external", errWriter(env))
	invitation := fs.Int64("invitation", 0, "Invitation ID (required)")
	recipient := fs.Int64("recipient", 0, "Recipient ID (required)")
	description := fs.String("description", "", "How the invitation was sent, e.g. \"handed over in person\"")
	sentBy := fs.String("by", "deliveryctl", "Operator recorded as the sender")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *invitation <= 0 || *recipient <= 0 {
		return errors.New("-invitation and -recipient are required")
	}

	entry, err := env.app.Ledger.MarkSentExternally(ctx, *invitation, *recipient, *description, *sentBy)
	if err != nil {
		return err
	}
	return printEntries(env.out, *output, []*entity.InvitationLedgerEntry{entry})
}

func runRecordPhones(ctx context.Context, env *cliEnv, args []string) error {
	fs, output := newFlagSet("record-phones", errWriter(env))
	entryID := fs.Int64("entry", 0, "Ledger entry ID (required)")
	phones := fs.String("phones", "", "Comma-separated numbers; empty records every number of the recipient")
	list := fs.Bool("list", false, "Only print the contacts already recorded")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *entryID <= 0 {
		return errors.New("-entry is required")
	}

	var (
		records []entity.PhoneContactRecord
		err     error
	)
	switch {
	case *list:
		records, err = env.app.Ledger.PhoneContacts(ctx, *entryID)
	case strings.TrimSpace(*phones) == "":
		records, err = env.app.Ledger.RecordForAllPhones(ctx, *entryID)
	default:
		records, err = env.app.Ledger.RecordForSelectedPhones(ctx, *entryID, splitList(*phones))
	}
	if err != nil {
		return err
	}
	return printContacts(env.out, *output, records)
}

func runMigrate(ctx context.Context, env *cliEnv, args []string) error {
	fs, _ := newFlagSet("migrate", errWriter(env))
	if err := fs.Parse(args); err != nil {
		return err
	}
	direction := "up"
	if fs.NArg() > 0 {
		direction = fs.Arg(0)
	}

	switch direction {
	case "up":
		if err := db.MigrateUp(ctx, env.db); err != nil {
			return err
		}
	case "down":
		if err := db.MigrateDown(ctx, env.db); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown migrate direction %q, want up or down", direction)
	}
	fmt.Fprintf(env.out, "Migrations %s applied\n", direction)
	return nil
}

func errWriter(env *cliEnv) io.Writer {
	if env.errOut != nil {
		return env.errOut
	}
	return io.Discard
}

// parseIDs parses a comma-separated list of positive IDs, dropping duplicates.
func parseIDs(raw string) ([]int64, error) {
	parts := splitList(raw)
	ids := make([]int64, 0, len(parts))
	seen := make(map[int64]bool, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid id %q", p)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseTime parses an RFC 3339 time; empty input means unscheduled.
func parseTime(raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid -at %q: want RFC 3339, e.g. 2026-05-01T18:00:00Z", raw)
	}
	t = t.UTC()
	return &t, nil
}
