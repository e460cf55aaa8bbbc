package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"guest-delivery/internal/domain/entity"
	"guest-delivery/internal/observability/slo"
)

// ResultOutput is the JSON form of a delivery result.
type ResultOutput struct {
	MessageID  string          `json:"message_id,omitempty"`
	Success    bool            `json:"success"`
	Channel    entity.Channel  `json:"channel"`
	ProviderID string          `json:"provider_id,omitempty"`
	Status     string          `json:"status"`
	Error      string          `json:"error,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Attempts   []AttemptOutput `json:"attempts,omitempty"`
}

// AttemptOutput is one fanned-out number.
type AttemptOutput struct {
	Phone      string `json:"phone"`
	WasPrimary bool   `json:"was_primary"`
	Category   string `json:"category,omitempty"`
	Success    bool   `json:"success"`
	ProviderID string `json:"provider_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

// StatsOutput is the JSON form of queue counts.
type StatsOutput struct {
	Counts       map[entity.QueueStatus]int64 `json:"counts"`
	SuccessRatio float64                      `json:"success_ratio"`
	Backlog      int64                        `json:"backlog"`
	SLOBreached  bool                         `json:"slo_breached"`
}

// ItemOutput is the JSON form of a queue row.
type ItemOutput struct {
	MessageID      string                  `json:"message_id"`
	RecipientID    int64                   `json:"recipient_id"`
	EventID        int64                   `json:"event_id,omitempty"`
	Status         entity.QueueStatus      `json:"status"`
	Preferred      entity.Channel          `json:"preferred_channel,omitempty"`
	Delivered      entity.Channel          `json:"delivered_channel,omitempty"`
	ProviderStatus string                  `json:"provider_status,omitempty"`
	Error          string                  `json:"error,omitempty"`
	RetryCount     int                     `json:"retry_count"`
	MaxRetries     int                     `json:"max_retries"`
	Priority       int                     `json:"priority"`
	CreatedAt      time.Time               `json:"created_at"`
	NextRetryAt    *time.Time              `json:"next_retry_at,omitempty"`
	Receipt        *entity.DeliveryReceipt `json:"receipt,omitempty"`
}

// EntryOutput is the JSON form of a ledger entry.
type EntryOutput struct {
	ID           int64               `json:"id"`
	InvitationID int64               `json:"invitation_id"`
	RecipientID  int64               `json:"recipient_id"`
	Status       entity.LedgerStatus `json:"status"`
	Method       entity.LedgerMethod `json:"method"`
	Description  string              `json:"method_description,omitempty"`
	Channel      entity.Channel      `json:"channel,omitempty"`
	ProviderID   string              `json:"provider_id,omitempty"`
	Error        string              `json:"error,omitempty"`
	SentBy       string              `json:"sent_by,omitempty"`
	SentAt       *time.Time          `json:"sent_at,omitempty"`
}

// ContactOutput is the JSON form of a phone contact record.
type ContactOutput struct {
	Phone       string              `json:"phone"`
	WasPrimary  bool                `json:"was_primary"`
	Category    string              `json:"category,omitempty"`
	Status      entity.LedgerStatus `json:"status"`
	ContactedAt time.Time           `json:"contacted_at"`
}

// printValue writes v as indented JSON, or calls text for any other format.
func printValue(w io.Writer, format string, v any, text func(io.Writer)) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode output: %w", err)
		}
		return nil
	case "text":
		text(w)
		return nil
	default:
		return fmt.Errorf("unknown output format %q, want text or json", format)
	}
}

func resultOutput(res entity.DeliveryResult) ResultOutput {
	out := ResultOutput{
		MessageID:  res.MessageID,
		Success:    res.Success,
		Channel:    res.Channel,
		ProviderID: res.ProviderID,
		Status:     res.Status,
		Error:      res.Error,
		Timestamp:  res.Timestamp,
	}
	for _, a := range res.Attempts {
		out.Attempts = append(out.Attempts, AttemptOutput{
			Phone:      a.Phone,
			WasPrimary: a.WasPrimary,
			Category:   a.Category,
			Success:    a.Success,
			ProviderID: a.ProviderID,
			Error:      a.Error,
		})
	}
	return out
}

func printResult(w io.Writer, format string, res entity.DeliveryResult) error {
	out := resultOutput(res)
	return printValue(w, format, out, func(w io.Writer) {
		state := "delivered"
		if !out.Success {
			state = "failed"
		}
		fmt.Fprintf(w, "Message %s %s via %s (%s)\n", out.MessageID, state, out.Channel, out.Status)
		if out.ProviderID != "" {
			fmt.Fprintf(w, "Provider ID: %s\n", out.ProviderID)
		}
		if out.Error != "" {
			fmt.Fprintf(w, "Error: %s\n", out.Error)
		}
		for _, a := range out.Attempts {
			mark := "ok"
			if !a.Success {
				mark = "failed: " + a.Error
			}
			fmt.Fprintf(w, "  %s primary=%t %s\n", a.Phone, a.WasPrimary, mark)
		}
	})
}

func printStats(w io.Writer, format string, stats entity.QueueStats, snap slo.Snapshot) error {
	out := StatsOutput{
		Counts:       stats,
		SuccessRatio: snap.SuccessRatio,
		Backlog:      snap.Backlog,
		SLOBreached:  snap.Breached,
	}
	return printValue(w, format, out, func(w io.Writer) {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, st := range entity.AllQueueStatuses {
			fmt.Fprintf(tw, "%s\t%d\n", st, stats[st])
		}
		_ = tw.Flush()
		fmt.Fprintf(w, "Success ratio: %.2f%%  Backlog: %d  SLO breached: %t\n",
			snap.SuccessRatio*100, snap.Backlog, snap.Breached)
	})
}

func itemOutput(item *entity.QueueItem, receipt *entity.DeliveryReceipt) ItemOutput {
	return ItemOutput{
		MessageID:      item.MessageID,
		RecipientID:    item.RecipientID,
		EventID:        item.EventID,
		Status:         item.Status,
		Preferred:      item.PreferredChan,
		Delivered:      item.DeliveredChan,
		ProviderStatus: item.ProviderStatus,
		Error:          item.Error,
		RetryCount:     item.RetryCount,
		MaxRetries:     item.MaxRetries,
		Priority:       item.Priority,
		CreatedAt:      item.CreatedAt,
		NextRetryAt:    item.NextRetryAt,
		Receipt:        receipt,
	}
}

func printItem(w io.Writer, format string, item *entity.QueueItem, receipt *entity.DeliveryReceipt) error {
	out := itemOutput(item, receipt)
	return printValue(w, format, out, func(w io.Writer) {
		fmt.Fprintf(w, "Message:   %s\n", out.MessageID)
		fmt.Fprintf(w, "Recipient: %d\n", out.RecipientID)
		fmt.Fprintf(w, "Status:    %s (attempts %d/%d, priority %d)\n", out.Status, out.RetryCount, out.MaxRetries, out.Priority)
		if out.Delivered != "" {
			fmt.Fprintf(w, "Channel:   %s %s\n", out.Delivered, out.ProviderStatus)
		}
		if out.NextRetryAt != nil {
			fmt.Fprintf(w, "Next try:  %s\n", out.NextRetryAt.Format(time.RFC3339))
		}
		if out.Error != "" {
			fmt.Fprintf(w, "Error:     %s\n", out.Error)
		}
		if receipt != nil {
			fmt.Fprintf(w, "Delivered: %s\n", receipt.DeliveredAt.Format(time.RFC3339))
		}
	})
}

func printItems(w io.Writer, format string, items []*entity.QueueItem) error {
	out := make([]ItemOutput, len(items))
	for i, item := range items {
		out[i] = itemOutput(item, nil)
	}
	return printValue(w, format, out, func(w io.Writer) {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "MESSAGE\tSTATUS\tCHANNEL\tATTEMPTS\tCREATED")
		for _, o := range out {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%s\n",
				o.MessageID, o.Status, o.Delivered, o.RetryCount, o.MaxRetries, o.CreatedAt.Format(time.RFC3339))
		}
		_ = tw.Flush()
	})
}

func printEntries(w io.Writer, format string, entries []*entity.InvitationLedgerEntry) error {
	out := make([]EntryOutput, len(entries))
	for i, e := range entries {
		out[i] = EntryOutput{
			ID:           e.ID,
			InvitationID: e.InvitationID,
			RecipientID:  e.RecipientID,
			Status:       e.Status,
			Method:       e.Method,
			Description:  e.MethodDescription,
			Channel:      e.Channel,
			ProviderID:   e.ProviderID,
			Error:        e.Error,
			SentBy:       e.SentBy,
			SentAt:       e.SentAt,
		}
	}
	return printValue(w, format, out, func(w io.Writer) {
		if len(out) == 0 {
			fmt.Fprintln(w, "No new ledger entries (every recipient was already logged)")
			return
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ENTRY\tRECIPIENT\tSTATUS\tMETHOD\tCHANNEL\tERROR")
		for _, o := range out {
			fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\n", o.ID, o.RecipientID, o.Status, o.Method, o.Channel, o.Error)
		}
		_ = tw.Flush()
	})
}

func printContacts(w io.Writer, format string, records []entity.PhoneContactRecord) error {
	out := make([]ContactOutput, len(records))
	for i, r := range records {
		out[i] = ContactOutput{
			Phone:       r.Phone,
			WasPrimary:  r.WasPrimary,
			Category:    r.Category,
			Status:      r.Status,
			ContactedAt: r.ContactedAt,
		}
	}
	return printValue(w, format, out, func(w io.Writer) {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "PHONE\tPRIMARY\tCATEGORY\tSTATUS\tCONTACTED")
		for _, o := range out {
			fmt.Fprintf(tw, "%s\t%t\t%s\t%s\t%s\n", o.Phone, o.WasPrimary, o.Category, o.Status, o.ContactedAt.Format(time.RFC3339))
		}
		_ = tw.Flush()
	})
}
