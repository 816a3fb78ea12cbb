// Package format renders CLI output as aligned tables or JSON.
package format

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/nfrund/classhub/internal/domain"
	"github.com/nfrund/classhub/internal/pubsub"
)

// Output formats accepted by --format.
const (
	Table = "table"
	JSON  = "json"
)

// Valid reports whether f is a known output format.
func Valid(f string) bool {
	return f == Table || f == JSON
}

// EventDisplay represents an event for display purposes.
type EventDisplay struct {
	Name        string   `json:"name"`
	Module      string   `json:"module"`
	Description string   `json:"description"`
	PayloadType string   `json:"payloadType"`
	Fields      []string `json:"fields"`
}

// Events writes the event catalogue.
func Events(w io.Writer, format string, events []pubsub.EventInfo) error {
	if format == JSON {
		out := make([]EventDisplay, 0, len(events))
		for _, e := range events {
			out = append(out, EventDisplay{
				Name:        e.Name,
				Module:      e.Module,
				Description: e.Description,
				PayloadType: e.PayloadType,
				Fields:      e.PayloadFields,
			})
		}
		return writeJSON(w, out)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tMODULE\tDESCRIPTION\tFIELDS")
	fmt.Fprintln(tw, "----\t------\t-----------\t------")
	if len(events) == 0 {
		fmt.Fprintln(tw, "No events found")
	}
	for _, e := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			e.Name,
			e.Module,
			truncate(e.Description, 50),
			strings.Join(e.PayloadFields, ","))
	}
	return tw.Flush()
}

// Deferred writes scheduled messages.
func Deferred(w io.Writer, format string, msgs []domain.DeferredMessage) error {
	if format == JSON {
		return writeJSON(w, msgs)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTO\tSTATUS\tCREATED\tSENT\tTEXT")
	if len(msgs) == 0 {
		fmt.Fprintln(tw, "No scheduled messages")
	}
	for _, m := range msgs {
		to := string(m.TargetUserID)
		if m.TargetDisplayName != "" {
			to = m.TargetDisplayName
		}
		sent := "-"
		if m.SentAt != nil {
			sent = stamp(*m.SentAt)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", m.ID, to, m.Status, stamp(m.CreatedAt), sent, truncate(m.MessageText, 40))
	}
	return tw.Flush()
}

// Messages writes a message stream, oldest first.
func Messages(w io.Writer, format string, msgs []domain.Message) error {
	if format == JSON {
		return writeJSON(w, msgs)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tFROM\tTYPE\tREAD\tTEXT")
	if len(msgs) == 0 {
		fmt.Fprintln(tw, "No messages")
	}
	for _, m := range msgs {
		from := string(m.SenderID)
		if m.SenderDisplayName != "" {
			from = m.SenderDisplayName
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", stamp(m.Timestamp), from, m.MessageType, m.IsRead, m.Text)
	}
	return tw.Flush()
}

// UserDisplay is a presence record with its evaluated liveness.
type UserDisplay struct {
	UID         domain.UserIdentity `json:"uid"`
	DisplayName string              `json:"displayName"`
	Online      bool                `json:"online"`
	LastActive  time.Time           `json:"lastActive"`
}

// Users writes the user directory.
func Users(w io.Writer, format string, users []UserDisplay) error {
	if format == JSON {
		return writeJSON(w, users)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "UID\tNAME\tONLINE\tLAST ACTIVE")
	if len(users) == 0 {
		fmt.Fprintln(tw, "No users found")
	}
	for _, u := range users {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", u.UID, u.DisplayName, u.Online, stamp(u.LastActive))
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
