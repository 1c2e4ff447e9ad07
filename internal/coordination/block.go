// Package coordination implements the coordination substrate (§4.7): a
// single shared block of text with a strict grammar used to queue tasks
// between cooperating agents. Grounded on original_source's
// message_queue.py for the exact parse/format grammar and the
// "[No messages]" placeholder rule; this package only formats and parses
// the block and serializes concurrent writers via an flock around the
// backing file, per §4.7's "external lock around the block's storage
// backend" invariant.
package coordination

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Priority is one of the four §3.1 message priorities.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Status is one of the three §3.1 message statuses.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusComplete   Status = "complete"
)

// Message is a §3.1 coordination Message.
type Message struct {
	Timestamp time.Time
	Sender    string
	Receiver  string
	Task      string
	Priority  Priority
	Status    Status
	Metadata  string // raw JSON, optional
}

const noMessagesPlaceholder = "[No messages]"
const recordSeparator = "---"

// Format renders a Message in the §4.7 grammar:
//
//	[<ISO-8601 ts>] <sender> -> <receiver>
//	Task: <one line>
//	Priority: <low|medium|high|critical>
//	Status: <pending|in_progress|complete>
//	[Metadata: <json>]
//	---
func Format(m Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s -> %s\n", m.Timestamp.UTC().Format(time.RFC3339), m.Sender, m.Receiver)
	fmt.Fprintf(&b, "Task: %s\n", oneLine(m.Task))
	fmt.Fprintf(&b, "Priority: %s\n", m.Priority)
	fmt.Fprintf(&b, "Status: %s\n", m.Status)
	if m.Metadata != "" {
		fmt.Fprintf(&b, "Metadata: %s\n", m.Metadata)
	}
	b.WriteString(recordSeparator + "\n")
	return b.String()
}

func oneLine(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\r\n", " "), "\n", " ")
}

var headerRe = regexp.MustCompile(`^\[(.+?)\]\s+(\S+)\s+->\s+(\S+)$`)

// Parse splits the block into records. A malformed record (missing one of
// the five mandatory lines) is skipped rather than aborting the whole
// parse, matching §9's fail-open design note applied to the substrate.
func Parse(block string) []Message {
	block = strings.TrimSpace(block)
	if block == "" || block == noMessagesPlaceholder {
		return nil
	}

	var out []Message
	for _, raw := range strings.Split(block, recordSeparator) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		lines := strings.Split(raw, "\n")
		if len(lines) < 3 {
			continue
		}
		hm := headerRe.FindStringSubmatch(strings.TrimSpace(lines[0]))
		if hm == nil {
			continue
		}
		ts, err := time.Parse(time.RFC3339, hm[1])
		if err != nil {
			continue
		}
		m := Message{Timestamp: ts, Sender: hm[2], Receiver: hm[3]}
		ok := true
		for _, ln := range lines[1:] {
			ln = strings.TrimSpace(ln)
			switch {
			case strings.HasPrefix(ln, "Task:"):
				m.Task = strings.TrimSpace(strings.TrimPrefix(ln, "Task:"))
			case strings.HasPrefix(ln, "Priority:"):
				m.Priority = Priority(strings.TrimSpace(strings.TrimPrefix(ln, "Priority:")))
			case strings.HasPrefix(ln, "Status:"):
				m.Status = Status(strings.TrimSpace(strings.TrimPrefix(ln, "Status:")))
			case strings.HasPrefix(ln, "Metadata:"):
				m.Metadata = strings.TrimSpace(strings.TrimPrefix(ln, "Metadata:"))
			}
		}
		if m.Task == "" || m.Priority == "" || m.Status == "" {
			ok = false
		}
		if ok {
			out = append(out, m)
		}
	}
	return out
}

// Render serializes a list of Messages back into block form, or the
// placeholder when empty.
func Render(msgs []Message) string {
	if len(msgs) == 0 {
		return noMessagesPlaceholder + "\n"
	}
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(Format(m))
	}
	return b.String()
}

// Post appends a new record to block, replacing the placeholder if
// present.
func Post(block string, m Message) string {
	existing := Parse(block)
	existing = append(existing, m)
	return Render(existing)
}

// Read filters the block's records by receiver and/or status (empty
// string means "don't filter on this field").
func Read(block string, receiver string, status Status) []Message {
	var out []Message
	for _, m := range Parse(block) {
		if receiver != "" && m.Receiver != receiver {
			continue
		}
		if status != "" && m.Status != status {
			continue
		}
		out = append(out, m)
	}
	return out
}

// MarkComplete locates the record matching (sender, receiver, timestamp)
// and rewrites its Status to complete.
func MarkComplete(block string, sender, receiver string, ts time.Time) string {
	msgs := Parse(block)
	for i := range msgs {
		if msgs[i].Sender == sender && msgs[i].Receiver == receiver && msgs[i].Timestamp.Equal(ts) {
			msgs[i].Status = StatusComplete
		}
	}
	return Render(msgs)
}

// Compact keeps every non-complete record plus the keepRecent most recent
// completed ones.
func Compact(block string, keepRecent int) string {
	msgs := Parse(block)
	var active []Message
	var completed []Message
	for _, m := range msgs {
		if m.Status == StatusComplete {
			completed = append(completed, m)
		} else {
			active = append(active, m)
		}
	}
	if len(completed) > keepRecent {
		completed = completed[len(completed)-keepRecent:]
	}
	out := append(active, completed...)
	return Render(out)
}
