package coordination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMessage() Message {
	return Message{
		Timestamp: time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC),
		Sender:    "agent-a",
		Receiver:  "agent-b",
		Task:      "review the ingest pipeline",
		Priority:  PriorityHigh,
		Status:    StatusPending,
	}
}

func TestFormatParse_RoundTrip(t *testing.T) {
	m := sampleMessage()
	block := Format(m)
	parsed := Parse(block)

	require.Len(t, parsed, 1)
	assert.Equal(t, m.Sender, parsed[0].Sender)
	assert.Equal(t, m.Receiver, parsed[0].Receiver)
	assert.Equal(t, m.Task, parsed[0].Task)
	assert.Equal(t, m.Priority, parsed[0].Priority)
	assert.Equal(t, m.Status, parsed[0].Status)
	assert.True(t, m.Timestamp.Equal(parsed[0].Timestamp))
}

func TestParse_EmptyBlockOrPlaceholder(t *testing.T) {
	assert.Empty(t, Parse(""))
	assert.Empty(t, Parse(noMessagesPlaceholder))
	assert.Empty(t, Parse(noMessagesPlaceholder + "\n"))
}

func TestParse_SkipsMalformedRecordButKeepsRest(t *testing.T) {
	good := Format(sampleMessage())
	bad := "garbage without the required fields\n---\n"
	parsed := Parse(bad + good)
	require.Len(t, parsed, 1)
	assert.Equal(t, "agent-a", parsed[0].Sender)
}

func TestTaskWithNewlinesIsFlattened(t *testing.T) {
	m := sampleMessage()
	m.Task = "line one\nline two"
	block := Format(m)
	parsed := Parse(block)
	require.Len(t, parsed, 1)
	assert.Equal(t, "line one line two", parsed[0].Task)
}

func TestPost_ReplacesPlaceholder(t *testing.T) {
	m := sampleMessage()
	block := Post(noMessagesPlaceholder+"\n", m)
	parsed := Parse(block)
	require.Len(t, parsed, 1)
	assert.Equal(t, m.Task, parsed[0].Task)
}

func TestPost_AppendsToExisting(t *testing.T) {
	first := sampleMessage()
	second := sampleMessage()
	second.Sender = "agent-c"
	second.Timestamp = first.Timestamp.Add(time.Minute)

	block := Post(Render(nil), first)
	block = Post(block, second)

	parsed := Parse(block)
	require.Len(t, parsed, 2)
}

func TestRead_FiltersByReceiverAndStatus(t *testing.T) {
	a := sampleMessage()
	b := sampleMessage()
	b.Receiver = "agent-z"
	b.Status = StatusComplete
	b.Timestamp = a.Timestamp.Add(time.Minute)

	block := Render([]Message{a, b})

	onlyB := Read(block, "agent-b", "")
	require.Len(t, onlyB, 1)
	assert.Equal(t, "agent-b", onlyB[0].Receiver)

	onlyComplete := Read(block, "", StatusComplete)
	require.Len(t, onlyComplete, 1)
	assert.Equal(t, StatusComplete, onlyComplete[0].Status)
}

func TestMarkComplete_UpdatesMatchingRecord(t *testing.T) {
	m := sampleMessage()
	block := Render([]Message{m})

	updated := MarkComplete(block, m.Sender, m.Receiver, m.Timestamp)
	parsed := Parse(updated)
	require.Len(t, parsed, 1)
	assert.Equal(t, StatusComplete, parsed[0].Status)
}

func TestMarkComplete_NoMatchLeavesBlockUnchangedInSubstance(t *testing.T) {
	m := sampleMessage()
	block := Render([]Message{m})

	updated := MarkComplete(block, "nobody", "nobody", time.Now())
	parsed := Parse(updated)
	require.Len(t, parsed, 1)
	assert.Equal(t, StatusPending, parsed[0].Status)
}

func TestCompact_KeepsActiveAndTrimsOldCompleted(t *testing.T) {
	active := sampleMessage()
	active.Status = StatusPending

	var completed []Message
	for i := 0; i < 5; i++ {
		m := sampleMessage()
		m.Status = StatusComplete
		m.Sender = "agent-c"
		m.Timestamp = active.Timestamp.Add(time.Duration(i+1) * time.Minute)
		completed = append(completed, m)
	}

	block := Render(append([]Message{active}, completed...))
	compacted := Compact(block, 2)
	parsed := Parse(compacted)

	require.Len(t, parsed, 3) // 1 active + 2 kept completed
	var pendingCount, completeCount int
	for _, m := range parsed {
		if m.Status == StatusPending {
			pendingCount++
		}
		if m.Status == StatusComplete {
			completeCount++
		}
	}
	assert.Equal(t, 1, pendingCount)
	assert.Equal(t, 2, completeCount)
}

func TestRender_EmptyProducesPlaceholder(t *testing.T) {
	assert.Equal(t, noMessagesPlaceholder+"\n", Render(nil))
}
