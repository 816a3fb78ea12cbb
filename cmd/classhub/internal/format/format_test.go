package format

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/classhub/internal/domain"
	"github.com/nfrund/classhub/internal/pubsub"
)

func TestEvents_Table(t *testing.T) {
	var buf bytes.Buffer
	err := Events(&buf, Table, []pubsub.EventInfo{{
		Name:          "deferred.message.delivered",
		Module:        "deferred",
		Description:   "Published when a scheduled message is sent because its recipient came online",
		PayloadFields: []string{"deferredId", "chatId"},
	}})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "NAME"))
	assert.Contains(t, lines[2], "deferred.message.delivered")
	assert.Contains(t, lines[2], "deferredId,chatId")
	assert.Contains(t, lines[2], "...")
}

func TestEvents_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Events(&buf, JSON, []pubsub.EventInfo{{Name: "presence.user.online", Module: "presence"}}))

	var out []EventDisplay
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "presence.user.online", out[0].Name)
	assert.Equal(t, "presence", out[0].Module)
}

func TestDeferred_Table(t *testing.T) {
	sent := time.Date(2026, 3, 1, 17, 5, 0, 0, time.UTC)
	var buf bytes.Buffer
	err := Deferred(&buf, Table, []domain.DeferredMessage{
		{ID: "a", TargetUserID: "bob", TargetDisplayName: "Bob", Status: domain.DeferredSent, MessageText: "See you at 5", SentAt: &sent},
		{ID: "b", TargetUserID: "carol", Status: domain.DeferredPending, MessageText: "later"},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Bob")
	assert.Contains(t, out, "carol")
	assert.Contains(t, out, "pending")
	assert.Contains(t, out, "See you at 5")
}

func TestEmptyTables(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Messages(&buf, Table, nil))
	assert.Contains(t, buf.String(), "No messages")

	buf.Reset()
	require.NoError(t, Users(&buf, Table, nil))
	assert.Contains(t, buf.String(), "No users found")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ÅÅÅÅÅÅÅ...", truncate(strings.Repeat("Å", 20), 10))
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(Table))
	assert.True(t, Valid(JSON))
	assert.False(t, Valid("yaml"))
}
