package docstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	ID      string     `json:"id,omitempty"`
	Owner   string     `json:"owner"`
	Count   int        `json:"count"`
	At      time.Time  `json:"at"`
	Done    *time.Time `json:"done,omitempty"`
	Skipped string     `json:"-"`
}

func TestEncode_FormatsTimesFixedWidth(t *testing.T) {
	at := time.Date(2026, 10, 18, 9, 30, 0, 0, time.FixedZone("CEST", 2*3600))
	doc, err := Encode(sample{Owner: "alice", Count: 3, At: at, Skipped: "x"})
	require.NoError(t, err)

	assert.Equal(t, "2026-10-18T07:30:00.000000000Z", doc["at"])
	assert.Equal(t, "alice", doc["owner"])
	assert.Equal(t, float64(3), doc["count"])
	assert.NotContains(t, doc, "done")
	assert.NotContains(t, doc, "Skipped")
}

func TestEncodeDecode_PreservesInstant(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 600, time.UTC)
	done := at.Add(time.Minute)

	doc, err := Encode(sample{Owner: "bob", At: at, Done: &done})
	require.NoError(t, err)
	doc[KeyField] = "k1"

	out, err := Decode[sample](doc)
	require.NoError(t, err)
	assert.Equal(t, "k1", out.ID)
	assert.True(t, out.At.Equal(at))
	require.NotNil(t, out.Done)
	assert.True(t, out.Done.Equal(done))
}

func TestFormatTime_LexicalOrderIsChronological(t *testing.T) {
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	// RFC3339Nano would render these as ...00Z and ...00.5Z, which sort wrongly.
	earlier := FormatTime(base)
	later := FormatTime(base.Add(500 * time.Millisecond))
	assert.Less(t, earlier, later)
}

func TestCompare(t *testing.T) {
	type named string

	assert.Equal(t, 0, Compare("a", named("a")))
	assert.Equal(t, -1, Compare("a", "b"))
	assert.Equal(t, 1, Compare(2, 1.5))
	assert.Equal(t, -1, Compare(false, true))
	assert.Equal(t, -1, Compare(nil, "a"))
	assert.Equal(t, 0, Compare(nil, nil))
}

func TestQuery_Apply(t *testing.T) {
	docs := []Document{
		{KeyField: "3", "owner": "a", "ts": "2026-01-03"},
		{KeyField: "1", "owner": "a", "ts": "2026-01-01"},
		{KeyField: "2", "owner": "b", "ts": "2026-01-02"},
		{KeyField: "4", "owner": "a", "ts": "2026-01-01"},
	}

	got := From("msg").Eq("owner", "a").Order("ts", false).Apply(docs)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"1", "4", "3"}, keys(got))

	got = From("msg").Eq("owner", "a").Order("ts", true).Take(2).Apply(docs)
	assert.Equal(t, []string{"3", "1"}, keys(got))
}

func TestQuery_Validate(t *testing.T) {
	assert.NoError(t, From("chat_message").Eq("chatId", "x").Order("timestamp", false).Validate())
	assert.ErrorIs(t, From("chat message").Validate(), ErrInvalidInput)
	assert.ErrorIs(t, From("msg").Eq("a;DELETE", 1).Validate(), ErrInvalidInput)
	assert.ErrorIs(t, From("msg").Take(-1).Validate(), ErrInvalidInput)
}

func TestBatch_Validate(t *testing.T) {
	assert.ErrorIs(t, NewBatch().Validate(), ErrInvalidInput)

	b := NewBatch().
		UpdateIf("scheduled_message", "m1", "status", "pending", Document{"status": "sent"}).
		Create("chat_message", "deferred-m1", Document{"text": "hi"})
	assert.NoError(t, b.Validate())
	assert.Equal(t, 2, b.Len())
	assert.Equal(t, OpUpdateIf, b.Ops()[0].Kind)

	assert.ErrorIs(t, NewBatch().Create("msg", "", Document{}).Validate(), ErrInvalidInput)
	assert.ErrorIs(t, NewBatch().UpdateIf("msg", "k", "", nil, Document{}).Validate(), ErrInvalidInput)
}

func TestIsConflict(t *testing.T) {
	assert.True(t, IsConflict(ErrAlreadyExists))
	assert.True(t, IsConflict(ErrPreconditionFailed))
	assert.False(t, IsConflict(ErrNotFound))
}

func keys(docs []Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Key())
	}
	return out
}
