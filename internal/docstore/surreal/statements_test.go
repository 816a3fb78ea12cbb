package surreal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nfrund/classhub/internal/docstore"
)

func TestSelectStatement(t *testing.T) {
	type status string
	q := docstore.From("scheduled_message").
		Eq("senderId", "u1").
		Eq("status", status("pending")).
		Order("createdAt", true).
		Take(10)

	st := selectStatement(q)

	assert.Equal(t,
		"SELECT * FROM type::table($tb) WHERE senderId = $w0 AND status = $w1 ORDER BY createdAt DESC, id ASC LIMIT 10",
		st.sql)
	assert.Equal(t, map[string]any{"tb": "scheduled_message", "w0": "u1", "w1": "pending"}, st.params)
}

func TestSelectStatement_Plain(t *testing.T) {
	st := selectStatement(docstore.From("user_presence"))
	assert.Equal(t, "SELECT * FROM type::table($tb)", st.sql)
}

func TestSetStatement(t *testing.T) {
	at := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	st := setStatement("user_presence", "u1", docstore.Document{"id": "ignored", "isOnline": true, "lastActive": at}, true)

	assert.Equal(t, "UPSERT type::thing($tb, $id) MERGE $doc", st.sql)
	assert.Equal(t, map[string]any{"isOnline": true, "lastActive": docstore.FormatTime(at)}, st.params["doc"])
	assert.Equal(t, "u1", st.params["id"])

	st = setStatement("user_presence", "u1", docstore.Document{}, false)
	assert.Equal(t, "UPSERT type::thing($tb, $id) CONTENT $doc", st.sql)
}

func TestBatchStatement(t *testing.T) {
	b := docstore.NewBatch().
		UpdateIf("scheduled_message", "d1", "status", "pending", docstore.Document{"status": "sent"}).
		Create("chat_message", "deferred-d1", docstore.Document{"text": "hi"}).
		Set("typing_status", "k", docstore.Document{"isTyping": false}, true)

	st := batchStatement(b)

	want := "BEGIN TRANSACTION;\n" +
		"LET $cur0 = (SELECT VALUE status FROM type::thing($tb0, $id0));\n" +
		"IF array::len($cur0) = 0 OR $cur0[0] != $exp0 { THROW \"precondition failed: op 0\" };\n" +
		"UPDATE type::thing($tb0, $id0) MERGE $doc0;\n" +
		"CREATE type::thing($tb1, $id1) CONTENT $doc1;\n" +
		"UPSERT type::thing($tb2, $id2) MERGE $doc2;\n" +
		"COMMIT TRANSACTION;"
	assert.Equal(t, want, st.sql)
	assert.Equal(t, "pending", st.params["exp0"])
	assert.Equal(t, "deferred-d1", st.params["id1"])
	assert.Equal(t, "typing_status", st.params["tb2"])
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want error
	}{
		{"thrown precondition", "An error occurred: precondition failed: op 0", docstore.ErrPreconditionFailed},
		{"duplicate create", "Database record `chat_message:x` already exists", docstore.ErrAlreadyExists},
		{"transaction conflict", "Failed to commit transaction due to a read or write conflict", docstore.ErrPreconditionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(assert.AnError, "batch commit failed", "")
			assert.NotErrorIs(t, err, tt.want)

			err = classify(errorString(tt.msg), "batch commit failed", "BEGIN TRANSACTION;")
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, docstore.IsConflict(err))
			assert.Contains(t, err.Error(), "Query: BEGIN TRANSACTION;")
		})
	}
	assert.NoError(t, classify(nil, "noop", ""))
}

type errorString string

func (e errorString) Error() string { return string(e) }

func TestRecordKey(t *testing.T) {
	assert.Equal(t, "a_b", recordKey("chat_message:⟨a_b⟩"))
	assert.Equal(t, "u1", recordKey("user_presence:u1"))
	assert.Equal(t, "plain", recordKey("plain"))
}

func TestFromRow(t *testing.T) {
	doc := fromRow(map[string]any{"id": "user_presence:u1", "isOnline": true, "count": uint64(3)})
	assert.Equal(t, "u1", doc.Key())
	assert.Equal(t, float64(3), doc["count"])
}
