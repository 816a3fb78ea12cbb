package surreal

import (
	"fmt"
	"strings"

	"github.com/nfrund/classhub/internal/docstore"
)

// preconditionMarker is thrown from inside a transaction when an UpdateIf
// expectation does not hold. classify matches on it.
const preconditionMarker = "precondition failed"

// statement is SurrealQL text with its bound parameters. Collection and field
// names are interpolated only after docstore.ValidIdent has accepted them.
type statement struct {
	sql    string
	params map[string]any
}

func selectStatement(q docstore.Query) statement {
	params := map[string]any{"tb": q.Collection}
	var b strings.Builder
	b.WriteString("SELECT * FROM type::table($tb)")
	for i, c := range q.Where {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		name := fmt.Sprintf("w%d", i)
		fmt.Fprintf(&b, "%s = $%s", c.Field, name)
		params[name] = docstore.Normalize(c.Value)
	}
	if q.OrderBy != "" {
		fmt.Fprintf(&b, " ORDER BY %s", q.OrderBy)
		if q.Desc {
			b.WriteString(" DESC")
		}
		b.WriteString(", id ASC")
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}
	return statement{sql: b.String(), params: params}
}

func getStatement(collection, key string) statement {
	return statement{
		sql:    "SELECT * FROM type::thing($tb, $id)",
		params: map[string]any{"tb": collection, "id": key},
	}
}

func deleteStatement(collection, key string) statement {
	return statement{
		sql:    "DELETE type::thing($tb, $id)",
		params: map[string]any{"tb": collection, "id": key},
	}
}

func liveStatement(collection string) string {
	return "LIVE SELECT * FROM " + collection
}

// batchStatement renders a batch as one transaction. A failed UpdateIf throws,
// which cancels every write of the transaction.
func batchStatement(b *docstore.Batch) statement {
	params := make(map[string]any)
	var sb strings.Builder
	sb.WriteString("BEGIN TRANSACTION;\n")
	for i, op := range b.Ops() {
		tb, id, doc := fmt.Sprintf("tb%d", i), fmt.Sprintf("id%d", i), fmt.Sprintf("doc%d", i)
		params[tb] = op.Collection
		params[id] = op.Key
		params[doc] = content(op.Doc)
		thing := fmt.Sprintf("type::thing($%s, $%s)", tb, id)

		switch op.Kind {
		case docstore.OpCreate:
			fmt.Fprintf(&sb, "CREATE %s CONTENT $%s;\n", thing, doc)
		case docstore.OpSet:
			fmt.Fprintf(&sb, "UPSERT %s %s $%s;\n", thing, setMode(op.Merge), doc)
		case docstore.OpUpdateIf:
			cur, exp := fmt.Sprintf("cur%d", i), fmt.Sprintf("exp%d", i)
			params[exp] = docstore.Normalize(op.Expected)
			fmt.Fprintf(&sb, "LET $%s = (SELECT VALUE %s FROM %s);\n", cur, op.Field, thing)
			fmt.Fprintf(&sb, "IF array::len($%s) = 0 OR $%s[0] != $%s { THROW \"%s: op %d\" };\n", cur, cur, exp, preconditionMarker, i)
			fmt.Fprintf(&sb, "UPDATE %s MERGE $%s;\n", thing, doc)
		}
	}
	sb.WriteString("COMMIT TRANSACTION;")
	return statement{sql: sb.String(), params: params}
}

func setStatement(collection, key string, doc docstore.Document, merge bool) statement {
	return statement{
		sql:    fmt.Sprintf("UPSERT type::thing($tb, $id) %s $doc", setMode(merge)),
		params: map[string]any{"tb": collection, "id": key, "doc": content(doc)},
	}
}

func setMode(merge bool) string {
	if merge {
		return "MERGE"
	}
	return "CONTENT"
}

// content prepares a document for writing. The key lives in the record id, so
// the id field is dropped.
func content(doc docstore.Document) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == docstore.KeyField {
			continue
		}
		out[k] = docstore.Normalize(v)
	}
	return out
}
