package docstore

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdent reports whether s is usable as a collection or field name.
func ValidIdent(s string) bool {
	return identPattern.MatchString(s)
}

// Cond is an equality filter on one field.
type Cond struct {
	Field string
	Value any
}

// Query selects documents from one collection.
type Query struct {
	Collection string
	Where      []Cond
	OrderBy    string
	Desc       bool
	Limit      int
}

// From starts a query on collection.
func From(collection string) Query {
	return Query{Collection: collection}
}

// Eq adds an equality condition.
func (q Query) Eq(field string, value any) Query {
	q.Where = append(append([]Cond(nil), q.Where...), Cond{Field: field, Value: value})
	return q
}

// Order sets the sort field and direction.
func (q Query) Order(field string, desc bool) Query {
	q.OrderBy = field
	q.Desc = desc
	return q
}

// Take limits the number of returned documents. Zero means unlimited.
func (q Query) Take(n int) Query {
	q.Limit = n
	return q
}

// Validate checks collection and field names.
func (q Query) Validate() error {
	if !ValidIdent(q.Collection) {
		return fmt.Errorf("%w: collection %q", ErrInvalidInput, q.Collection)
	}
	for _, c := range q.Where {
		if !ValidIdent(c.Field) {
			return fmt.Errorf("%w: field %q", ErrInvalidInput, c.Field)
		}
	}
	if q.OrderBy != "" && !ValidIdent(q.OrderBy) {
		return fmt.Errorf("%w: order field %q", ErrInvalidInput, q.OrderBy)
	}
	if q.Limit < 0 {
		return fmt.Errorf("%w: negative limit", ErrInvalidInput)
	}
	return nil
}

// Matches reports whether doc satisfies every condition of q.
func (q Query) Matches(doc Document) bool {
	for _, c := range q.Where {
		v, ok := doc[c.Field]
		if !ok || Compare(v, c.Value) != 0 {
			return false
		}
	}
	return true
}

// Apply filters, orders and limits docs in memory. Ties are broken by key so the
// result is deterministic.
func (q Query) Apply(docs []Document) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if q.Matches(d) {
			out = append(out, d)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if q.OrderBy != "" {
			if c := Compare(out[i][q.OrderBy], out[j][q.OrderBy]); c != 0 {
				if q.Desc {
					return c > 0
				}
				return c < 0
			}
		}
		return out[i].Key() < out[j].Key()
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

// String renders the query for logs.
func (q Query) String() string {
	var b strings.Builder
	b.WriteString(q.Collection)
	for i, c := range q.Where {
		if i == 0 {
			b.WriteString(" where ")
		} else {
			b.WriteString(" and ")
		}
		fmt.Fprintf(&b, "%s=%v", c.Field, c.Value)
	}
	if q.OrderBy != "" {
		fmt.Fprintf(&b, " order by %s", q.OrderBy)
		if q.Desc {
			b.WriteString(" desc")
		}
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " limit %d", q.Limit)
	}
	return b.String()
}
