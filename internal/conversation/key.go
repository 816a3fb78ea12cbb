// Package conversation derives the canonical identifiers of two-party message
// streams.
package conversation

import (
	"sort"
	"strings"

	"github.com/nfrund/classhub/internal/domain"
)

// Separator joins the two escaped participant identifiers of a key.
const Separator = "_"

var (
	escaper   = strings.NewReplacer("%", "%25", Separator, "%5F")
	unescaper = strings.NewReplacer("%5F", Separator, "%25", "%")
)

// DeriveKey maps an unordered pair of identities onto a single ConversationKey.
//
// The identifiers are sorted lexicographically and joined with Separator. Each
// identifier is escaped first so that an identifier containing the separator can
// never be confused with a different pair; identifiers without '%' or '_' come out
// unchanged. DeriveKey(a, a) is the degenerate self-conversation key "a_a".
func DeriveKey(u1, u2 domain.UserIdentity) domain.ConversationKey {
	ids := []string{string(u1), string(u2)}
	sort.Strings(ids)
	return domain.ConversationKey(escaper.Replace(ids[0]) + Separator + escaper.Replace(ids[1]))
}

// Participants inverts DeriveKey. ok is false when key was not produced by it.
func Participants(key domain.ConversationKey) (a, b domain.UserIdentity, ok bool) {
	left, right, found := strings.Cut(string(key), Separator)
	if !found || strings.Contains(right, Separator) {
		return "", "", false
	}
	return domain.UserIdentity(unescaper.Replace(left)), domain.UserIdentity(unescaper.Replace(right)), true
}

// Peer returns the other participant of key as seen from self.
func Peer(key domain.ConversationKey, self domain.UserIdentity) (domain.UserIdentity, bool) {
	a, b, ok := Participants(key)
	if !ok {
		return "", false
	}
	switch self {
	case a:
		return b, true
	case b:
		return a, true
	}
	return "", false
}
