package conversation

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/nfrund/classhub/internal/domain"
)

// identifierGen draws from a tiny alphabet that includes the separator and the
// escape character so that near-collisions are actually exercised.
func identifierGen() gopter.Gen {
	return gen.OneGenOf(
		gen.RegexMatch(`[ab_%5F]{0,5}`),
		gen.AlphaString(),
		gen.Identifier(),
	)
}

func TestProperty_DeriveKeyOrderIndependent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("DeriveKey(a,b) == DeriveKey(b,a)", prop.ForAll(
		func(a, b string) bool {
			return DeriveKey(domain.UserIdentity(a), domain.UserIdentity(b)) ==
				DeriveKey(domain.UserIdentity(b), domain.UserIdentity(a))
		},
		identifierGen(), identifierGen(),
	))

	properties.TestingRun(t)
}

func TestProperty_DeriveKeyCollisionFree(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 1000
	properties := gopter.NewProperties(parameters)

	samePair := func(a, b, c, d string) bool {
		return (a == c && b == d) || (a == d && b == c)
	}

	properties.Property("distinct pairs never share a key", prop.ForAll(
		func(a, b, c, d string) bool {
			k1 := DeriveKey(domain.UserIdentity(a), domain.UserIdentity(b))
			k2 := DeriveKey(domain.UserIdentity(c), domain.UserIdentity(d))
			if samePair(a, b, c, d) {
				return k1 == k2
			}
			return k1 != k2
		},
		identifierGen(), identifierGen(), identifierGen(), identifierGen(),
	))

	properties.Property("Participants inverts DeriveKey", prop.ForAll(
		func(a, b string) bool {
			x, y, ok := Participants(DeriveKey(domain.UserIdentity(a), domain.UserIdentity(b)))
			if !ok {
				return false
			}
			return samePair(a, b, string(x), string(y))
		},
		identifierGen(), identifierGen(),
	))

	properties.TestingRun(t)
}

func TestDeriveKey(t *testing.T) {
	tests := []struct {
		name string
		a, b domain.UserIdentity
		want domain.ConversationKey
	}{
		{"sorted input", "alice", "bob", "alice_bob"},
		{"reversed input", "bob", "alice", "alice_bob"},
		{"firebase style ids", "Zx91kQ", "aB7fT2", "Zx91kQ_aB7fT2"},
		{"self conversation", "alice", "alice", "alice_alice"},
		{"separator is escaped", "a_b", "c", "a%5Fb_c"},
		{"escape char is escaped", "a%b", "c", "a%25b_c"},
		{"empty identity", "", "bob", "_bob"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveKey(tt.a, tt.b))
		})
	}
}

func TestDeriveKey_SeparatorAmbiguity(t *testing.T) {
	// Joined naively both pairs would read "a_b_c".
	assert.NotEqual(t, DeriveKey("a_b", "c"), DeriveKey("a", "b_c"))
}

func TestPeer(t *testing.T) {
	key := DeriveKey("alice", "bob")

	peer, ok := Peer(key, "alice")
	assert.True(t, ok)
	assert.Equal(t, domain.UserIdentity("bob"), peer)

	peer, ok = Peer(key, "bob")
	assert.True(t, ok)
	assert.Equal(t, domain.UserIdentity("alice"), peer)

	_, ok = Peer(key, "carol")
	assert.False(t, ok)

	_, _, ok = Participants("no-separator")
	assert.False(t, ok)
}
