package surreal

import (
	"context"
	"os"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/nfrund/classhub/internal/config"
	"github.com/nfrund/classhub/internal/docstore"
	"github.com/nfrund/classhub/internal/docstore/storetest"
)

var testCollections = []string{"user_presence", "typing_status", "chat_message", "scheduled_message"}

func TestStoreContract(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	_ = godotenv.Load("../../../.env.test")
	if os.Getenv("SURREAL_URL") == "" {
		t.Skip("SURREAL_URL not set")
	}

	suite.Run(t, storetest.NewSuite(func() (docstore.Store, func()) {
		cfg := config.FromEnv(os.Getenv)
		ctx := context.Background()
		s, err := Open(ctx, cfg)
		require.NoError(t, err, "failed to connect to test database")

		wipe := func() {
			for _, coll := range testCollections {
				_ = s.execute(ctx, statement{sql: "DELETE type::table($tb)", params: map[string]any{"tb": coll}}, "cleanup")
			}
		}
		wipe()
		// The suite closes the store, so cleanup reconnects to wipe.
		return s, func() {
			s2, err := Open(ctx, cfg)
			if err != nil {
				return
			}
			for _, coll := range testCollections {
				_ = s2.execute(ctx, statement{sql: "DELETE type::table($tb)", params: map[string]any{"tb": coll}}, "cleanup")
			}
			_ = s2.Close()
		}
	}))
}
