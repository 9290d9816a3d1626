package storage

import (
	"context"
	"os"
	"testing"
	"time"
)

// integrationTimeout bounds every database round trip in a test
const integrationTimeout = 10 * time.Second

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), integrationTimeout)
	t.Cleanup(cancel)
	return ctx
}

// requireIntegration skips tests that need a live Postgres or ClickHouse
func requireIntegration(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
