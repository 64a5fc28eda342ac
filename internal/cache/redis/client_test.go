package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/quizforge/backend/pkg/logger"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	if err := logger.Init("error", "console", "stdout"); err != nil {
		t.Fatalf("logger init: %v", err)
	}

	srv := miniredis.RunT(t)
	return NewClientFromRedis(goredis.NewClient(&goredis.Options{Addr: srv.Addr()}))
}

func TestEmbeddingRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	want := []float32{0.1, -0.5, 2.25}
	if err := c.SetEmbedding(ctx, "abc123", want, time.Minute); err != nil {
		t.Fatalf("SetEmbedding: %v", err)
	}

	got, ok, err := c.GetEmbedding(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetEmbedding: %v", err)
	}
	if !ok {
		t.Fatal("expected cache hit")
	}
	if len(got) != len(want) {
		t.Fatalf("got %d values, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("value %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestEmbeddingMiss(t *testing.T) {
	c := newTestClient(t)

	got, ok, err := c.GetEmbedding(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetEmbedding: %v", err)
	}
	if ok || got != nil {
		t.Errorf("expected miss, got ok=%v values=%v", ok, got)
	}
}
