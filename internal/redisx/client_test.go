package redisx

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func TestExistsAndMarkOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := New(mr.Addr())
	defer rdb.Close()
	ctx := context.Background()

	key := fmt.Sprintf(KeyDedup, "callback", "tx-1")
	if ok, err := Exists(ctx, rdb, key); err != nil || ok {
		t.Fatalf("Exists before mark = %v, %v", ok, err)
	}

	first, err := MarkOnce(ctx, rdb, key, TTLDedup)
	if err != nil || !first {
		t.Fatalf("first MarkOnce = %v, %v", first, err)
	}
	second, err := MarkOnce(ctx, rdb, key, TTLDedup)
	if err != nil || second {
		t.Fatalf("second MarkOnce = %v, %v", second, err)
	}
	if ok, _ := Exists(ctx, rdb, key); !ok {
		t.Fatal("key should exist after MarkOnce")
	}
	if ttl := mr.TTL(key); ttl != TTLDedup {
		t.Errorf("ttl = %v, want %v", ttl, TTLDedup)
	}
}
