package redisx

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestConnect_InvalidURL(t *testing.T) {
	if _, err := Connect(context.Background(), "http://not-redis"); err == nil {
		t.Fatal("expected error for non-redis url")
	}
}

func TestConnect_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := Connect(ctx, "redis://127.0.0.1:1/0"); err == nil {
		t.Fatal("expected ping error")
	}
}

func TestLocker_AcquireFailsWithoutServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer client.Close()

	release, err := NewLocker(client).Acquire(context.Background(), "sweep", time.Second)
	if err == nil || release != nil {
		t.Fatal("expected acquire error when redis is unreachable")
	}
	if err == ErrNotAcquired {
		t.Error("connection errors must not be reported as contention")
	}
}
