package ratelimit

import (
	"testing"
	"time"
)

func TestAllowUnderLimit(t *testing.T) {
	l := New(3, time.Minute)
	for i := 0; i < 3; i++ {
		ok, _ := l.Allow("tenant-a")
		if !ok {
			t.Fatalf("request %d should be allowed", i)
		}
	}
}

func TestAllowOverLimit(t *testing.T) {
	l := New(2, time.Minute)
	l.Allow("tenant-a")
	l.Allow("tenant-a")
	ok, retryAfter := l.Allow("tenant-a")
	if ok {
		t.Fatal("third request should be rejected")
	}
	if retryAfter <= 0 {
		t.Errorf("expected positive retry-after, got %d", retryAfter)
	}
}

func TestAllowKeysAreIndependent(t *testing.T) {
	l := New(1, time.Minute)
	l.Allow("tenant-a")
	ok, _ := l.Allow("tenant-b")
	if !ok {
		t.Fatal("a different key should have its own window")
	}
}

func TestAllowWindowResets(t *testing.T) {
	l := New(1, 20*time.Millisecond)
	l.Allow("tenant-a")
	ok, _ := l.Allow("tenant-a")
	if ok {
		t.Fatal("second request within the window should be rejected")
	}
	time.Sleep(30 * time.Millisecond)
	ok, _ = l.Allow("tenant-a")
	if !ok {
		t.Fatal("request after window rollover should be allowed")
	}
}
