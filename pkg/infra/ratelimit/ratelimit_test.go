package ratelimit

import "testing"

func TestAllowWithinCapacity(t *testing.T) {
	l := New(1.0, 3)

	for i := 0; i < 3; i++ {
		ok, err := l.Allow("dev-1")
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatalf("request %d should be allowed", i)
		}
	}

	ok, err := l.Allow("dev-1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("request over capacity should be denied")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := New(1.0, 1)

	if ok, _ := l.Allow("dev-1"); !ok {
		t.Fatal("first key should be allowed")
	}
	if ok, _ := l.Allow("dev-2"); !ok {
		t.Error("second key has its own bucket")
	}
	if ok, _ := l.Allow("dev-1"); ok {
		t.Error("first key should now be exhausted")
	}
}

func TestEmptyKeyRejected(t *testing.T) {
	l := New(1.0, 1)
	if _, err := l.Allow(""); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestReset(t *testing.T) {
	l := New(1.0, 1)
	if ok, _ := l.Allow("dev-1"); !ok {
		t.Fatal("initial request should pass")
	}
	if ok, _ := l.Allow("dev-1"); ok {
		t.Fatal("bucket should be empty")
	}
	l.Reset("dev-1")
	if ok, _ := l.Allow("dev-1"); !ok {
		t.Error("reset should restore the bucket")
	}
}

func TestPerMinuteDefaults(t *testing.T) {
	l := PerMinute(0)
	if ok, _ := l.Allow("k"); !ok {
		t.Error("degenerate limiter should still allow one request")
	}
}
