package httpx

import (
	"testing"
	"time"
)

func TestSharedClientReturnsSameInstanceForSameTimeout(t *testing.T) {
	a := SharedClient(5 * time.Second)
	b := SharedClient(5 * time.Second)
	if a != b {
		t.Fatalf("expected SharedClient to cache clients per timeout")
	}
}

func TestSharedClientDistinctTimeoutsDistinctClients(t *testing.T) {
	a := SharedClient(5 * time.Second)
	b := SharedClient(10 * time.Second)
	if a == b {
		t.Fatalf("expected distinct timeouts to produce distinct clients")
	}
	if a.Timeout != 5*time.Second || b.Timeout != 10*time.Second {
		t.Fatalf("unexpected client timeouts: %v %v", a.Timeout, b.Timeout)
	}
}

func TestSharedClientDefaultsNonPositiveTimeout(t *testing.T) {
	c := SharedClient(0)
	if c.Timeout != 30*time.Second {
		t.Fatalf("expected default 30s timeout, got %v", c.Timeout)
	}
}

func TestSharedClientsShareTransport(t *testing.T) {
	a := SharedClient(1 * time.Second)
	b := SharedClient(2 * time.Second)
	if a.Transport != b.Transport {
		t.Fatalf("expected clients to share the pooled transport")
	}
}
