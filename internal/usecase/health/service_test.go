package health

import (
	"context"
	"errors"
	"testing"
)

type mockStorePinger struct {
	err error
}

func (m *mockStorePinger) Ping(context.Context) error { return m.err }

type mockEmbeddingChecker struct {
	err error
}

func (m *mockEmbeddingChecker) HealthCheck(context.Context) error { return m.err }

func TestCheck_AllHealthy(t *testing.T) {
	svc := New(&mockStorePinger{}, &mockEmbeddingChecker{})
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Fatalf("status = %q, want %q", r.Status, Healthy)
	}
	if r.Checks["vector_store"] != CheckOK || r.Checks["embedding"] != CheckOK {
		t.Fatalf("checks = %v, want all ok", r.Checks)
	}
}

func TestCheck_EmbeddingDown(t *testing.T) {
	svc := New(&mockStorePinger{}, &mockEmbeddingChecker{err: errors.New("502")})
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Fatalf("status = %q, want %q", r.Status, Degraded)
	}
	if r.Checks["vector_store"] != CheckOK {
		t.Fatalf("vector_store = %q, want ok", r.Checks["vector_store"])
	}
	if r.Checks["embedding"] != CheckError {
		t.Fatalf("embedding = %q, want error", r.Checks["embedding"])
	}
}

func TestCheck_EverythingDown(t *testing.T) {
	svc := New(
		&mockStorePinger{err: errors.New("refused")},
		&mockEmbeddingChecker{err: errors.New("502")},
	)
	r := svc.Check(context.Background())

	if r.Status != Unhealthy {
		t.Fatalf("status = %q, want %q", r.Status, Unhealthy)
	}
}

func TestCheck_WithoutEmbeddingChecker(t *testing.T) {
	svc := New(&mockStorePinger{}, nil)
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Fatalf("status = %q, want %q", r.Status, Healthy)
	}
	if _, ok := r.Checks["embedding"]; ok {
		t.Fatal("embedding check present without a checker")
	}
}

func TestCheck_StoreDownWithoutEmbeddingChecker(t *testing.T) {
	svc := New(&mockStorePinger{err: errors.New("refused")}, nil)
	r := svc.Check(context.Background())

	if r.Status != Unhealthy {
		t.Fatalf("status = %q, want %q", r.Status, Unhealthy)
	}
}
