package blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestMemoryRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	info, err := m.Put(ctx, "acct-1", "invoice.pdf", "application/pdf", strings.NewReader("pdf bytes"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(info.ID, "blb-") {
		t.Fatalf("expected blb- prefix, got %s", info.ID)
	}
	if info.Size != int64(len("pdf bytes")) {
		t.Fatalf("expected size %d, got %d", len("pdf bytes"), info.Size)
	}

	got, rc, err := m.Get(ctx, "acct-1", info.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rc.Close()
	if got.Name != "invoice.pdf" || got.ContentType != "application/pdf" {
		t.Fatalf("unexpected info: %+v", got)
	}
	data, _ := io.ReadAll(rc)
	if string(data) != "pdf bytes" {
		t.Fatalf("unexpected contents %q", data)
	}
}

func TestMemoryTenantIsolation(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	info, err := m.Put(ctx, "acct-1", "doc.txt", "", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := m.Get(ctx, "acct-2", info.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found across accounts, got %v", err)
	}
	if err := m.Delete(ctx, "acct-2", info.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found delete across accounts, got %v", err)
	}
}

func TestMemoryDelete(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	info, err := m.Put(ctx, "acct-1", "doc.txt", "", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Delete(ctx, "acct-1", info.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := m.Get(ctx, "acct-1", info.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}
