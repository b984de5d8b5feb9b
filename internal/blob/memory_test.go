package blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestMemoryStorePutGetHead(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	info, err := store.Put(ctx, "reports/a/summary.csv", strings.NewReader("payload"), PutOptions{
		ContentType: "text/csv",
		Metadata:    map[string]string{"tenant_id": "a"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != int64(len("payload")) || info.ContentType != "text/csv" {
		t.Fatalf("unexpected info: %+v", info)
	}

	if _, err := store.Put(ctx, "reports/a/summary.csv", strings.NewReader("again"), PutOptions{}); err == nil {
		t.Fatal("put must be create-only")
	}

	got, rc, err := store.Get(ctx, "reports/a/summary.csv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "payload" {
		t.Fatalf("content mismatch: %q", body)
	}
	if got.Metadata["tenant_id"] != "a" {
		t.Fatalf("metadata lost: %+v", got.Metadata)
	}

	head, err := store.Head(ctx, "reports/a/summary.csv")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if head.Size != info.Size {
		t.Fatalf("head mismatch: %+v", head)
	}
}

func TestMemoryStoreMissingKey(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	if _, _, err := store.Get(ctx, "missing"); err == nil {
		t.Fatal("expected get error for missing key")
	}
	if _, err := store.Head(ctx, "missing"); err == nil {
		t.Fatal("expected head error for missing key")
	}
	ok, err := store.Delete(ctx, "missing")
	if err != nil || ok {
		t.Fatalf("delete missing: ok=%v err=%v", ok, err)
	}
}

func TestMemoryStoreListPrefix(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	for _, key := range []string{"reports/a/1.csv", "reports/b/1.csv", "reports/a/2.csv"} {
		if _, err := store.Put(ctx, key, strings.NewReader("x"), PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	infos, err := store.List(ctx, "reports/a/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(infos))
	}
	if infos[0].Key > infos[1].Key {
		t.Fatalf("list not sorted: %+v", infos)
	}
}

func TestMemoryStorePresignUnsupported(t *testing.T) {
	store := NewMemory()
	if _, err := store.PresignURL(context.Background(), "k", SignedURLOptions{}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}
