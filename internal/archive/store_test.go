package archive

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func putString(t *testing.T, store Store, key, body string) Info {
	t.Helper()
	info, err := store.Put(context.Background(), key, strings.NewReader(body), PutOptions{
		ContentType: "text/plain",
		Metadata:    map[string]string{"origin": "test"},
	})
	if err != nil {
		t.Fatalf("put %s: %v", key, err)
	}
	return info
}

func readBody(t *testing.T, store Store, key string) string {
	t.Helper()
	_, rc, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get %s: %v", key, err)
	}
	defer func() { _ = rc.Close() }()
	b, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read %s: %v", key, err)
	}
	return string(b)
}

func runStoreContract(t *testing.T, store Store) {
	ctx := context.Background()

	info := putString(t, store, "sample-sets/s1/revision-00000.json", "rev0")
	if info.Size != 4 || info.ContentType != "text/plain" {
		t.Fatalf("unexpected put info: %+v", info)
	}
	if got := readBody(t, store, "sample-sets/s1/revision-00000.json"); got != "rev0" {
		t.Fatalf("unexpected body %q", got)
	}

	// Objects are immutable: a second put on the key fails.
	if _, err := store.Put(ctx, "sample-sets/s1/revision-00000.json", strings.NewReader("x"), PutOptions{}); err == nil {
		t.Fatal("expected duplicate put to fail")
	}

	head, err := store.Head(ctx, "sample-sets/s1/revision-00000.json")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if head.Metadata["origin"] != "test" {
		t.Fatalf("expected metadata to round-trip, got %+v", head.Metadata)
	}

	putString(t, store, "sample-sets/s1/revision-00001.json", "rev1")
	putString(t, store, "sample-sets/s2/revision-00000.json", "other")

	infos, err := store.List(ctx, "sample-sets/s1/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 objects under s1, got %d", len(infos))
	}
	if infos[0].Key >= infos[1].Key {
		t.Fatalf("expected sorted keys, got %s then %s", infos[0].Key, infos[1].Key)
	}

	existed, err := store.Delete(ctx, "sample-sets/s2/revision-00000.json")
	if err != nil || !existed {
		t.Fatalf("delete: existed=%v err=%v", existed, err)
	}
	existed, err = store.Delete(ctx, "sample-sets/s2/revision-00000.json")
	if err != nil || existed {
		t.Fatalf("second delete must be a no-op: existed=%v err=%v", existed, err)
	}
	if _, err := store.Head(ctx, "sample-sets/s2/revision-00000.json"); err == nil {
		t.Fatal("expected head of deleted object to fail")
	}
}

func TestMemoryStoreContract(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestFilesystemStoreContract(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	runStoreContract(t, store)
}

func TestMemoryStorePresignUnsupported(t *testing.T) {
	_, err := NewMemoryStore().PresignURL(context.Background(), "k", SignedURLOptions{})
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestFilesystemStoreRejectsTraversal(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for _, key := range []string{"", "../escape", "/absolute", "a/../../b"} {
		if _, err := store.Put(context.Background(), key, strings.NewReader("x"), PutOptions{}); err == nil {
			t.Fatalf("expected key %q to be rejected", key)
		}
	}
}

func TestFilesystemStorePresign(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	url, err := store.PresignURL(context.Background(), "k.json", SignedURLOptions{})
	if err != nil || !strings.HasPrefix(url, "file://") {
		t.Fatalf("expected local url, got %q err=%v", url, err)
	}
	if _, err := store.PresignURL(context.Background(), "k.json", SignedURLOptions{Method: "PUT"}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported for PUT, got %v", err)
	}
}

func TestOpenSelectsDriver(t *testing.T) {
	t.Setenv("SAMPLECORE_ARCHIVE_DRIVER", "memory")
	store, err := Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if store.Driver() != DriverMemory {
		t.Fatalf("expected memory driver, got %s", store.Driver())
	}

	t.Setenv("SAMPLECORE_ARCHIVE_DRIVER", "fs")
	t.Setenv("SAMPLECORE_ARCHIVE_FS_ROOT", t.TempDir())
	store, err = Open(context.Background())
	if err != nil {
		t.Fatalf("open fs: %v", err)
	}
	if store.Driver() != DriverFilesystem {
		t.Fatalf("expected fs driver, got %s", store.Driver())
	}

	t.Setenv("SAMPLECORE_ARCHIVE_DRIVER", "tape")
	if _, err := Open(context.Background()); err == nil {
		t.Fatal("expected unknown driver error")
	}
}
