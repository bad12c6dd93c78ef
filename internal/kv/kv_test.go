package kv

import (
	"context"
	"errors"
	"sort"
	"testing"
)

// exerciseStore runs the shared contract against any Store implementation.
func exerciseStore(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()

	if err := st.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	for k, v := range map[string]string{
		"sop:a.pdf:0:text": "alpha",
		"sop:a.pdf:1:text": "beta",
		"sop*odd:0:text":   "glob",
		"deviation:x:0":    "other",
	} {
		if err := st.Set(ctx, k, []byte(v)); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}

	got, err := st.Get(ctx, "sop:a.pdf:1:text")
	if err != nil || string(got) != "beta" {
		t.Fatalf("get: %q %v", got, err)
	}
	if _, err := st.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	many, err := st.GetMany(ctx, []string{"sop:a.pdf:0:text", "missing", "deviation:x:0"})
	if err != nil {
		t.Fatalf("get many: %v", err)
	}
	if string(many[0]) != "alpha" || many[1] != nil || string(many[2]) != "other" {
		t.Fatalf("unexpected get many result: %q", many)
	}

	keys, err := st.Keys(ctx, "sop:")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "sop:a.pdf:0:text" || keys[1] != "sop:a.pdf:1:text" {
		t.Fatalf("prefix must be literal, got %v", keys)
	}

	n, err := st.DeletePrefix(ctx, "sop:")
	if err != nil || n != 2 {
		t.Fatalf("delete prefix: n=%d err=%v", n, err)
	}
	if keys, _ := st.Keys(ctx, "sop:"); len(keys) != 0 {
		t.Fatalf("expected namespace cleared, got %v", keys)
	}
	if _, err := st.Get(ctx, "deviation:x:0"); err != nil {
		t.Fatalf("other prefix must survive: %v", err)
	}
	if _, err := st.Get(ctx, "sop*odd:0:text"); err != nil {
		t.Fatalf("glob-looking key must survive: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	buf := []byte("abc")
	_ = st.Set(ctx, "k", buf)
	buf[0] = 'z'
	got, _ := st.Get(ctx, "k")
	if string(got) != "abc" {
		t.Fatalf("stored value was aliased: %q", got)
	}
	got[1] = 'z'
	again, _ := st.Get(ctx, "k")
	if string(again) != "abc" {
		t.Fatalf("returned value was aliased: %q", again)
	}
}

func TestStorageErrorUnwraps(t *testing.T) {
	base := errors.New("boom")
	err := storageErr("set", "k", base)
	var se *StorageError
	if !errors.As(err, &se) || se.Op != "set" || !errors.Is(err, base) {
		t.Fatalf("unexpected error shape: %#v", err)
	}
	if storageErr("set", "k", nil) != nil {
		t.Fatalf("nil error must stay nil")
	}
}

func TestEscapeHelpers(t *testing.T) {
	if got := escapeGlob("a*b?[c]"); got != `a\*b\?\[c\]` {
		t.Fatalf("escapeGlob: %s", got)
	}
	if got := likePrefix("sop_x%"); got != `sop\_x\%%` {
		t.Fatalf("likePrefix: %s", got)
	}
}
