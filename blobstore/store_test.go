package blobstore

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"sales-portal/domain"
)

func TestKeyRoundTrip(t *testing.T) {
	key := Key("customers", "leads/q1 #2?.csv")
	if strings.Count(key, "/") != 1 {
		t.Fatalf("id must be escaped, got %q", key)
	}
	if !strings.HasPrefix(key, Prefix("customers")) || !strings.HasSuffix(key, ".json") {
		t.Fatalf("unexpected key layout %q", key)
	}
	id, ok := ID(key)
	if !ok || id != "leads/q1 #2?.csv" {
		t.Fatalf("unexpected id %q ok=%v", id, ok)
	}
	if _, ok := ID("no-collection.json"); ok {
		t.Fatal("expected key without collection to be rejected")
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, err := m.Get(ctx, "tasks/a.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if !errors.Is(ErrNotFound, domain.ErrNotFound) {
		t.Fatal("blob not found must match the domain sentinel")
	}

	for _, k := range []string{"tasks/b.json", "tasks/a.json", "users/x.json"} {
		if err := m.Put(ctx, k, []byte(`{}`)); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	keys, err := m.List(ctx, "tasks/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !reflect.DeepEqual(keys, []string{"tasks/a.json", "tasks/b.json"}) {
		t.Fatalf("unexpected keys %v", keys)
	}

	if err := m.Delete(ctx, "tasks/a.json"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := m.Delete(ctx, "tasks/a.json"); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	in := domain.Representative{Name: "Ann", Email: "ann@x.com"}
	if err := PutJSON(ctx, m, Key("users", in.Email), in); err != nil {
		t.Fatalf("put json: %v", err)
	}
	var out domain.Representative
	if err := GetJSON(ctx, m, Key("users", in.Email), &out); err != nil {
		t.Fatalf("get json: %v", err)
	}
	if out != in {
		t.Fatalf("unexpected round trip %+v", out)
	}

	_ = m.Put(ctx, "users/bad.json", []byte("{"))
	if err := GetJSON(ctx, m, "users/bad.json", &out); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestUpstreamWrapsBackendErrors(t *testing.T) {
	err := upstream("get", "tasks/a.json", errors.New("boom"))
	if !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if upstream("get", "k", ErrNotFound) != ErrNotFound {
		t.Fatal("not found must pass through unchanged")
	}
}
