package store

import (
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisStore(rdb, "test-session", ttl), mr
}

func TestRedisStoreBasics(t *testing.T) {
	s, _ := newRedisStore(t, time.Hour)

	if s.SessionID() != "test-session" {
		t.Fatalf("session id = %q", s.SessionID())
	}
	if _, ok := s.Get(KeyTheme); ok {
		t.Fatal("expected empty store")
	}
	if err := s.Set(KeyTheme, "light"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set(KeyTheme, "dark"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, _ := s.Get(KeyTheme); v != "dark" {
		t.Fatalf("expected whole-key replace, got %q", v)
	}
	_ = s.Set(KeyCurrentPage, "pages/day.html")
	if got := s.Keys(); !reflect.DeepEqual(got, []string{KeyCurrentPage, KeyTheme}) {
		t.Fatalf("unexpected keys %v", got)
	}

	if err := s.Remove(KeyTheme); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := s.Get(KeyTheme); ok {
		t.Fatal("removed key still present")
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if len(s.Keys()) != 0 {
		t.Fatal("clear left keys behind")
	}
}

func TestRedisStoreKeepsKeysWhileSessionIsActive(t *testing.T) {
	s, mr := newRedisStore(t, time.Hour)

	if err := s.Set(KeyTheme, "dark"); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		mr.FastForward(20 * time.Minute)
		if err := s.Set("outTemp", `{"name":"outTemp"}`); err != nil {
			t.Fatal(err)
		}
	}
	if v, ok := s.Get(KeyTheme); !ok || v != "dark" {
		t.Fatalf("theme lost after 80 minutes of activity: %q present=%v keys=%v", v, ok, s.Keys())
	}

	mr.FastForward(61 * time.Minute)
	if keys := s.Keys(); len(keys) != 0 {
		t.Fatalf("idle session not expired: %v", keys)
	}
}
