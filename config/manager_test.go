package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestManagerSetGetRoundTrip(t *testing.T) {
	m := NewManager()
	m.Set("log.level", "debug")
	v, ok := m.Get("log.level")
	if !ok || v != "debug" {
		t.Fatalf("Get = %v, %v; want debug, true", v, ok)
	}
}

func TestManagerTypedGettersApplyDefaults(t *testing.T) {
	m := NewManager()
	if got := m.GetString("missing", "fallback"); got != "fallback" {
		t.Fatalf("GetString = %q, want fallback", got)
	}
	if got := m.GetInt("missing", 7); got != 7 {
		t.Fatalf("GetInt = %d, want 7", got)
	}
	if got := m.GetBool("missing", true); !got {
		t.Fatal("GetBool = false, want true")
	}
	if got := m.GetDuration("missing", 5*time.Second); got != 5*time.Second {
		t.Fatalf("GetDuration = %v, want 5s", got)
	}
}

func TestManagerGetIntCoercesStoredTypes(t *testing.T) {
	m := NewManager()
	m.Set("a", int64(3))
	m.Set("b", float64(4))
	m.Set("c", "5")
	if m.GetInt("a") != 3 || m.GetInt("b") != 4 || m.GetInt("c") != 5 {
		t.Fatalf("a=%d b=%d c=%d", m.GetInt("a"), m.GetInt("b"), m.GetInt("c"))
	}
}

func TestManagerWatchNotifiesOnSet(t *testing.T) {
	m := NewManager()
	notified := make(chan interface{}, 1)
	m.Watch("key", func(key string, value interface{}) {
		notified <- value
	})
	m.Set("key", "value")
	select {
	case v := <-notified:
		if v != "value" {
			t.Fatalf("watcher got %v, want value", v)
		}
	case <-time.After(time.Second):
		t.Fatal("watcher was never called")
	}
}

func TestManagerDeleteAndClear(t *testing.T) {
	m := NewManager()
	m.Set("a", 1)
	m.Set("b", 2)
	m.Delete("a")
	if _, ok := m.Get("a"); ok {
		t.Fatal("Get(a) found a value after Delete")
	}
	if _, ok := m.Get("b"); !ok {
		t.Fatal("Delete removed an unrelated key")
	}
	m.Clear()
	if len(m.GetAll()) != 0 {
		t.Fatalf("GetAll() after Clear = %v, want empty", m.GetAll())
	}
}

func TestManagerLoadFromTOMLFlattensNestedTables(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "m.toml")
	contents := `
level = "warn"

[server]
port = 9090
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m := NewManager()
	if err := m.LoadFromTOML(path); err != nil {
		t.Fatalf("LoadFromTOML: %v", err)
	}
	if m.GetString("level") != "warn" {
		t.Fatalf("level = %q, want warn", m.GetString("level"))
	}
	if m.GetInt("server.port") != 9090 {
		t.Fatalf("server.port = %d, want 9090", m.GetInt("server.port"))
	}
}

func TestManagerSaveToTOMLThenLoadFromTOMLRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.toml")

	m := NewManager()
	m.Set("level", "debug")
	if err := m.SaveToTOML(path); err != nil {
		t.Fatalf("SaveToTOML: %v", err)
	}

	m2 := NewManager()
	if err := m2.LoadFromTOML(path); err != nil {
		t.Fatalf("LoadFromTOML: %v", err)
	}
	if m2.GetString("level") != "debug" {
		t.Fatalf("level = %q, want debug", m2.GetString("level"))
	}
}
