package main

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/i474232898/weather-skin/internal/config"
	"github.com/i474232898/weather-skin/internal/store"
)

func TestNewLoggerSharesLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, levels, err := newLogger(&buf, "warn")
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "error", "boom")
	if out := buf.String(); strings.Contains(out, "hidden") || !strings.Contains(out, "level=WARN msg=shown error=boom") {
		t.Fatalf("unexpected output %q", out)
	}

	levels.Set(slog.LevelDebug)
	buf.Reset()
	logger.Debug("now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Fatalf("level change not applied: %q", buf.String())
	}

	if _, _, err := newLogger(&buf, "chatty"); err == nil {
		t.Fatal("expected invalid level error")
	}
}

func TestOpenStoreBackends(t *testing.T) {
	st, release, err := openStore(&config.AppConfig{SessionBackend: "memory"})
	if err != nil {
		t.Fatal(err)
	}
	release()
	if _, ok := st.(*store.MemoryStore); !ok {
		t.Fatalf("memory backend gave %T", st)
	}

	mr := miniredis.RunT(t)
	st, release, err = openStore(&config.AppConfig{SessionBackend: "redis", RedisAddr: mr.Addr(), SessionID: "s1"})
	if err != nil {
		t.Fatal(err)
	}
	defer release()
	if err := st.Set(store.KeyTheme, "dark"); err != nil {
		t.Fatal(err)
	}
	if !mr.Exists("jas:session:s1") {
		t.Fatalf("session hash missing, keys %v", mr.Keys())
	}

	mr.Close()
	if _, _, err := openStore(&config.AppConfig{SessionBackend: "redis", RedisAddr: mr.Addr()}); err == nil {
		t.Fatal("expected ping failure")
	}
}
