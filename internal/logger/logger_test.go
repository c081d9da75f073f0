package logger

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestWithComponent(t *testing.T) {
	log := Logger()
	entry := log.WithComponent("tracker")
	if v, ok := entry.Entry.Data["component"]; !ok || v != "tracker" {
		t.Fatalf("component field missing: %v", entry.Entry.Data)
	}
	entry = entry.WithField("symbol", "PETRONET.NS")
	if entry.Entry.Data["component"] != "tracker" || entry.Entry.Data["symbol"] != "PETRONET.NS" {
		t.Fatalf("fields not chained: %v", entry.Entry.Data)
	}
}

func TestConfigureInvalidLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	if err := Logger().Configure("loud", "text", "stderr", 0); err == nil {
		t.Fatal("expected error for invalid level")
	}
}

func TestConfigureInvalidFormat(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	if err := Logger().Configure("info", "xml", "stderr", 0); err == nil {
		t.Fatal("expected error for invalid format")
	}
}

func TestConfigureEnvOverridesLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	log := Logger()
	if err := log.Configure("error", "json", "stdout", 0); err != nil {
		t.Fatal(err)
	}
	if log.GetLevel() != logrus.DebugLevel {
		t.Errorf("level = %s, want debug", log.GetLevel())
	}
}

func TestConfigureFileOutput(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	path := filepath.Join(t.TempDir(), "logs", "bot.log")
	log := Logger()
	if err := log.Configure("info", "json", path, 0); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	log.SetOutput(&buf)
	log.WithComponent("test").Info("hello")
	if !strings.Contains(buf.String(), `"message":"hello"`) {
		t.Errorf("json output missing message: %s", buf.String())
	}
}
