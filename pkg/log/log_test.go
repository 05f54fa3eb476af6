package log

import (
	"bytes"
	"strings"
	"testing"
)

func newTestLogger(t *testing.T, name string) (*Logger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	SetOutput(buf)
	return ForService(name), buf
}

func TestPrefixAndLevel(t *testing.T) {
	SetGlobalDebug(false)

	tests := []struct {
		name  string
		level string
		emit  func(l *Logger)
		msg   string
	}{
		{"info", LevelInfo, func(l *Logger) { l.Infof("loaded %d entries", 3) }, "loaded 3 entries"},
		{"warn", LevelWarn, func(l *Logger) { l.Warnf("slow provider") }, "slow provider"},
		{"error", LevelError, func(l *Logger) { l.Errorf("write failed: %s", "disk full") }, "write failed: disk full"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := "prefix_" + tt.name
			l, buf := newTestLogger(t, service)
			tt.emit(l)
			out := buf.String()

			if !strings.Contains(out, tt.level+" ["+service+">]") {
				t.Fatalf("expected %s [%s>] in output, got: %q", tt.level, service, out)
			}
			if !strings.Contains(out, tt.msg) {
				t.Fatalf("expected %q in output, got: %q", tt.msg, out)
			}
		})
	}
}

func TestForServiceMemoizes(t *testing.T) {
	if ForService("memo") != ForService("memo") {
		t.Fatal("expected the same logger instance for the same name")
	}
	if ForService("").Name() != "unknown" {
		t.Fatalf("expected empty name to map to unknown, got %q", ForService("").Name())
	}
}

func TestDebugPerService(t *testing.T) {
	SetGlobalDebug(false)

	const name = "debug_service_specific"
	DisableDebugFor(name)
	l, buf := newTestLogger(t, name)

	l.Debugf("should not appear")
	if strings.Contains(buf.String(), "should not appear") {
		t.Fatalf("debug message appeared while debug disabled")
	}

	EnableDebugFor(name)
	defer DisableDebugFor(name)
	l.Debugf("visible now")
	if !strings.Contains(buf.String(), "visible now") {
		t.Fatalf("expected debug message after enabling per-service debug; got: %q", buf.String())
	}

	other, _ := newTestLogger(t, "debug_other_service")
	other.Debugf("other hidden")
	if strings.Contains(buf.String(), "other hidden") {
		t.Fatalf("debug for one service leaked into another")
	}
}

func TestDebugGlobal(t *testing.T) {
	SetGlobalDebug(false)

	const name = "debug_service_global"
	DisableDebugFor(name)
	l, buf := newTestLogger(t, name)

	l.Debugf("hidden")
	if strings.Contains(buf.String(), "hidden") {
		t.Fatalf("debug message appeared while global debug disabled")
	}

	SetGlobalDebug(true)
	defer SetGlobalDebug(false)

	if !GlobalDebug() {
		t.Fatal("expected GlobalDebug to report true")
	}
	l.Debugf("global visible")
	if !strings.Contains(buf.String(), "global visible") {
		t.Fatalf("expected debug message after enabling global debug; got: %q", buf.String())
	}
}
