package app

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCrepoHandlerFormat(t *testing.T) {
	var b strings.Builder
	h := &crepoHandler{w: &b, opID: "20250310T091500Z"}

	r := slog.NewRecord(
		time.Date(2025, 3, 10, 9, 15, 0, 0, time.UTC),
		slog.LevelInfo, "object created", 0)
	r.AddAttrs(slog.String("bucket", "docs"), slog.Int("version", 3))

	if err := h.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	got := b.String()
	want := "2025-03-10T09:15:00Z\tINFO\t20250310T091500Z\tobject created\tbucket=docs\tversion=3\n"
	if got != want {
		t.Errorf("log line = %q, want %q", got, want)
	}
}

func TestCrepoHandlerWithAttrs(t *testing.T) {
	var b strings.Builder
	base := &crepoHandler{w: &b, opID: "op1"}
	l := slog.New(base).With("operation", "CreateBucket")

	l.Info("bucket created", "name", "docs")

	got := b.String()
	if !strings.Contains(got, "\toperation=CreateBucket\t") {
		t.Errorf("pre-set attr missing: %q", got)
	}
	if !strings.Contains(got, "\tname=docs\n") {
		t.Errorf("record attr missing: %q", got)
	}
	// Pre-set attrs come before per-record attrs.
	if strings.Index(got, "operation=") > strings.Index(got, "name=") {
		t.Errorf("attr order wrong: %q", got)
	}
}

func TestNewLoggerCreatesLogFile(t *testing.T) {
	dir := t.TempDir()
	logger, f, err := newLogger(dir, "op1")
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	defer f.Close()

	if logger == nil {
		t.Fatal("nil logger")
	}
	if f.Name() != filepath.Join(dir, "crepo.log") {
		t.Errorf("log file = %s", f.Name())
	}
}
