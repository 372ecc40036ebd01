package workflow

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestRunShell_CapturesOutput(t *testing.T) {
	out, exitCode, truncated, err := runShell(context.Background(), "echo hello", t.TempDir())
	if err != nil {
		t.Fatalf("runShell: %v", err)
	}
	if exitCode != 0 {
		t.Errorf("exitCode = %d, want 0", exitCode)
	}
	if truncated {
		t.Error("truncated = true, want false")
	}
	if !strings.Contains(out, "hello") {
		t.Errorf("output = %q, want to contain hello", out)
	}
}

func TestRunShell_NonZeroExit(t *testing.T) {
	_, exitCode, _, err := runShell(context.Background(), "exit 3", t.TempDir())
	if err != nil {
		t.Fatalf("runShell: %v", err)
	}
	if exitCode != 3 {
		t.Errorf("exitCode = %d, want 3", exitCode)
	}
}

func TestRunShell_Timeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, _, err := runShell(ctx, "sleep 5", t.TempDir())
	if err == nil {
		t.Fatal("expected a deadline-exceeded error")
	}
}

func TestLimitedBuffer_Truncates(t *testing.T) {
	buf := &limitedBuffer{limit: 8}
	_, _ = buf.Write([]byte("0123456789"))
	if buf.buf.String() != "01234567" {
		t.Errorf("buf = %q, want 01234567", buf.buf.String())
	}
	if !buf.truncated() {
		t.Error("truncated() = false, want true")
	}
}

func TestLimitedBuffer_NotTruncatedUnderLimit(t *testing.T) {
	buf := &limitedBuffer{limit: 64}
	_, _ = buf.Write([]byte("short"))
	if buf.truncated() {
		t.Error("truncated() = true, want false")
	}
	if buf.buf.String() != "short" {
		t.Errorf("buf = %q, want short", buf.buf.String())
	}
}
