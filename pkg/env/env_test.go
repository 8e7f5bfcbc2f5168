package env

import "testing"

func TestGetFallsBack(t *testing.T) {
	t.Setenv(LogFormatKey, "")
	if got := Get(LogFormatKey, "json"); got != "json" {
		t.Fatalf("expected fallback, got %q", got)
	}
	t.Setenv(LogFormatKey, "console")
	if got := Get(LogFormatKey, "json"); got != "console" {
		t.Fatalf("expected console, got %q", got)
	}
}

func TestInstance(t *testing.T) {
	t.Setenv(instanceKey, "")
	if got := Instance(); got != "local" {
		t.Fatalf("expected local, got %q", got)
	}
	t.Setenv(instanceKey, "web.2")
	if got := Instance(); got != "web.2" {
		t.Fatalf("expected web.2, got %q", got)
	}
}
