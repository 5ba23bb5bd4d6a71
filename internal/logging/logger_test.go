package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewSelectsHandlerByEnv(t *testing.T) {
	var buf bytes.Buffer
	newWithWriter(&buf, "info", "production").Info("hello", "k", "v")
	if !strings.Contains(buf.String(), `"msg":"hello"`) {
		t.Fatalf("expected JSON output, got %q", buf.String())
	}

	buf.Reset()
	newWithWriter(&buf, "info", "development").Info("hello", "k", "v")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Fatalf("expected text output, got %q", buf.String())
	}
}

func TestNewInvalidLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithWriter(&buf, "verbose", "production")
	logger.Debug("hidden")
	logger.Info("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("expected info level, got %q", buf.String())
	}
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	Component(newWithWriter(&buf, "info", "prod"), "flow").Info("x")
	if !strings.Contains(buf.String(), `"component":"flow"`) {
		t.Fatalf("missing component attribute: %q", buf.String())
	}
}
