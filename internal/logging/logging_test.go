package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestSetupJSON(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	logger, err := Setup(Config{Level: "warn", JSON: true}, &buf)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	logger.Info().Msg("hidden")
	logger.Warn().Str("module", "session").Msg("shown")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected one json line, got %q: %v", buf.String(), err)
	}
	if entry["message"] != "shown" || entry["module"] != "session" || entry["level"] != "warn" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestSetupRejectsUnknownLevel(t *testing.T) {
	if _, err := Setup(Config{Level: "loud"}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error")
	}
}
