package buildinfo

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func setBuild(t *testing.T, version, commit, date string) {
	t.Helper()
	origVersion, origCommit, origDate := Version, Commit, Date
	t.Cleanup(func() {
		Version, Commit, Date = origVersion, origCommit, origDate
	})
	Version, Commit, Date = version, commit, date
}

func TestInfoAndFields(t *testing.T) {
	setBuild(t, "1.2.3", "abc123", "2026-01-02")
	if got := Info(); got != "version=1.2.3 commit=abc123 date=2026-01-02" {
		t.Fatalf("unexpected info: %s", got)
	}
	fields := Fields()
	if fields["version"] != "1.2.3" || fields["commit"] != "abc123" || fields["go"] == "" {
		t.Fatalf("unexpected fields: %v", fields)
	}
}

func TestLog(t *testing.T) {
	setBuild(t, "1.2.3", "abc123", "2026-01-02")
	var buf bytes.Buffer
	origOutput, origFlags := log.Writer(), log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(origOutput)
		log.SetFlags(origFlags)
	})

	Log("playground-api")
	got := buf.String()
	if !strings.Contains(got, "PLAYGROUND-API") || !strings.Contains(got, "version=1.2.3") {
		t.Fatalf("unexpected log output: %s", got)
	}
}
