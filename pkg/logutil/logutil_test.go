package logutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestInitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")
	if err := InitFile(path, true); err != nil {
		t.Fatal(err)
	}
	log.Debug("hello from the test")
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "hello from the test") {
		t.Errorf("log file %q does not contain the message", b)
	}
}

func TestInitFileDiscards(t *testing.T) {
	if err := InitFile("", false); err != nil {
		t.Fatal(err)
	}
	// Nothing to assert beyond not crashing; debug is off.
	log.Debug("dropped")
}
