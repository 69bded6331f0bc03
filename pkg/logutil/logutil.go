// Package logutil configures the process-wide logger.
package logutil

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// Init initializes the default logger. With debug set, per-function lowering
// traces are emitted; otherwise only warnings and errors appear.
func Init(w io.Writer, debug bool) {
	log.SetDefault(log.NewWithOptions(w, log.Options{
		ReportTimestamp: false,
		Prefix:          "loomc",
	}))
	if debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.WarnLevel)
	}
	log.SetColorProfile(colorProfile(w))
}

// InitFile redirects logging to the named file, used when the process serves
// an editor over stdio and must keep stdout clean. An empty path discards
// logs.
func InitFile(path string, debug bool) error {
	if path == "" {
		Init(io.Discard, debug)
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	Init(f, debug)
	return nil
}

func colorProfile(w io.Writer) termenv.Profile {
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return termenv.ANSI256
	}
	return termenv.Ascii
}
