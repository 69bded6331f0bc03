package diag

import (
	"io"
	"testing"
)

func setCulpritMarkers(t *testing.T, begin, end string) {
	savedBegin, savedEnd := culpritBegin, culpritEnd
	culpritBegin, culpritEnd = begin, end
	t.Cleanup(func() { culpritBegin, culpritEnd = savedBegin, savedEnd })
}

func setStderr(t *testing.T, w io.Writer) {
	saved := stderr
	stderr = w
	t.Cleanup(func() { stderr = saved })
}
