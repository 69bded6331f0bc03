package diag

import (
	"fmt"
	"io"
	"os"
)

// Shower wraps the Show method.
type Shower interface {
	// Show takes an indentation string and shows.
	Show(indent string) string
}

// Can be changed for testing.
var stderr io.Writer = os.Stderr

// ShowError shows an error to stderr. It uses the Show method if the error
// implements Shower, and prints the message in red otherwise.
func ShowError(err error) {
	if shower, ok := err.(Shower); ok {
		fmt.Fprintln(stderr, shower.Show(""))
	} else {
		fmt.Fprintf(stderr, "\033[31;1m%s\033[m\n", err.Error())
	}
}
