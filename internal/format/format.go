// Package format renders command output for machine consumption.
package format

import (
	"encoding/json"
	"io"
)

// A Formatter serializes one payload per call to a stream.
type Formatter interface {
	Write(w io.Writer, payload any) error
}

// JSONFormatter emits indented JSON so --json output stays readable when
// piped to a terminal as well as to jq.
type JSONFormatter struct{}

func (f JSONFormatter) Write(w io.Writer, payload any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}
