package protocol

import (
	"bytes"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

// Format tells how an inbound payload was rendered.
type Format int

const (
	FormatParsed Format = iota
	FormatRaw
)

func (f Format) String() string {
	if f == FormatRaw {
		return "raw"
	}
	return "parsed"
}

// Width 0 puts every array element on its own line.
var prettyOptions = &pretty.Options{Width: 0, Prefix: "", Indent: "  ", SortKeys: false}

// DecodeError records a payload that was not well-formed JSON.
type DecodeError struct {
	Payload string
}

func (e *DecodeError) Error() string {
	return "payload is not valid JSON"
}

// Decoded is the result of Decode. When Format is FormatRaw, Text is the
// original payload unmodified and Err holds the *DecodeError.
type Decoded struct {
	Format Format
	Text   string
	Err    error
}

// Raw reports whether the payload fell back to raw display.
func (d Decoded) Raw() bool {
	return d.Format == FormatRaw
}

// Decode renders an inbound "new-message" payload. Well-formed JSON is
// pretty-printed with a two-space indent, one element per line and keys
// kept in input order (number literals are kept as written);
// anything else is returned as-is in raw form. Decode never fails.
func Decode(payload string) Decoded {
	if !gjson.Valid(payload) {
		return Decoded{Format: FormatRaw, Text: payload, Err: &DecodeError{Payload: payload}}
	}
	out := pretty.PrettyOptions([]byte(payload), prettyOptions)
	return Decoded{Format: FormatParsed, Text: string(bytes.TrimRight(out, "\n"))}
}
