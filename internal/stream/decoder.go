// Package stream reads the generator's server-sent event stream and turns it
// into live preview text and a final repaired diagram document.
package stream

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Frame is one server-sent event: an optional event name and its data lines
// joined by newlines.
type Frame struct {
	Event string
	Data  string
}

// DoneMarker is the sentinel payload some providers send after the last
// frame. It carries no data.
const DoneMarker = "[DONE]"

// Decoder splits an event stream into frames as bytes arrive.
type Decoder struct {
	r       *bufio.Reader
	eof     bool
	data    strings.Builder
	hasData bool
	cur     Frame
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the next non-empty frame. It returns io.EOF once the stream
// is exhausted; a frame left open at end of stream is still delivered.
//
// Data values keep their whitespace except the single space after "data:",
// since providers that stream bare text put word breaks at chunk edges.
func (d *Decoder) Next() (Frame, error) {
	for !d.eof {
		line, err := d.r.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return Frame{}, fmt.Errorf("read stream: %w", err)
			}
			d.eof = true
		}
		line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
		if line == "" && d.eof {
			break
		}

		field := strings.TrimLeft(line, " \t")
		switch {
		case strings.TrimSpace(field) == "":
			if f, ok := d.flush(); ok {
				return f, nil
			}
		case strings.HasPrefix(field, "event:"):
			d.cur.Event = strings.TrimSpace(strings.TrimPrefix(field, "event:"))
		case strings.HasPrefix(field, "data:"):
			value := strings.TrimPrefix(field, "data:")
			d.appendData(strings.TrimPrefix(value, " "))
		case strings.HasPrefix(field, ":"):
			// keep-alive
		case strings.HasPrefix(field, "id:"), strings.HasPrefix(field, "retry:"):
		default:
			// bare payload without a field prefix
			d.appendData(line)
		}
	}
	if f, ok := d.flush(); ok {
		return f, nil
	}
	return Frame{}, io.EOF
}

func (d *Decoder) appendData(s string) {
	if d.hasData {
		d.data.WriteByte('\n')
	}
	d.data.WriteString(s)
	d.hasData = true
}

func (d *Decoder) flush() (Frame, bool) {
	defer func() {
		d.cur = Frame{}
		d.data.Reset()
		d.hasData = false
	}()
	if !d.hasData {
		return Frame{}, false
	}
	f := d.cur
	f.Data = d.data.String()
	if f.Data == "" || strings.TrimSpace(f.Data) == DoneMarker {
		return Frame{}, false
	}
	return f, true
}
