package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"drawgen/internal/repair"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// ErrStreamError is returned when the server sends an error event.
var ErrStreamError = errors.New("generation stream error")

// Event names understood by Consume.
const (
	EventChunk    = "chunk"
	EventDone     = "done"
	EventPlan     = "plan"
	EventProgress = "progress"
	EventError    = "error"
)

// Progress is the payload of a progress event.
type Progress struct {
	Stage    string  `json:"stage"`
	Message  string  `json:"message"`
	Progress float64 `json:"progress"`
}

// Handler receives stream updates. Nil callbacks are skipped.
type Handler struct {
	// OnText gets the cleaned buffer after every chunk.
	OnText func(live string)
	// OnPlan gets the raw JSON of a plan event.
	OnPlan     func(raw string)
	OnProgress func(p Progress)
}

// Session accumulates chunk text for one generation. It is owned by a single
// consumer.
type Session struct {
	buf      strings.Builder
	finished bool
	result   repair.Result
}

// NewSession starts an empty session.
func NewSession() *Session {
	return &Session{}
}

// Append adds a chunk and returns the live preview text.
func (s *Session) Append(chunk string) string {
	s.buf.WriteString(chunk)
	return s.Live()
}

// Live returns the lightly cleaned buffer. It may not be valid JSON.
func (s *Session) Live() string {
	return repair.LiteClean(s.buf.String())
}

// Buffer returns the raw accumulated text.
func (s *Session) Buffer() string {
	return s.buf.String()
}

// Finished reports whether Finish or Close has produced a result.
func (s *Session) Finished() bool {
	return s.finished
}

// Finish repairs the final document sent with the done event. An empty code
// falls back to the accumulated buffer.
func (s *Session) Finish(code string) repair.Result {
	if s.finished {
		return s.result
	}
	if strings.TrimSpace(code) == "" {
		code = s.buf.String()
	}
	s.result = repair.FullRepair(code)
	s.finished = true
	return s.result
}

// Close repairs the accumulated buffer once if the stream ended without a
// done event. Later calls return the same result.
func (s *Session) Close() repair.Result {
	return s.Finish("")
}

// Consume reads frames from r until a done event, an error event, the end of
// the stream, or cancellation of ctx, which is checked between frames. The
// returned result is always usable: when the stream stops early the buffer
// collected so far is repaired.
func Consume(ctx context.Context, r io.Reader, h Handler) (repair.Result, error) {
	s := NewSession()
	dec := NewDecoder(r)

	for {
		select {
		case <-ctx.Done():
			log.Debug("stream: cancelled, repairing partial buffer")
			return s.Close(), ctx.Err()
		default:
		}

		frame, err := dec.Next()
		if errors.Is(err, io.EOF) {
			if !s.Finished() {
				log.WithField("bytes", s.buf.Len()).Warn("stream: ended without done event")
			}
			return s.Close(), nil
		}
		if err != nil {
			return s.Close(), err
		}

		switch eventName(frame) {
		case EventChunk:
			live := s.Append(chunkText(frame.Data))
			if h.OnText != nil {
				h.OnText(live)
			}
		case EventDone:
			return s.Finish(gjson.Get(frame.Data, "code").String()), nil
		case EventPlan:
			if h.OnPlan != nil {
				h.OnPlan(frame.Data)
			}
		case EventProgress:
			if h.OnProgress != nil {
				h.OnProgress(Progress{
					Stage:    gjson.Get(frame.Data, "stage").String(),
					Message:  gjson.Get(frame.Data, "message").String(),
					Progress: gjson.Get(frame.Data, "progress").Float(),
				})
			}
		case EventError:
			msg := gjson.Get(frame.Data, "error").String()
			if msg == "" {
				msg = frame.Data
			}
			return s.Close(), fmt.Errorf("%w: %s", ErrStreamError, msg)
		default:
			log.WithField("event", frame.Event).Debug("stream: ignoring unknown event")
		}
	}
}

// eventName returns the frame's event. Unnamed frames may carry the event in
// a "type" field; anything else is chunk content.
func eventName(f Frame) string {
	if f.Event != "" {
		return f.Event
	}
	if isObject(f.Data) {
		switch t := gjson.Get(f.Data, "type").String(); t {
		case EventChunk, EventDone, EventPlan, EventProgress, EventError:
			return t
		}
	}
	return EventChunk
}

// chunkText reads the content field, or takes the payload verbatim from
// providers that stream bare text.
func chunkText(data string) string {
	if isObject(data) {
		return gjson.Get(data, "content").String()
	}
	return data
}

func isObject(data string) bool {
	return gjson.Valid(data) && gjson.Parse(data).IsObject()
}
