package realtime

import (
	"bufio"
	"io"
	"strings"
)

// Frame is a single server-sent event parsed off the stream.
type Frame struct {
	// Type is the value of the "event:" field, empty for the default type.
	Type string

	// Data is the payload, multiple "data:" lines joined with newlines.
	Data string

	// Comment is true for heartbeat comment lines (": ..."). Comment frames
	// carry no data but still count as stream activity.
	Comment bool
}

// Scanner reads server-sent events from a stream. Unlike a strict SSE
// parser it surfaces comment lines as frames, because the sync stream
// uses comments as heartbeats and the channel resets its liveness timer
// on every frame.
type Scanner struct {
	reader  *bufio.Reader
	current Frame
	err     error
}

func NewScanner(r io.Reader) *Scanner {
	return &Scanner{reader: bufio.NewReaderSize(r, 64*1024)}
}

// Next advances to the next frame. Returns false at EOF or on error;
// call Err to tell the two apart.
func (s *Scanner) Next() bool {
	s.current = Frame{}

	var dataLines []string
	var eventType string
	hasData := false

	for {
		line, err := s.reader.ReadString('\n')

		if err != nil && line == "" {
			if err == io.EOF {
				if hasData {
					s.current = Frame{Type: eventType, Data: strings.Join(dataLines, "\n")}
					s.err = io.EOF
					return true
				}
				return false
			}
			s.err = err
			return false
		}

		line = strings.TrimRight(line, "\r\n")

		// Blank line ends an event.
		if line == "" {
			if hasData {
				s.current = Frame{Type: eventType, Data: strings.Join(dataLines, "\n")}
				return true
			}
			eventType = ""
			continue
		}

		// Heartbeat comments surface immediately.
		if strings.HasPrefix(line, ":") {
			s.current = Frame{Comment: true}
			return true
		}

		field, value, hasColon := strings.Cut(line, ":")
		if !hasColon {
			field = line
			value = ""
		} else {
			value = strings.TrimPrefix(value, " ")
		}

		switch field {
		case "data":
			dataLines = append(dataLines, value)
			hasData = true
		case "event":
			eventType = value
		default:
			// id, retry, and unknown fields are ignored.
		}
	}
}

// Frame returns the most recently parsed frame, valid after Next returns true.
func (s *Scanner) Frame() Frame {
	return s.current
}

// Err returns the first scan error; a clean EOF is not an error.
func (s *Scanner) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}
