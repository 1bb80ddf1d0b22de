package client

import (
	"bufio"
	"io"
	"strings"
)

// Frame is one dispatched server-sent event.
type Frame struct {
	Event string
	Data  string
	ID    string
}

// Reader splits an event stream into frames. Comment lines, including heartbeats,
// are dropped.
type Reader struct {
	sc *bufio.Scanner
}

const maxFrameBytes = 1 << 20

func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxFrameBytes)
	return &Reader{sc: sc}
}

// Next returns the next frame, or io.EOF once the stream ended cleanly between frames.
// A stream cut inside a frame yields io.ErrUnexpectedEOF.
func (r *Reader) Next() (Frame, error) {
	var (
		f       Frame
		data    []string
		pending bool
	)
	for r.sc.Scan() {
		line := strings.TrimSuffix(r.sc.Text(), "\r")
		if line == "" {
			if !pending {
				continue
			}
			f.Data = strings.Join(data, "\n")
			return f, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			f.Event = value
		case "data":
			data = append(data, value)
		case "id":
			f.ID = value
		default:
			continue
		}
		pending = true
	}
	if err := r.sc.Err(); err != nil {
		return Frame{}, err
	}
	if pending {
		return Frame{}, io.ErrUnexpectedEOF
	}
	return Frame{}, io.EOF
}
