// Package sse reads a text/event-stream body into discrete events.
package sse

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

const maxLine = 1 << 20

// Event is one dispatched server-sent event. Name defaults to "message".
type Event struct {
	Name  string
	Data  string
	ID    string
	Retry int
}

type Reader struct {
	sc     *bufio.Scanner
	lastID string
}

func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxLine)
	return &Reader{sc: sc}
}

// Next returns the next complete event. It returns io.EOF when the stream
// ends; a trailing event without its blank line is discarded.
func (r *Reader) Next() (Event, error) {
	var (
		ev      Event
		data    strings.Builder
		hasData bool
	)

	for r.sc.Scan() {
		line := strings.TrimSuffix(r.sc.Text(), "\r")

		if line == "" {
			if !hasData {
				ev = Event{}
				continue
			}
			ev.Data = strings.TrimSuffix(data.String(), "\n")
			if ev.Name == "" {
				ev.Name = "message"
			}
			ev.ID = r.lastID
			return ev, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			ev.Name = value
		case "data":
			data.WriteString(value)
			data.WriteByte('\n')
			hasData = true
		case "id":
			if !strings.ContainsRune(value, 0) {
				r.lastID = value
			}
		case "retry":
			if n, err := strconv.Atoi(value); err == nil {
				ev.Retry = n
			}
		}
	}

	if err := r.sc.Err(); err != nil {
		return Event{}, err
	}
	return Event{}, io.EOF
}

// LastID is the most recent event id seen on the stream.
func (r *Reader) LastID() string {
	return r.lastID
}
