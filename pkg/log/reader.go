package log

import (
	"errors"
	"io"
	"iter"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Filter selects events. Zero fields match everything; call criteria
// (Operation, Property) never match non-call events.
type Filter struct {
	SessionID string
	Direction *Direction
	Category  *Category
	Operation *Operation
	Property  string

	// TimeStart is inclusive, TimeEnd exclusive.
	TimeStart *time.Time
	TimeEnd   *time.Time
}

// Match reports whether e satisfies every set criterion.
func (f Filter) Match(e Event) bool {
	switch {
	case f.SessionID != "" && e.SessionID != f.SessionID:
		return false
	case f.Direction != nil && e.Direction != *f.Direction:
		return false
	case f.Category != nil && e.Category != *f.Category:
		return false
	case f.TimeStart != nil && e.Timestamp.Before(*f.TimeStart):
		return false
	case f.TimeEnd != nil && !e.Timestamp.Before(*f.TimeEnd):
		return false
	}

	if f.Operation == nil && f.Property == "" {
		return true
	}
	if e.Call == nil {
		return false
	}
	if f.Operation != nil && e.Call.Operation != *f.Operation {
		return false
	}
	return f.Property == "" || e.Call.Property == f.Property
}

// Reader streams the events of a capture. A capture rotated by FileLogger
// is read oldest first: <path>.1, then <path>.
type Reader struct {
	files  []*os.File
	dec    *cbor.Decoder
	filter Filter
}

// NewReader opens a capture for reading every event.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader opens a capture for reading the events filter matches.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	current, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	r := &Reader{filter: filter}
	if rotated, err := os.Open(path + rotatedSuffix); err == nil {
		r.files = append(r.files, rotated)
	}
	r.files = append(r.files, current)

	sources := make([]io.Reader, len(r.files))
	for i, f := range r.files {
		sources[i] = f
	}
	r.dec = NewDecoder(io.MultiReader(sources...))
	return r, nil
}

// Next returns the next matching event, or io.EOF at the end of the
// capture. A final record cut short by a killed writer also ends the
// capture.
func (r *Reader) Next() (Event, error) {
	for {
		var e Event
		err := r.dec.Decode(&e)
		switch {
		case errors.Is(err, io.ErrUnexpectedEOF):
			return Event{}, io.EOF
		case err != nil:
			return Event{}, err
		}
		if r.filter.Match(e) {
			return e, nil
		}
	}
}

// Events yields the remaining matching events. Iteration ends at the end of
// the capture or after the first read error.
func (r *Reader) Events() iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for {
			e, err := r.Next()
			if err == io.EOF {
				return
			}
			if !yield(e, err) || err != nil {
				return
			}
		}
	}
}

// Close closes the capture files.
func (r *Reader) Close() error {
	var errs []error
	for _, f := range r.files {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
