package log

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingLogger struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingLogger) Log(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func callEvent(op Operation, prop string, status Status) Event {
	d := 150 * time.Microsecond
	return Event{
		Timestamp: time.Now(),
		SessionID: "session-1",
		Direction: DirectionIn,
		Category:  CategoryCall,
		Service:   "com.victronenergy.battery.virtual_batt1",
		Sender:    ":1.42",
		Call: &CallEvent{
			Operation:      op,
			Path:           "/" + prop,
			Property:       prop,
			Value:          42.5,
			Status:         status,
			ProcessingTime: &d,
		},
	}
}

func TestNoopLoggerDoesNotPanic(t *testing.T) {
	var logger NoopLogger
	logger.Log(Event{})
	logger.Log(callEvent(OpGetValue, "Soc", StatusOK))
	logger.Log(Event{Changes: &ChangesEvent{Paths: []string{"Soc"}}})
}

func TestEncodeDecodeEvent(t *testing.T) {
	in := callEvent(OpSetValue, "Soc", StatusOutOfRange)

	data, err := EncodeEvent(in)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	out, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}

	if !out.Timestamp.Equal(in.Timestamp) {
		t.Errorf("timestamp: got %v, want %v", out.Timestamp, in.Timestamp)
	}
	if out.Call == nil {
		t.Fatal("call payload lost")
	}
	if out.Call.Operation != OpSetValue || out.Call.Status != StatusOutOfRange {
		t.Errorf("unexpected call %+v", out.Call)
	}
	if out.Call.Value != 42.5 {
		t.Errorf("value: got %v (%T)", out.Call.Value, out.Call.Value)
	}
	if out.Call.ProcessingTime == nil || *out.Call.ProcessingTime != 150*time.Microsecond {
		t.Errorf("processing time: got %v", out.Call.ProcessingTime)
	}
}

func TestFileLoggerAndReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.vlog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	logger.Log(callEvent(OpGetValue, "Soc", StatusOK))
	logger.Log(callEvent(OpSetValue, "Soc", StatusOK))
	logger.Log(Event{Timestamp: time.Now(), Category: CategoryNotification, Changes: &ChangesEvent{Paths: []string{"Soc"}}})
	logger.Log(callEvent(OpGetText, "Capacity", StatusOK))

	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	// Ignored after close.
	logger.Log(callEvent(OpGetValue, "Soc", StatusOK))

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	count := 0
	for {
		_, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		count++
	}
	r.Close()
	if count != 4 {
		t.Errorf("expected 4 events, got %d", count)
	}

	op := OpSetValue
	r, err = NewFilteredReader(path, Filter{Operation: &op})
	if err != nil {
		t.Fatalf("NewFilteredReader failed: %v", err)
	}
	defer r.Close()
	e, err := r.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if e.Call.Operation != OpSetValue {
		t.Errorf("filter returned %s", e.Call.Operation)
	}
	if _, err := r.Next(); err != io.EOF {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestFilterProperty(t *testing.T) {
	f := Filter{Property: "Capacity"}
	if f.Match(callEvent(OpGetValue, "Soc", StatusOK)) {
		t.Error("matched wrong property")
	}
	if !f.Match(callEvent(OpGetValue, "Capacity", StatusOK)) {
		t.Error("did not match property")
	}
	if f.Match(Event{Changes: &ChangesEvent{}}) {
		t.Error("property filter matched a non-call event")
	}
}

func TestFileLoggerRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.vlog")

	logger, err := NewFileLogger(path, WithMaxBytes(256))
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	defer logger.Close()

	for i := 0; i < 20; i++ {
		logger.Log(callEvent(OpGetValue, "Soc", StatusOK))
	}

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Errorf("rotated file missing: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("active file missing: %v", err)
	}
	if info.Size() >= 256 {
		t.Errorf("active file not rotated, size %d", info.Size())
	}
}

func TestReaderRotatedCapture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.vlog")

	logger, err := NewFileLogger(path, WithMaxBytes(256))
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	const total = 10
	for i := 0; i < total; i++ {
		logger.Log(Event{Timestamp: time.Now(), SessionID: "s", Category: CategoryCall,
			Call: &CallEvent{Operation: OpGetValue, Property: "Soc", Value: float64(i + 1)}})
	}
	logger.Close()

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Fatalf("expected a rotated file: %v", err)
	}

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()

	// Rotation drops everything older than the previous file, so only the
	// order of what is left is checked.
	last := -1.0
	count := 0
	for e, err := range r.Events() {
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		v := e.Call.Value.(float64)
		if v <= last {
			t.Errorf("events out of order: %v after %v", v, last)
		}
		last = v
		count++
	}
	if count == 0 || last != total {
		t.Errorf("expected the newest events, got %d ending at %v", count, last)
	}
}

func TestReaderTruncatedRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.vlog")

	data, err := EncodeEvent(callEvent(OpGetValue, "Soc", StatusOK))
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	partial := append(append([]byte{}, data...), data[:len(data)/2]...)
	if err := os.WriteFile(path, partial, 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()

	if _, err := r.Next(); err != nil {
		t.Fatalf("first event: %v", err)
	}
	if _, err := r.Next(); err != io.EOF {
		t.Errorf("expected EOF for truncated record, got %v", err)
	}
}

func TestLoggerFunc(t *testing.T) {
	var got []Category
	var l Logger = LoggerFunc(func(e Event) { got = append(got, e.Category) })
	l.Log(Event{Category: CategoryState})
	l.Log(Event{Category: CategoryError})
	if len(got) != 2 || got[0] != CategoryState || got[1] != CategoryError {
		t.Errorf("unexpected events: %v", got)
	}
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	adapter := NewSlogAdapter(logger)

	adapter.Log(callEvent(OpSetValue, "Soc", StatusOutOfRange))
	adapter.Log(Event{StateChange: &StateChangeEvent{Entity: StateEntityName, NewState: "acquired"}})

	out := buf.String()
	for _, want := range []string{"operation=SetValue", "status=OUT_OF_RANGE", "property=Soc", "entity=NAME", "new_state=acquired"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestMultiLogger(t *testing.T) {
	a, b := &recordingLogger{}, &recordingLogger{}
	m := NewMultiLogger(a, nil, b)

	if m.Len() != 2 {
		t.Errorf("nil logger kept, len %d", m.Len())
	}

	m.Log(callEvent(OpGetValue, "Soc", StatusOK))
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Errorf("fan-out failed: %d, %d", len(a.events), len(b.events))
	}
}

func TestNewSessionID(t *testing.T) {
	a, b := NewSessionID(), NewSessionID()
	if a == b || len(a) != 36 {
		t.Errorf("unexpected session IDs %q, %q", a, b)
	}
}
