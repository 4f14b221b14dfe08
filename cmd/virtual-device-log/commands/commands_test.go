package commands

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/victron-virtual/dbus-virtual-go/pkg/log"
)

const testSession = "5f0c8a2e-1b7d-4c3e-9a61-0d2f4b8e7c11"

var testTime = time.Date(2026, 3, 14, 9, 30, 0, 250000000, time.UTC)

func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.cbor")

	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()

	return path
}

// sampleEvents is a short device run: startup, a read, a rejected write,
// an accepted write and the resulting change batch.
func sampleEvents() []log.Event {
	dur := 150 * time.Microsecond
	service := "com.victronenergy.battery.virtual_dev1"
	return []log.Event{
		{
			Timestamp: testTime,
			SessionID: testSession,
			Direction: log.DirectionOut,
			Category:  log.CategoryState,
			Service:   service,
			StateChange: &log.StateChangeEvent{
				Entity:   log.StateEntityInstance,
				NewState: "100",
			},
		},
		{
			Timestamp: testTime.Add(time.Second),
			SessionID: testSession,
			Direction: log.DirectionIn,
			Category:  log.CategoryCall,
			Service:   service,
			Sender:    ":1.42",
			Call: &log.CallEvent{
				Operation:      log.OpGetValue,
				Path:           "/Dc/0/Voltage",
				Property:       "Dc/0/Voltage",
				Value:          12.5,
				Status:         log.StatusOK,
				ProcessingTime: &dur,
			},
		},
		{
			Timestamp: testTime.Add(2 * time.Second),
			SessionID: testSession,
			Direction: log.DirectionIn,
			Category:  log.CategoryCall,
			Service:   service,
			Sender:    ":1.42",
			Call: &log.CallEvent{
				Operation: log.OpSetValue,
				Path:      "/Soc",
				Property:  "Soc",
				Value:     150.0,
				Status:    log.StatusOutOfRange,
			},
		},
		{
			Timestamp: testTime.Add(3 * time.Second),
			SessionID: testSession,
			Direction: log.DirectionIn,
			Category:  log.CategoryCall,
			Service:   service,
			Sender:    ":1.42",
			Call: &log.CallEvent{
				Operation: log.OpSetValue,
				Path:      "/Soc",
				Property:  "Soc",
				Value:     80.5,
				Status:    log.StatusOK,
			},
		},
		{
			Timestamp: testTime.Add(4 * time.Second),
			SessionID: testSession,
			Direction: log.DirectionOut,
			Category:  log.CategoryNotification,
			Service:   service,
			Changes:   &log.ChangesEvent{Paths: []string{"Soc"}},
		},
	}
}
