package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/victron-virtual/dbus-virtual-go/pkg/log"
)

// Stats holds aggregate statistics about a capture file.
type Stats struct {
	TotalEvents       int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	CallsByOperation  map[log.Operation]int
	FailedCalls       map[log.Status]int
	ChangedPaths      map[string]int
	Sessions          map[string]*SessionStats
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// SessionStats holds statistics for one device process run.
type SessionStats struct {
	FirstSeen     time.Time
	LastSeen      time.Time
	Events        int
	Service       string
	Notifications int
}

// RunStats analyzes the capture file and prints statistics.
func RunStats(path string, w io.Writer) error {
	stats, err := collectStats(path)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func collectStats(path string) (*Stats, error) {
	reader, err := log.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		CallsByOperation:  make(map[log.Operation]int),
		FailedCalls:       make(map[log.Status]int),
		ChangedPaths:      make(map[string]int),
		Sessions:          make(map[string]*SessionStats),
	}

	for event, err := range reader.Events() {
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}

		stats.TotalEvents++
		stats.EventsByCategory[event.Category]++
		stats.EventsByDirection[event.Direction]++

		if stats.TimeRange.Start.IsZero() || event.Timestamp.Before(stats.TimeRange.Start) {
			stats.TimeRange.Start = event.Timestamp
		}
		if event.Timestamp.After(stats.TimeRange.End) {
			stats.TimeRange.End = event.Timestamp
		}

		sess, ok := stats.Sessions[event.SessionID]
		if !ok {
			sess = &SessionStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
			stats.Sessions[event.SessionID] = sess
		}
		sess.Events++
		if event.Timestamp.After(sess.LastSeen) {
			sess.LastSeen = event.Timestamp
		}
		if sess.Service == "" {
			sess.Service = event.Service
		}

		switch {
		case event.Call != nil:
			stats.CallsByOperation[event.Call.Operation]++
			if event.Call.Status != log.StatusOK {
				stats.FailedCalls[event.Call.Status]++
			}
		case event.Changes != nil:
			sess.Notifications++
			for _, p := range event.Changes.Paths {
				stats.ChangedPaths[p]++
			}
		case event.Error != nil:
			stats.Errors++
		}
	}

	return stats, nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Protocol Capture Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryCall, log.CategoryNotification, log.CategoryState, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-14s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-14s %d\n", dir.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	if len(stats.CallsByOperation) > 0 {
		fmt.Fprintln(w, "Calls by Operation:")
		for _, op := range operations {
			if count := stats.CallsByOperation[op]; count > 0 {
				fmt.Fprintf(w, "  %-14s %d\n", op.String()+":", count)
			}
		}
		fmt.Fprintln(w)
	}

	if len(stats.FailedCalls) > 0 {
		fmt.Fprintln(w, "Failed Calls:")
		statuses := make([]log.Status, 0, len(stats.FailedCalls))
		for s := range stats.FailedCalls {
			statuses = append(statuses, s)
		}
		sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })
		for _, s := range statuses {
			fmt.Fprintf(w, "  %-18s %d\n", s.String()+":", stats.FailedCalls[s])
		}
		fmt.Fprintln(w)
	}

	if len(stats.ChangedPaths) > 0 {
		fmt.Fprintln(w, "Most Changed:")
		paths := make([]string, 0, len(stats.ChangedPaths))
		for p := range stats.ChangedPaths {
			paths = append(paths, p)
		}
		sort.Slice(paths, func(i, j int) bool {
			ci, cj := stats.ChangedPaths[paths[i]], stats.ChangedPaths[paths[j]]
			if ci != cj {
				return ci > cj
			}
			return paths[i] < paths[j]
		})
		if len(paths) > 10 {
			paths = paths[:10]
		}
		for _, p := range paths {
			fmt.Fprintf(w, "  %-28s %d\n", p, stats.ChangedPaths[p])
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Sessions: %d\n", len(stats.Sessions))
	if len(stats.Sessions) > 0 {
		type sessionInfo struct {
			id    string
			stats *SessionStats
		}
		sessions := make([]sessionInfo, 0, len(stats.Sessions))
		for id, ss := range stats.Sessions {
			sessions = append(sessions, sessionInfo{id, ss})
		}
		sort.Slice(sessions, func(i, j int) bool {
			return sessions[i].stats.FirstSeen.Before(sessions[j].stats.FirstSeen)
		})

		fmt.Fprintln(w)
		for _, s := range sessions {
			duration := s.stats.LastSeen.Sub(s.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %d events, duration %s\n", shortenID(s.id), s.stats.Events, duration)
			if s.stats.Service != "" {
				fmt.Fprintf(w, "           Service: %s\n", s.stats.Service)
			}
			if s.stats.Notifications > 0 {
				fmt.Fprintf(w, "           Batches: %d\n", s.stats.Notifications)
			}
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
