package store

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"eventsched/internal/model"
)

const (
	sectionEvents      = "# EVENTS"
	sectionRecurrences = "# RECURRING_EVENTS"
)

// Snapshot is the full persisted state: what a backup file holds.
type Snapshot struct {
	Events      []model.Event
	Recurrences []model.RecurrenceSpec
}

// WriteBackup writes the two-section backup format:
//
//	# EVENTS
//	<event lines>
//
//	# RECURRING_EVENTS
//	<recurrence lines>
func WriteBackup(w io.Writer, snap Snapshot) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, sectionEvents)
	for _, e := range snap.Events {
		fmt.Fprintln(bw, EncodeEvent(e))
	}
	fmt.Fprintln(bw)
	fmt.Fprintln(bw, sectionRecurrences)
	for _, s := range snap.Recurrences {
		fmt.Fprintln(bw, EncodeRecurrence(s))
	}
	return bw.Flush()
}

// ReadBackup parses a backup written by WriteBackup. Blank lines are
// skipped, any line starting with '#' switches the section, and lines in an
// unknown section are ignored. A single malformed record fails the read.
func ReadBackup(r io.Reader, loc *time.Location) (Snapshot, error) {
	var snap Snapshot
	section := ""

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			section = line
			continue
		}

		switch section {
		case sectionEvents:
			e, err := DecodeEvent(line, loc)
			if err != nil {
				return Snapshot{}, fmt.Errorf("backup line %d: %w", lineNo, err)
			}
			snap.Events = append(snap.Events, e)
		case sectionRecurrences:
			s, err := DecodeRecurrence(line)
			if err != nil {
				return Snapshot{}, fmt.Errorf("backup line %d: %w", lineNo, err)
			}
			snap.Recurrences = append(snap.Recurrences, s)
		}
	}
	if err := sc.Err(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// CreateBackup writes snap to path atomically.
func CreateBackup(path string, snap Snapshot) error {
	var buf bytes.Buffer
	if err := WriteBackup(&buf, snap); err != nil {
		return err
	}
	return writeFileAtomic(path, buf.Bytes())
}

// LoadBackup reads the backup file at path.
func LoadBackup(path string, loc *time.Location) (Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return Snapshot{}, err
	}
	defer f.Close()
	return ReadBackup(f, loc)
}
