package store

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"eventsched/internal/model"
)

const (
	EventsFile      = "events.csv"
	RecurrencesFile = "recurrent.csv"
)

// FileStore keeps one record per line in two files inside a directory.
// Missing files read as empty collections; every save rewrites a whole
// file through a temp file and rename.
type FileStore struct {
	dir string
	loc *time.Location
}

// NewFileStore returns a FileStore rooted at dir. Timestamps are read as
// wall clock times in loc (time.Local if nil).
func NewFileStore(dir string, loc *time.Location) *FileStore {
	if dir == "" {
		dir = "."
	}
	if loc == nil {
		loc = time.Local
	}
	return &FileStore{dir: dir, loc: loc}
}

func (f *FileStore) Dir() string { return f.dir }

func (f *FileStore) LoadEvents() ([]model.Event, error) {
	events := make([]model.Event, 0)
	err := f.readLines(EventsFile, func(line string) error {
		e, err := DecodeEvent(line, f.loc)
		if err != nil {
			return err
		}
		events = append(events, e)
		return nil
	})
	return events, err
}

func (f *FileStore) SaveEvents(events []model.Event) error {
	var buf bytes.Buffer
	for _, e := range events {
		buf.WriteString(EncodeEvent(e))
		buf.WriteByte('\n')
	}
	return writeFileAtomic(filepath.Join(f.dir, EventsFile), buf.Bytes())
}

func (f *FileStore) LoadRecurrences() ([]model.RecurrenceSpec, error) {
	specs := make([]model.RecurrenceSpec, 0)
	err := f.readLines(RecurrencesFile, func(line string) error {
		s, err := DecodeRecurrence(line)
		if err != nil {
			return err
		}
		specs = append(specs, s)
		return nil
	})
	return specs, err
}

func (f *FileStore) SaveRecurrences(specs []model.RecurrenceSpec) error {
	var buf bytes.Buffer
	for _, s := range specs {
		buf.WriteString(EncodeRecurrence(s))
		buf.WriteByte('\n')
	}
	return writeFileAtomic(filepath.Join(f.dir, RecurrencesFile), buf.Bytes())
}

func (f *FileStore) readLines(name string, fn func(line string) error) error {
	path := filepath.Join(f.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if err := fn(line); err != nil {
			return fmt.Errorf("%s line %d: %w", name, lineNo, err)
		}
	}
	return sc.Err()
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".eventsched-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
