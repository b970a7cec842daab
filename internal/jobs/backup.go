package jobs

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// BackupFileSuffix ends every scheduled backup file name.
const BackupFileSuffix = "_events.bak"

// Backuper writes a full catalog backup to a path.
type Backuper interface {
	Backup(path string) error
}

// Backup writes timestamped catalog backups into a directory.
type Backup struct {
	src Backuper
	dir string
	now func() time.Time

	mu      sync.Mutex
	lastSec int64
	seq     int
}

func NewBackup(src Backuper, dir string) *Backup {
	return &Backup{src: src, dir: dir, now: time.Now}
}

// Run implements cron.Job. Failures are logged by the catalog.
func (b *Backup) Run() {
	_, _ = b.Write()
}

// Write creates <dir>/<unix seconds>_events.bak and returns its path. A
// second backup within the same second, or one whose name is already
// taken on disk, gets a ".N" sequence after the seconds.
func (b *Backup) Write() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.now()
	if sec := t.Unix(); sec != b.lastSec {
		b.lastSec, b.seq = sec, 0
	}
	path := BackupPath(b.dir, t, b.seq)
	for exists(path) {
		b.seq++
		path = BackupPath(b.dir, t, b.seq)
	}
	b.seq++

	if err := b.src.Backup(path); err != nil {
		return "", err
	}
	return path, nil
}

// BackupPath names the seq-th backup taken during t's second inside dir.
func BackupPath(dir string, t time.Time, seq int) string {
	if seq == 0 {
		return filepath.Join(dir, fmt.Sprintf("%d%s", t.Unix(), BackupFileSuffix))
	}
	return filepath.Join(dir, fmt.Sprintf("%d.%d%s", t.Unix(), seq, BackupFileSuffix))
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
