package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/newtron-network/vnetorch/pkg/util"
	"github.com/newtron-network/vnetorch/pkg/vnet"
)

// FileLogger appends events to a JSON-lines file. It implements
// vnet.Journal.
type FileLogger struct {
	path     string
	file     *os.File
	encoder  *json.Encoder
	mu       sync.RWMutex
	rotation RotationConfig
}

// RotationConfig configures log file rotation
type RotationConfig struct {
	MaxSize    int64 // Max file size in bytes before rotation
	MaxBackups int   // Max number of old files to retain
}

// NewFileLogger creates a new file-based journal
func NewFileLogger(path string, rotation RotationConfig) (*FileLogger, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating audit log directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}

	return &FileLogger{
		path:     path,
		file:     file,
		encoder:  json.NewEncoder(file),
		rotation: rotation,
	}, nil
}

// Record writes a transition. Write failures are logged, not returned: a
// full disk must not stall reconciliation.
func (l *FileLogger) Record(t vnet.Transition) {
	if err := l.Log(NewEvent(t)); err != nil {
		util.WithRoute(t.Route.VNet, t.Route.Prefix.String()).Warnf("audit: %v", err)
	}
}

// Log writes an event to the log file
func (l *FileLogger) Log(event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.rotation.MaxSize > 0 {
		if info, err := l.file.Stat(); err == nil {
			if info.Size() >= l.rotation.MaxSize {
				if err := l.rotate(); err != nil {
					return fmt.Errorf("rotating audit log: %w", err)
				}
			}
		}
	}

	return l.encoder.Encode(event)
}

// Query reads the journal at path, rotated backups first, without opening
// it for writing. vnetctl uses it against the daemon's file.
func Query(path string, filter Filter) ([]*Event, error) {
	events := []*Event{}
	for _, name := range journalFiles(path) {
		var err error
		if events, err = scanFile(name, filter, events); err != nil {
			return nil, err
		}
	}

	if filter.Newest {
		for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
			events[i], events[j] = events[j], events[i]
		}
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(events) {
			events = []*Event{}
		} else {
			events = events[filter.Offset:]
		}
	}
	if filter.Limit > 0 && filter.Limit < len(events) {
		events = events[:filter.Limit]
	}
	return events, nil
}

// journalFiles lists the rotated backups of path oldest first, then path.
// Backup suffixes are timestamps, so name order is age order.
func journalFiles(path string) []string {
	backups, _ := filepath.Glob(path + ".*")
	sort.Strings(backups)
	return append(backups, path)
}

// scanFile appends the matching events of one file. A missing file adds
// nothing; it may have been rotated away between listing and opening.
func scanFile(name string, filter Filter, events []*Event) ([]*Event, error) {
	file, err := os.Open(name)
	if err != nil {
		if os.IsNotExist(err) {
			return events, nil
		}
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		var event Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			util.Warnf("audit: skipping malformed entry at %s:%d: %v", filepath.Base(name), lineNum, err)
			continue
		}
		if matchesFilter(&event, filter) {
			events = append(events, &event)
		}
	}
	return events, scanner.Err()
}

// Query searches the journal and its backups.
func (l *FileLogger) Query(filter Filter) ([]*Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Query(l.path, filter)
}

// Close closes the log file
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func matchesFilter(event *Event, filter Filter) bool {
	if filter.VNet != "" && event.VNet != filter.VNet {
		return false
	}
	if filter.Prefix != "" && event.Prefix != filter.Prefix {
		return false
	}
	if !filter.StartTime.IsZero() && event.Timestamp.Before(filter.StartTime) {
		return false
	}
	if !filter.EndTime.IsZero() && event.Timestamp.After(filter.EndTime) {
		return false
	}
	if filter.SuccessOnly && !event.Success {
		return false
	}
	if filter.FailureOnly && event.Success {
		return false
	}
	return true
}

func (l *FileLogger) rotate() error {
	if err := l.file.Close(); err != nil {
		return err
	}

	// Nanoseconds keep names unique and ordered when several rotations
	// happen within one second.
	rotatedPath := l.path + "." + time.Now().Format("20060102-150405.000000000")
	if err := os.Rename(l.path, rotatedPath); err != nil {
		return err
	}

	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	l.file = file
	l.encoder = json.NewEncoder(file)

	if l.rotation.MaxBackups > 0 {
		l.cleanupOldFiles()
	}

	return nil
}

func (l *FileLogger) cleanupOldFiles() {
	files := journalFiles(l.path)
	backups := files[:len(files)-1]
	for i := 0; i < len(backups)-l.rotation.MaxBackups; i++ {
		os.Remove(backups[i])
	}
}
