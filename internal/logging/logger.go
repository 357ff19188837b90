// Copyright 2025 MCPHub Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logging writes the hub's structured event stream to a JSONL file,
// one line per common.Event, rotated daily.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mcphub-dev/mcphub/internal/common"
)

// Logger appends common.Event records to a dated JSONL file. A single
// Logger is shared by every connector, the dispatcher, and the admin API;
// writes are serialized with a mutex because *os.File is not safe for
// concurrent writers on all platforms.
type Logger struct {
	mu      sync.Mutex
	dir     string
	day     string
	logFile *os.File
}

// NewLogger creates a logger that writes under dir (created if missing).
// If dir is empty, logs go to "<os.UserHomeDir>/.mcphub/logs".
func NewLogger(dir string) (*Logger, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		dir = filepath.Join(home, ".mcphub", "logs")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}
	l := &Logger{dir: dir}
	if err := l.rotateLocked(); err != nil {
		return nil, err
	}
	return l, nil
}

// currentLogPath returns the path events are currently being appended to.
func (l *Logger) currentLogPath() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.logFile == nil {
		return ""
	}
	return l.logFile.Name()
}

func (l *Logger) rotateLocked() error {
	day := time.Now().Format("2006-01-02")
	if l.logFile != nil && l.day == day {
		return nil
	}
	if l.logFile != nil {
		_ = l.logFile.Close()
	}
	path := filepath.Join(l.dir, fmt.Sprintf("events_%s.jsonl", day))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	l.logFile = f
	l.day = day
	return nil
}

// Log appends e as one JSON line and fsyncs it. A logging failure is never
// fatal to the caller's operation; callers that care can inspect the
// returned error, but the hub itself only logs it to stderr (see Emit).
func (l *Logger) Log(e *common.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.rotateLocked(); err != nil {
		return err
	}
	if _, err := l.logFile.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return l.logFile.Sync()
}

// Emit logs e and, on failure, falls back to stderr so an event is never
// silently dropped just because the log file became unwritable.
func (l *Logger) Emit(e *common.Event) {
	if err := l.Log(e); err != nil {
		fmt.Fprintf(os.Stderr, "mcphub: failed to log event: %v\n", err)
	}
}

// Close closes the underlying log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.logFile == nil {
		return nil
	}
	return l.logFile.Close()
}
