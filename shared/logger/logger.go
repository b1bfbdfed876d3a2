// Copyright 2025 AxonFlow
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

package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity of a log entry
type LogLevel string

const (
	DEBUG LogLevel = "DEBUG"
	INFO  LogLevel = "INFO"
	WARN  LogLevel = "WARN"
	ERROR LogLevel = "ERROR"
)

var levelRank = map[LogLevel]int{
	DEBUG: 0,
	INFO:  1,
	WARN:  2,
	ERROR: 3,
}

// ParseLevel converts a level name to a LogLevel. Unknown names map to INFO.
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Logger provides structured logging keyed by agent and correlation id.
// Safe for concurrent use.
type Logger struct {
	Component  string
	InstanceID string
	Container  string

	mu       *sync.Mutex // shared by loggers derived via WithComponent
	out      io.Writer
	minLevel LogLevel
}

// LogEntry is a single JSON log line
type LogEntry struct {
	Timestamp     string                 `json:"timestamp"`
	Level         LogLevel               `json:"level"`
	Component     string                 `json:"component"`
	InstanceID    string                 `json:"instance_id"`
	Container     string                 `json:"container"`
	AgentID       string                 `json:"agent_id,omitempty"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Message       string                 `json:"message"`
	Fields        map[string]interface{} `json:"fields,omitempty"`
}

// New creates a new Logger for the specified component writing to stdout
func New(component string) *Logger {
	instanceID := os.Getenv("INSTANCE_ID")
	if instanceID == "" {
		instanceID = "unknown"
	}

	container, err := os.Hostname()
	if err != nil {
		container = "unknown"
	}

	return &Logger{
		Component:  component,
		InstanceID: instanceID,
		Container:  container,
		mu:         &sync.Mutex{},
		out:        os.Stdout,
		minLevel:   ParseLevel(os.Getenv("LOG_LEVEL")),
	}
}

// NewWithWriter creates a logger that writes to w. Used by tests to capture output.
func NewWithWriter(component string, w io.Writer, level LogLevel) *Logger {
	l := New(component)
	l.out = w
	l.minLevel = level
	return l
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewWithWriter("discard", io.Discard, ERROR)
}

// WithComponent returns a copy of the logger tagged with a different component
// but sharing the same output.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Component:  component,
		InstanceID: l.InstanceID,
		Container:  l.Container,
		mu:         l.mu,
		out:        l.out,
		minLevel:   l.minLevel,
	}
}

// SetLevel changes the minimum level that gets written.
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	l.minLevel = level
	l.mu.Unlock()
}

// Log creates a structured log entry and writes it as one JSON line
func (l *Logger) Log(level LogLevel, agentID, correlationID, message string, fields map[string]interface{}) {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if levelRank[level] < levelRank[l.minLevel] {
		return
	}

	entry := LogEntry{
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		Level:         level,
		Component:     l.Component,
		InstanceID:    l.InstanceID,
		Container:     l.Container,
		AgentID:       agentID,
		CorrelationID: correlationID,
		Message:       message,
		Fields:        fields,
	}

	jsonBytes, err := json.Marshal(entry)
	if err != nil {
		// Fields may hold values json cannot encode; keep the message.
		fmt.Fprintf(l.out, "%s %s [%s] %s (unencodable fields: %v)\n", entry.Timestamp, level, l.Component, message, err)
		return
	}

	_, _ = l.out.Write(append(jsonBytes, '\n'))
}

// Info logs an informational message
func (l *Logger) Info(agentID, correlationID, message string, fields map[string]interface{}) {
	l.Log(INFO, agentID, correlationID, message, fields)
}

// Error logs an error message
func (l *Logger) Error(agentID, correlationID, message string, fields map[string]interface{}) {
	l.Log(ERROR, agentID, correlationID, message, fields)
}

// Warn logs a warning message
func (l *Logger) Warn(agentID, correlationID, message string, fields map[string]interface{}) {
	l.Log(WARN, agentID, correlationID, message, fields)
}

// Debug logs a debug message
func (l *Logger) Debug(agentID, correlationID, message string, fields map[string]interface{}) {
	l.Log(DEBUG, agentID, correlationID, message, fields)
}

// InfoWithDuration logs an info message with duration field
func (l *Logger) InfoWithDuration(agentID, correlationID, message string, durationMS float64, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["duration_ms"] = durationMS
	l.Info(agentID, correlationID, message, fields)
}

// ErrorWithCode logs an error with status code
func (l *Logger) ErrorWithCode(agentID, correlationID, message string, statusCode int, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["status_code"] = statusCode
	if err != nil {
		fields["error"] = err.Error()
	}
	l.Error(agentID, correlationID, message, fields)
}
