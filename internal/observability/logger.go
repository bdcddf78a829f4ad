package observability

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypeLoad      EventType = "load"
	EventTypePlan      EventType = "plan"
	EventTypeFallback  EventType = "fallback"
	EventTypeExecution EventType = "execution"
	EventTypeSession   EventType = "session"
	EventTypeLLM       EventType = "llm"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger handles structured logging.
type Logger struct {
	llmLogPath string
	maxSize    int64
}

func NewLogger() *Logger {
	return NewLoggerWithPath(filepath.Join("logs", "llm.jsonl"))
}

// NewLoggerWithPath places the LLM exchange log at a custom location.
func NewLoggerWithPath(llmLogPath string) *Logger {
	return &Logger{
		llmLogPath: llmLogPath,
		maxSize:    10 * 1024 * 1024, // 10MB
	}
}

// Log emits a structured JSON event to stdout.
func (l *Logger) Log(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		fmt.Printf("{\"error\": \"failed to marshal event: %v\"}\n", err)
		return
	}
	fmt.Println(string(data))

	if evt.Type == EventTypeLLM {
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	if err := os.MkdirAll(filepath.Dir(l.llmLogPath), 0755); err != nil {
		log.Printf("failed to create log directory: %v", err)
		return
	}

	// Check size before writing
	info, err := os.Stat(l.llmLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.llmLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("failed to write to log file: %v", err)
	}
}

func (l *Logger) rotateLogs() {
	// Simple rotation: keep one .old file
	oldPath := l.llmLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.llmLogPath, oldPath)
}

// Helper methods for common events

func (l *Logger) LogLoad(sessionID, fileName string, rows, cols int) {
	l.Log(Event{
		Type:      EventTypeLoad,
		SessionID: sessionID,
		Data: map[string]any{
			"file":    fileName,
			"rows":    rows,
			"columns": cols,
		},
	})
}

func (l *Logger) LogPlan(sessionID, question, goal string, fallback bool) {
	evtType := EventTypePlan
	if fallback {
		evtType = EventTypeFallback
	}
	l.Log(Event{
		Type:      evtType,
		SessionID: sessionID,
		Data: map[string]any{
			"question": question,
			"goal":     goal,
		},
	})
}

func (l *Logger) LogExecution(sessionID string, success bool, chartPath string) {
	l.Log(Event{
		Type:      EventTypeExecution,
		SessionID: sessionID,
		Data: map[string]any{
			"success": success,
			"chart":   chartPath,
		},
	})
}

func (l *Logger) LogSession(sessionID, action string) {
	l.Log(Event{
		Type:      EventTypeSession,
		SessionID: sessionID,
		Data:      map[string]string{"action": action},
	})
}

func (l *Logger) LogLLM(sessionID string, prompt any, response string) {
	l.Log(Event{
		Type:      EventTypeLLM,
		SessionID: sessionID,
		Data: map[string]any{
			"prompt":   prompt,
			"response": response,
		},
	})
}
