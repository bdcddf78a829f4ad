package memory

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultMaxMessages is the retention window applied when no
	// explicit capacity is given.
	DefaultMaxMessages = 5

	noConversationSentinel = "No previous conversation."
	noContextSentinel      = "No context available."
)

// Message represents a single turn in the conversation.
type Message struct {
	Role        string // "user" or "assistant"
	Content     string
	Timestamp   time.Time
	PlanDisplay string         // formatted execution plan, assistant turns only
	ChartData   map[string]any // chart descriptor, assistant turns only
}

// ConversationMemory keeps a bounded window of conversation turns plus
// cached schema/info strings describing the active dataset. It is
// process-local and owned by exactly one orchestrator; there is no
// internal locking.
type ConversationMemory struct {
	maxMessages   int
	messages      []Message
	dataSchema    string
	dataframeInfo string
}

// Option configures an assistant message attachment.
type Option func(*Message)

// WithPlanDisplay attaches the formatted execution plan to a message.
func WithPlanDisplay(display string) Option {
	return func(m *Message) { m.PlanDisplay = display }
}

// WithChartData attaches a chart descriptor to a message.
func WithChartData(data map[string]any) Option {
	return func(m *Message) { m.ChartData = data }
}

// New creates a conversation memory retaining at most maxMessages
// entries. Non-positive values fall back to DefaultMaxMessages.
func New(maxMessages int) *ConversationMemory {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	return &ConversationMemory{maxMessages: maxMessages}
}

// AddMessage appends a turn and evicts from the front so that at most
// maxMessages entries remain.
func (c *ConversationMemory) AddMessage(role, content string, opts ...Option) {
	msg := Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(&msg)
	}
	c.messages = append(c.messages, msg)

	if len(c.messages) > c.maxMessages {
		c.messages = c.messages[len(c.messages)-c.maxMessages:]
	}
}

// Messages returns the retained window in chronological order.
func (c *ConversationMemory) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len reports how many turns are currently retained.
func (c *ConversationMemory) Len() int {
	return len(c.messages)
}

// Context renders the retained window as alternating "User:"/
// "Assistant:" lines for use as prompt context.
func (c *ConversationMemory) Context() string {
	if len(c.messages) == 0 {
		return noConversationSentinel
	}

	lines := make([]string, 0, len(c.messages))
	for _, msg := range c.messages {
		label := "Assistant"
		if msg.Role == "user" {
			label = "User"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", label, msg.Content))
	}
	return strings.Join(lines, "\n")
}

// LastUserQuery returns the most recent user message content.
func (c *ConversationMemory) LastUserQuery() (string, bool) {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Role == "user" {
			return c.messages[i].Content, true
		}
	}
	return "", false
}

// LastAssistantResponse returns the most recent assistant message.
func (c *ConversationMemory) LastAssistantResponse() (Message, bool) {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Role == "assistant" {
			return c.messages[i], true
		}
	}
	return Message{}, false
}

// SetDataSchema replaces the cached schema description wholesale.
func (c *ConversationMemory) SetDataSchema(schema string) {
	c.dataSchema = schema
}

// SetDataframeInfo replaces the cached dataframe summary wholesale.
func (c *ConversationMemory) SetDataframeInfo(info string) {
	c.dataframeInfo = info
}

// ClearMessages drops the conversation window but keeps the cached
// schema/info strings. Used when the user clears the chat without
// replacing the dataset.
func (c *ConversationMemory) ClearMessages() {
	c.messages = nil
}

// Clear empties the conversation window and unsets both cached strings.
func (c *ConversationMemory) Clear() {
	c.messages = nil
	c.dataSchema = ""
	c.dataframeInfo = ""
}

// FullContext concatenates the schema block, the dataframe-info block
// and the conversation block, omitting unset sections. Used by the
// planner for follow-up questions.
func (c *ConversationMemory) FullContext() string {
	var parts []string

	if c.dataSchema != "" {
		parts = append(parts, "DATA SCHEMA:\n"+c.dataSchema)
	}
	if c.dataframeInfo != "" {
		parts = append(parts, "DATAFRAME INFO:\n"+c.dataframeInfo)
	}
	if conversation := c.Context(); conversation != noConversationSentinel {
		parts = append(parts, "CONVERSATION HISTORY:\n"+conversation)
	}

	if len(parts) == 0 {
		return noContextSentinel
	}
	return strings.Join(parts, "\n\n")
}
