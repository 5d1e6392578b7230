package models

import (
	"encoding/json"
	"time"
)

// Output is a record of one completed task's result, written to the
// outputs directory and appended to the conversation's outputs list.
type Output struct {
	Task      string    `json:"task"`
	Result    string    `json:"result"`
	Timestamp time.Time `json:"timestamp"`
	FilePath  string    `json:"file_path,omitempty"`
}

// ConversationMetadata tracks the creation/modification timestamps of a
// conversation context.
type ConversationMetadata struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConversationContext is the append-only message log plus derived file
// sets and outputs for one session. The zero value is not usable; build
// one with NewConversationContext.
//
// Invariant: UpdatedAt is monotonically non-decreasing. Every mutation
// that changes user-visible state must bump UpdatedAt.
type ConversationContext struct {
	SessionID      string             `json:"session_id"`
	Messages       []Message          `json:"messages"`
	CreatedFiles   map[string]struct{} `json:"-"`
	ProtectedFiles map[string]struct{} `json:"-"`
	Outputs        []Output           `json:"outputs"`
	Metadata       ConversationMetadata `json:"metadata"`
}

// conversationContextJSON is the on-disk shape of context.json: sets are
// serialized as sorted slices since JSON has no native set type.
type conversationContextJSON struct {
	SessionID      string               `json:"session_id"`
	Messages       []Message            `json:"messages"`
	CreatedFiles   []string             `json:"created_files"`
	ProtectedFiles []string             `json:"protected_files"`
	Outputs        []Output             `json:"outputs"`
	Metadata       ConversationMetadata `json:"metadata"`
}

// NewConversationContext creates an empty conversation context for sessionID.
func NewConversationContext(sessionID string) *ConversationContext {
	now := time.Now()
	return &ConversationContext{
		SessionID:      sessionID,
		CreatedFiles:   make(map[string]struct{}),
		ProtectedFiles: make(map[string]struct{}),
		Metadata: ConversationMetadata{
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

func setToSlice(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func sliceToSet(s []string) map[string]struct{} {
	m := make(map[string]struct{}, len(s))
	for _, v := range s {
		m[v] = struct{}{}
	}
	return m
}

// MarshalJSON serializes ConversationContext into the context.json shape,
// converting the file sets into sorted-free slices.
func (c *ConversationContext) MarshalJSON() ([]byte, error) {
	return json.Marshal(conversationContextJSON{
		SessionID:      c.SessionID,
		Messages:       c.Messages,
		CreatedFiles:   setToSlice(c.CreatedFiles),
		ProtectedFiles: setToSlice(c.ProtectedFiles),
		Outputs:        c.Outputs,
		Metadata:       c.Metadata,
	})
}

// UnmarshalJSON reconstructs a ConversationContext from the context.json shape.
func (c *ConversationContext) UnmarshalJSON(data []byte) error {
	var raw conversationContextJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.SessionID = raw.SessionID
	c.Messages = raw.Messages
	c.CreatedFiles = sliceToSet(raw.CreatedFiles)
	c.ProtectedFiles = sliceToSet(raw.ProtectedFiles)
	c.Outputs = raw.Outputs
	c.Metadata = raw.Metadata
	return nil
}
