package agent

import (
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"

	"storynerd/internal/llm"
	"storynerd/internal/workspace"
)

// SessionRecord is the persisted transcript of one turn.
type SessionRecord struct {
	ID          string        `json:"id"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	UserMessage string        `json:"user_message"`
	Messages    []llm.Message `json:"messages"`
	State       State         `json:"state"`
	FailReason  FailReason    `json:"fail_reason,omitempty"`
	Rounds      int           `json:"rounds"`
	ToolCalls   int           `json:"tool_calls"`
}

func newTranscript(userMessage string) *SessionRecord {
	return &SessionRecord{
		ID:          uuid.NewString(),
		StartedAt:   time.Now().UTC(),
		UserMessage: userMessage,
	}
}

func (s *SessionRecord) append(m llm.Message) {
	s.Messages = append(s.Messages, m)
}

func (s *SessionRecord) finish(result *TurnResult) {
	s.FinishedAt = time.Now().UTC()
	s.State = result.State
	s.FailReason = result.FailReason
	s.Rounds = result.Rounds
	s.ToolCalls = result.ToolCalls
}

// SessionStore persists turn transcripts under memory/sessions/.
type SessionStore struct {
	ws *workspace.Workspace
}

// NewSessionStore creates a store over the workspace.
func NewSessionStore(ws *workspace.Workspace) *SessionStore {
	return &SessionStore{ws: ws}
}

// Save writes the transcript as pretty-printed JSON, atomically.
func (s *SessionStore) Save(record *SessionRecord) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	rel := path.Join(workspace.SessionsDir, fmt.Sprintf("session_%s.json", record.ID))
	return s.ws.WritePathAtomic(rel, string(data)+"\n")
}
