// Package conversation owns the lifecycle of counseling conversations:
// creation, message append, goal and progress tracking, crisis-flag
// recording, search, and aggregate analytics.
//
// Two Store implementations exist: MemoryStore for tests and single-process
// deployments, and SQLiteStore for durable storage. Both serialize mutations
// per conversation so message ordering and counters stay consistent under
// concurrent intake (operations on different conversations proceed in
// parallel).
package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/counseld/internal/taxonomy"
)

var (
	// ErrNotFound indicates the referenced conversation does not exist.
	// Not retryable: retrying does not change existence.
	ErrNotFound = errors.New("conversation not found")

	// ErrInvalidInput indicates a request was rejected before any
	// mutation; the store is untouched.
	ErrInvalidInput = errors.New("invalid input")
)

// Role identifies the author side of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Status is the conversation lifecycle state. Conversations never
// auto-close; closure is an administrative action.
type Status string

const (
	StatusActive Status = "active"
	StatusClosed Status = "closed"
)

// MessageMetadata carries optional structured annotations on a message.
// Absent fields mean "skip": a nil Mood records no mood sample.
type MessageMetadata struct {
	Mood        *int   `json:"mood,omitempty"`
	CopingSkill string `json:"coping_skill,omitempty"`
}

// Message is one transcript entry. Content is immutable once stored.
type Message struct {
	ID          string           `json:"id"`
	Role        Role             `json:"role"`
	Content     string           `json:"content"`
	Timestamp   time.Time        `json:"timestamp"`
	CounselorID string           `json:"counselor_id,omitempty"`
	Metadata    *MessageMetadata `json:"metadata,omitempty"`
}

// NewMessage is the input to AddMessage. The store assigns ID and
// timestamp at append time.
type NewMessage struct {
	Role        Role             `json:"role"`
	Content     string           `json:"content"`
	CounselorID string           `json:"counselor_id,omitempty"`
	Metadata    *MessageMetadata `json:"metadata,omitempty"`
}

// CrisisFlag is an append-only audit record of a detected risk tier.
// Flags are never deleted; Resolved is flipped by an external reviewer
// action outside this package's contract.
type CrisisFlag struct {
	ID        string        `json:"id"`
	Level     taxonomy.Tier `json:"level"`
	Keywords  []string      `json:"keywords,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Resolved  bool          `json:"resolved"`
	Escalated bool          `json:"escalated"`
}

// FlagParams is the input to FlagCrisis.
type FlagParams struct {
	Level     taxonomy.Tier `json:"level"`
	Keywords  []string      `json:"keywords,omitempty"`
	Escalated bool          `json:"escalated"`
}

// MoodEntry is a time-stamped mood sample.
type MoodEntry struct {
	Value      int       `json:"value"`
	RecordedAt time.Time `json:"recorded_at"`
}

// ProgressEntry is a time-stamped free-text progress note.
type ProgressEntry struct {
	Note       string    `json:"note"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Progress tracks therapeutic progress. Every sub-sequence is strictly
// append-only.
type Progress struct {
	MoodHistory  []MoodEntry     `json:"mood_history,omitempty"`
	CopingSkills []ProgressEntry `json:"coping_skills,omitempty"`
	Challenges   []ProgressEntry `json:"challenges,omitempty"`
	Achievements []ProgressEntry `json:"achievements,omitempty"`
}

// Conversation is a multi-session counseling engagement.
//
// Invariants maintained by every Store implementation:
//   - Messages is append-only and never reordered.
//   - TotalMessages always equals len(Messages).
//   - SessionCount is monotonically non-decreasing, starting at 1.
//   - CrisisFlags accumulate; they are never removed.
//   - UpdatedAt is refreshed on every mutation.
type Conversation struct {
	ID            string       `json:"id"`
	ClientID      string       `json:"client_id"`
	CounselorID   string       `json:"counselor_id,omitempty"`
	ServiceType   string       `json:"service_type"`
	Messages      []Message    `json:"messages"`
	Status        Status       `json:"status"`
	SessionCount  int          `json:"session_count"`
	TotalMessages int          `json:"total_messages"`
	CrisisFlags   []CrisisFlag `json:"crisis_flags,omitempty"`
	Goals         []string     `json:"goals,omitempty"`
	Progress      Progress     `json:"progress"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// CreateParams is the input to Create.
type CreateParams struct {
	ClientID       string `json:"client_id"`
	CounselorID    string `json:"counselor_id,omitempty"`
	ServiceType    string `json:"service_type"`
	InitialMessage string `json:"initial_message,omitempty"`
}

// Summary is a structured digest of a conversation's recent state.
type Summary struct {
	ConversationID  string    `json:"conversation_id"`
	ServiceType     string    `json:"service_type"`
	Status          Status    `json:"status"`
	SessionCount    int       `json:"session_count"`
	TotalMessages   int       `json:"total_messages"`
	RecentTopics    []string  `json:"recent_topics"`
	CrisisFlagCount int       `json:"crisis_flag_count"`
	UnresolvedFlags int       `json:"unresolved_flags"`
	Goals           []string  `json:"goals,omitempty"`
	LastActivity    time.Time `json:"last_activity"`
}

// SearchFilters narrows a search. Empty fields match everything.
type SearchFilters struct {
	ServiceType string `json:"service_type,omitempty"`
	ClientID    string `json:"client_id,omitempty"`
	CounselorID string `json:"counselor_id,omitempty"`
}

// SearchResult is a projection of a matching conversation; transcripts
// are not included.
type SearchResult struct {
	ID            string    `json:"id"`
	ClientID      string    `json:"client_id"`
	CounselorID   string    `json:"counselor_id,omitempty"`
	ServiceType   string    `json:"service_type"`
	LastActivity  time.Time `json:"last_activity"`
	TotalMessages int       `json:"total_messages"`
}

// Analytics is an aggregate snapshot across the whole store.
type Analytics struct {
	TotalConversations  int            `json:"total_conversations"`
	ActiveConversations int            `json:"active_conversations"`
	TotalMessages       int            `json:"total_messages"`
	TotalCrisisFlags    int            `json:"total_crisis_flags"`
	ByServiceType       map[string]int `json:"by_service_type"`
	AverageSessionCount float64        `json:"average_session_count"`
	RecentConversations []SearchResult `json:"recent_conversations"`
}

// Store is the conversation persistence contract.
//
// Mutating operations fail with ErrNotFound for unknown ids and are
// atomic: a failed mutation leaves counters and timestamps untouched.
// History and Summarize are deliberately lenient read paths: an absent
// conversation yields an empty result, not an error.
type Store interface {
	// Create allocates a new conversation. If InitialMessage is set it
	// is appended as a user-role message and counted.
	Create(ctx context.Context, params CreateParams) (*Conversation, error)

	// AddMessage appends a message, assigns its id and timestamp,
	// increments TotalMessages and refreshes UpdatedAt. Mood and
	// coping-skill metadata feed the progress record as a side effect
	// of the append.
	AddMessage(ctx context.Context, conversationID string, msg NewMessage) (*Message, error)

	// Get retrieves a conversation by id.
	Get(ctx context.Context, conversationID string) (*Conversation, error)

	// ListByClient returns a client's conversations, most recently
	// active first.
	ListByClient(ctx context.Context, clientID string) ([]*Conversation, error)

	// History returns the last maxMessages messages in chronological
	// order. maxMessages <= 0 means the default of 20. An absent
	// conversation yields an empty slice.
	History(ctx context.Context, conversationID string, maxMessages int) ([]Message, error)

	// Summarize derives a digest from the conversation's recent
	// messages. An absent conversation yields (nil, nil).
	Summarize(ctx context.Context, conversationID string) (*Summary, error)

	// UpdateGoals replaces the goal list wholesale.
	UpdateGoals(ctx context.Context, conversationID string, goals []string) ([]string, error)

	// FlagCrisis appends a crisis flag with Resolved initialized false.
	FlagCrisis(ctx context.Context, conversationID string, params FlagParams) (*CrisisFlag, error)

	// StartSession increments the session counter and returns the new
	// count.
	StartSession(ctx context.Context, conversationID string) (int, error)

	// SetStatus records an administrative lifecycle change
	// (active -> closed).
	SetStatus(ctx context.Context, conversationID string, status Status) error

	// ResolveFlag marks a crisis flag resolved (external reviewer
	// action).
	ResolveFlag(ctx context.Context, conversationID, flagID string) error

	// Analytics computes an aggregate snapshot. Averages are zero, not
	// NaN, on an empty store.
	Analytics(ctx context.Context) (*Analytics, error)

	// Search returns projections of conversations where any message
	// contains query as a case-insensitive substring and all non-empty
	// filters match.
	Search(ctx context.Context, query string, filters SearchFilters) ([]SearchResult, error)

	// Close releases store resources.
	Close() error
}

// historyDefaultLimit is the History default when maxMessages <= 0.
const historyDefaultLimit = 20

// summaryWindow is how many recent messages feed topic derivation.
const summaryWindow = 10

// recentConversationsLimit caps Analytics.RecentConversations.
const recentConversationsLimit = 10

// validateNewMessage rejects malformed input before any mutation.
func validateNewMessage(msg NewMessage) error {
	if msg.Role != RoleUser && msg.Role != RoleAssistant {
		return fmt.Errorf("%w: role must be user or assistant, got %q", ErrInvalidInput, msg.Role)
	}
	if msg.Content == "" {
		return fmt.Errorf("%w: message content is empty", ErrInvalidInput)
	}
	return nil
}

// validateCreate rejects malformed creation requests.
func validateCreate(params CreateParams) error {
	if params.ClientID == "" {
		return fmt.Errorf("%w: client id is required", ErrInvalidInput)
	}
	if params.ServiceType == "" {
		return fmt.Errorf("%w: service type is required", ErrInvalidInput)
	}
	return nil
}
