package conversation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// MemoryStore is the in-process Store implementation. The registry map
// supports concurrent insert/lookup; each conversation carries its own
// mutex so mutations against the same id are serialized while unrelated
// conversations proceed in parallel.
type MemoryStore struct {
	logger *zap.Logger
	now    func() time.Time

	mu            sync.RWMutex
	conversations map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	conv *Conversation
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		logger:        logger,
		now:           time.Now,
		conversations: make(map[string]*entry),
	}
}

func (s *MemoryStore) lookup(id string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.conversations[id]
	return e, ok
}

// nextTimestamp returns a timestamp that never precedes the last message.
// Must be called with the entry lock held.
func nextTimestamp(conv *Conversation, now time.Time) time.Time {
	if n := len(conv.Messages); n > 0 && now.Before(conv.Messages[n-1].Timestamp) {
		return conv.Messages[n-1].Timestamp
	}
	return now
}

// applyProgress records mood and coping-skill annotations as a side
// effect of a message append. Must be called with the entry lock held.
func applyProgress(conv *Conversation, msg *Message, ts time.Time) {
	if msg.Metadata == nil {
		return
	}
	if msg.Metadata.Mood != nil {
		conv.Progress.MoodHistory = append(conv.Progress.MoodHistory, MoodEntry{
			Value:      *msg.Metadata.Mood,
			RecordedAt: ts,
		})
	}
	if msg.Metadata.CopingSkill != "" {
		conv.Progress.CopingSkills = append(conv.Progress.CopingSkills, ProgressEntry{
			Note:       msg.Metadata.CopingSkill,
			RecordedAt: ts,
		})
	}
}

// Create allocates a new conversation.
func (s *MemoryStore) Create(ctx context.Context, params CreateParams) (*Conversation, error) {
	if err := validateCreate(params); err != nil {
		return nil, err
	}

	now := s.now()
	conv := &Conversation{
		ID:           uuid.New().String(),
		ClientID:     params.ClientID,
		CounselorID:  params.CounselorID,
		ServiceType:  params.ServiceType,
		Messages:     []Message{},
		Status:       StatusActive,
		SessionCount: 1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if params.InitialMessage != "" {
		conv.Messages = append(conv.Messages, Message{
			ID:        ulid.Make().String(),
			Role:      RoleUser,
			Content:   params.InitialMessage,
			Timestamp: now,
		})
		conv.TotalMessages = 1
	}

	s.mu.Lock()
	s.conversations[conv.ID] = &entry{conv: conv}
	s.mu.Unlock()

	s.logger.Info("conversation created",
		zap.String("conversation_id", conv.ID),
		zap.String("client_id", conv.ClientID),
		zap.String("service_type", conv.ServiceType),
	)

	return cloneConversation(conv), nil
}

// AddMessage appends a message and maintains the derived counters.
func (s *MemoryStore) AddMessage(ctx context.Context, conversationID string, msg NewMessage) (*Message, error) {
	if err := validateNewMessage(msg); err != nil {
		return nil, err
	}

	e, ok := s.lookup(conversationID)
	if !ok {
		return nil, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ts := nextTimestamp(e.conv, s.now())
	stored := Message{
		ID:          ulid.Make().String(),
		Role:        msg.Role,
		Content:     msg.Content,
		Timestamp:   ts,
		CounselorID: msg.CounselorID,
		Metadata:    cloneMetadata(msg.Metadata),
	}

	e.conv.Messages = append(e.conv.Messages, stored)
	e.conv.TotalMessages = len(e.conv.Messages)
	e.conv.UpdatedAt = ts
	applyProgress(e.conv, &stored, ts)

	out := stored
	out.Metadata = cloneMetadata(stored.Metadata)
	return &out, nil
}

// Get retrieves a conversation by id.
func (s *MemoryStore) Get(ctx context.Context, conversationID string) (*Conversation, error) {
	e, ok := s.lookup(conversationID)
	if !ok {
		return nil, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneConversation(e.conv), nil
}

// ListByClient returns a client's conversations, most recently active
// first.
func (s *MemoryStore) ListByClient(ctx context.Context, clientID string) ([]*Conversation, error) {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.conversations))
	for _, e := range s.conversations {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	var out []*Conversation
	for _, e := range entries {
		e.mu.Lock()
		if e.conv.ClientID == clientID {
			out = append(out, cloneConversation(e.conv))
		}
		e.mu.Unlock()
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// History returns the last maxMessages messages in chronological order.
// Lenient: an unknown conversation yields an empty slice.
func (s *MemoryStore) History(ctx context.Context, conversationID string, maxMessages int) ([]Message, error) {
	e, ok := s.lookup(conversationID)
	if !ok {
		return []Message{}, nil
	}
	if maxMessages <= 0 {
		maxMessages = historyDefaultLimit
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	window := lastN(e.conv.Messages, maxMessages)
	out := make([]Message, len(window))
	for i, m := range window {
		out[i] = m
		out[i].Metadata = cloneMetadata(m.Metadata)
	}
	return out, nil
}

// Summarize derives a digest from the last few messages. Lenient: an
// unknown conversation yields (nil, nil).
func (s *MemoryStore) Summarize(ctx context.Context, conversationID string) (*Summary, error) {
	e, ok := s.lookup(conversationID)
	if !ok {
		return nil, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	conv := e.conv
	unresolved := 0
	for _, f := range conv.CrisisFlags {
		if !f.Resolved {
			unresolved++
		}
	}

	return &Summary{
		ConversationID:  conv.ID,
		ServiceType:     conv.ServiceType,
		Status:          conv.Status,
		SessionCount:    conv.SessionCount,
		TotalMessages:   conv.TotalMessages,
		RecentTopics:    topicsForMessages(lastN(conv.Messages, summaryWindow)),
		CrisisFlagCount: len(conv.CrisisFlags),
		UnresolvedFlags: unresolved,
		Goals:           append([]string(nil), conv.Goals...),
		LastActivity:    conv.UpdatedAt,
	}, nil
}

// UpdateGoals replaces the goal list wholesale.
func (s *MemoryStore) UpdateGoals(ctx context.Context, conversationID string, goals []string) ([]string, error) {
	e, ok := s.lookup(conversationID)
	if !ok {
		return nil, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.conv.Goals = append([]string(nil), goals...)
	e.conv.UpdatedAt = s.now()
	return append([]string(nil), e.conv.Goals...), nil
}

// FlagCrisis appends a crisis flag.
func (s *MemoryStore) FlagCrisis(ctx context.Context, conversationID string, params FlagParams) (*CrisisFlag, error) {
	e, ok := s.lookup(conversationID)
	if !ok {
		return nil, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := s.now()
	flag := CrisisFlag{
		ID:        ulid.Make().String(),
		Level:     params.Level,
		Keywords:  append([]string(nil), params.Keywords...),
		Timestamp: now,
		Resolved:  false,
		Escalated: params.Escalated,
	}
	e.conv.CrisisFlags = append(e.conv.CrisisFlags, flag)
	e.conv.UpdatedAt = now

	s.logger.Warn("crisis flagged",
		zap.String("conversation_id", conversationID),
		zap.String("level", string(params.Level)),
		zap.Bool("escalated", params.Escalated),
	)

	out := flag
	return &out, nil
}

// StartSession increments the session counter.
func (s *MemoryStore) StartSession(ctx context.Context, conversationID string) (int, error) {
	e, ok := s.lookup(conversationID)
	if !ok {
		return 0, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.conv.SessionCount++
	e.conv.UpdatedAt = s.now()
	return e.conv.SessionCount, nil
}

// SetStatus records an administrative lifecycle change.
func (s *MemoryStore) SetStatus(ctx context.Context, conversationID string, status Status) error {
	if status != StatusActive && status != StatusClosed {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}

	e, ok := s.lookup(conversationID)
	if !ok {
		return ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.conv.Status = status
	e.conv.UpdatedAt = s.now()
	return nil
}

// ResolveFlag marks a crisis flag resolved.
func (s *MemoryStore) ResolveFlag(ctx context.Context, conversationID, flagID string) error {
	e, ok := s.lookup(conversationID)
	if !ok {
		return ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.conv.CrisisFlags {
		if e.conv.CrisisFlags[i].ID == flagID {
			e.conv.CrisisFlags[i].Resolved = true
			e.conv.UpdatedAt = s.now()
			return nil
		}
	}
	return fmt.Errorf("%w: crisis flag %s", ErrNotFound, flagID)
}

// Analytics computes an aggregate snapshot.
func (s *MemoryStore) Analytics(ctx context.Context) (*Analytics, error) {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.conversations))
	for _, e := range s.conversations {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	a := &Analytics{
		ByServiceType:       make(map[string]int),
		RecentConversations: []SearchResult{},
	}

	var sessionSum int
	var recent []SearchResult
	for _, e := range entries {
		e.mu.Lock()
		conv := e.conv
		a.TotalConversations++
		if conv.Status == StatusActive {
			a.ActiveConversations++
		}
		a.TotalMessages += conv.TotalMessages
		a.TotalCrisisFlags += len(conv.CrisisFlags)
		a.ByServiceType[conv.ServiceType]++
		sessionSum += conv.SessionCount
		recent = append(recent, projection(conv))
		e.mu.Unlock()
	}

	// Explicit zero guard: an empty store reports 0, never NaN.
	if a.TotalConversations > 0 {
		a.AverageSessionCount = float64(sessionSum) / float64(a.TotalConversations)
	}

	sort.Slice(recent, func(i, j int) bool {
		return recent[i].LastActivity.After(recent[j].LastActivity)
	})
	if len(recent) > recentConversationsLimit {
		recent = recent[:recentConversationsLimit]
	}
	a.RecentConversations = recent

	return a, nil
}

// Search scans message content for a case-insensitive substring match.
func (s *MemoryStore) Search(ctx context.Context, query string, filters SearchFilters) ([]SearchResult, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: search query is empty", ErrInvalidInput)
	}
	needle := strings.ToLower(query)

	s.mu.RLock()
	entries := make([]*entry, 0, len(s.conversations))
	for _, e := range s.conversations {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	var out []SearchResult
	for _, e := range entries {
		e.mu.Lock()
		conv := e.conv
		if matchesFilters(conv, filters) {
			for _, m := range conv.Messages {
				if strings.Contains(strings.ToLower(m.Content), needle) {
					out = append(out, projection(conv))
					break
				}
			}
		}
		e.mu.Unlock()
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

func matchesFilters(conv *Conversation, f SearchFilters) bool {
	if f.ServiceType != "" && conv.ServiceType != f.ServiceType {
		return false
	}
	if f.ClientID != "" && conv.ClientID != f.ClientID {
		return false
	}
	if f.CounselorID != "" && conv.CounselorID != f.CounselorID {
		return false
	}
	return true
}

func projection(conv *Conversation) SearchResult {
	return SearchResult{
		ID:            conv.ID,
		ClientID:      conv.ClientID,
		CounselorID:   conv.CounselorID,
		ServiceType:   conv.ServiceType,
		LastActivity:  conv.UpdatedAt,
		TotalMessages: conv.TotalMessages,
	}
}

func cloneMetadata(m *MessageMetadata) *MessageMetadata {
	if m == nil {
		return nil
	}
	out := &MessageMetadata{CopingSkill: m.CopingSkill}
	if m.Mood != nil {
		v := *m.Mood
		out.Mood = &v
	}
	return out
}

func cloneConversation(conv *Conversation) *Conversation {
	out := *conv
	out.Messages = make([]Message, len(conv.Messages))
	for i, m := range conv.Messages {
		out.Messages[i] = m
		out.Messages[i].Metadata = cloneMetadata(m.Metadata)
	}
	out.CrisisFlags = make([]CrisisFlag, len(conv.CrisisFlags))
	for i, f := range conv.CrisisFlags {
		out.CrisisFlags[i] = f
		out.CrisisFlags[i].Keywords = append([]string(nil), f.Keywords...)
	}
	out.Goals = append([]string(nil), conv.Goals...)
	out.Progress = Progress{
		MoodHistory:  append([]MoodEntry(nil), conv.Progress.MoodHistory...),
		CopingSkills: append([]ProgressEntry(nil), conv.Progress.CopingSkills...),
		Challenges:   append([]ProgressEntry(nil), conv.Progress.Challenges...),
		Achievements: append([]ProgressEntry(nil), conv.Progress.Achievements...),
	}
	return &out
}

var _ Store = (*MemoryStore)(nil)
