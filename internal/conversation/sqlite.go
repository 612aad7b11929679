package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/fyrsmithlabs/counseld/internal/taxonomy"
)

// storedTimeFormat is fixed-width UTC so lexicographic ORDER BY on the
// TEXT column matches chronological order.
const storedTimeFormat = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore is the durable Store implementation. The message log is
// append-only: rows in messages and crisis_flags are inserted, never
// updated or deleted (crisis_flags.resolved is the one sanctioned
// exception). Mutations run in immediate transactions so a failed append
// never moves total_messages or updated_at.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewSQLiteStore opens or creates the database at dbPath and applies the
// schema.
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id             TEXT PRIMARY KEY,
		client_id      TEXT NOT NULL,
		counselor_id   TEXT,
		service_type   TEXT NOT NULL,
		status         TEXT NOT NULL DEFAULT 'active',
		session_count  INTEGER NOT NULL DEFAULT 1,
		total_messages INTEGER NOT NULL DEFAULT 0,
		goals          TEXT,
		created_at     TEXT NOT NULL,
		updated_at     TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_client ON conversations(client_id);
	CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at DESC);
	CREATE INDEX IF NOT EXISTS idx_conversations_service ON conversations(service_type);

	CREATE TABLE IF NOT EXISTS messages (
		id              TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id),
		seq             INTEGER NOT NULL,
		role            TEXT NOT NULL,
		content         TEXT NOT NULL,
		counselor_id    TEXT,
		mood            INTEGER,
		coping_skill    TEXT,
		created_at      TEXT NOT NULL,
		UNIQUE(conversation_id, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, seq);

	CREATE TABLE IF NOT EXISTS crisis_flags (
		id              TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id),
		level           TEXT NOT NULL,
		keywords        TEXT,
		escalated       INTEGER NOT NULL DEFAULT 0,
		resolved        INTEGER NOT NULL DEFAULT 0,
		created_at      TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_flags_conversation ON crisis_flags(conversation_id);

	CREATE TABLE IF NOT EXISTS progress_entries (
		id              TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id),
		kind            TEXT NOT NULL,
		mood            INTEGER,
		note            TEXT,
		recorded_at     TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_progress_conversation ON progress_entries(conversation_id, kind);
	`
	_, err := s.db.Exec(schema)
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(storedTimeFormat)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(storedTimeFormat, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func encodeStrings(ss []string) (string, error) {
	if len(ss) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(ss)
	if err != nil {
		return "", fmt.Errorf("encoding string list: %w", err)
	}
	return string(b), nil
}

func decodeStrings(raw sql.NullString) []string {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw.String), &out); err != nil {
		return nil
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Create allocates a new conversation row, appending the initial message
// in the same transaction when present.
func (s *SQLiteStore) Create(ctx context.Context, params CreateParams) (*Conversation, error) {
	if err := validateCreate(params); err != nil {
		return nil, err
	}

	now := s.now()
	id := uuid.New().String()
	goals, err := encodeStrings(nil)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	total := 0
	if params.InitialMessage != "" {
		total = 1
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (id, client_id, counselor_id, service_type, status, session_count, total_messages, goals, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?, ?)`,
		id, params.ClientID, nullable(params.CounselorID), params.ServiceType,
		string(StatusActive), total, goals, formatTime(now), formatTime(now),
	); err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}

	if params.InitialMessage != "" {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, conversation_id, seq, role, content, counselor_id, mood, coping_skill, created_at)
			VALUES (?, ?, 1, ?, ?, NULL, NULL, NULL, ?)`,
			ulid.Make().String(), id, string(RoleUser), params.InitialMessage, formatTime(now),
		); err != nil {
			return nil, fmt.Errorf("insert initial message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.logger.Info("conversation created",
		zap.String("conversation_id", id),
		zap.String("client_id", params.ClientID),
		zap.String("service_type", params.ServiceType),
	)

	return s.Get(ctx, id)
}

// AddMessage appends a message in a single immediate transaction.
func (s *SQLiteStore) AddMessage(ctx context.Context, conversationID string, msg NewMessage) (*Message, error) {
	if err := validateNewMessage(msg); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	err = tx.QueryRowContext(ctx,
		`SELECT total_messages FROM conversations WHERE id = ?`, conversationID,
	).Scan(&total)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	now := s.now()
	var lastTS sql.NullString
	if err := tx.QueryRowContext(ctx,
		`SELECT MAX(created_at) FROM messages WHERE conversation_id = ?`, conversationID,
	).Scan(&lastTS); err != nil {
		return nil, fmt.Errorf("load last timestamp: %w", err)
	}
	ts := now
	if lastTS.Valid {
		if last := parseTime(lastTS.String); now.UTC().Before(last) {
			ts = last
		}
	}

	var mood sql.NullInt64
	var copingSkill sql.NullString
	if msg.Metadata != nil {
		if msg.Metadata.Mood != nil {
			mood = sql.NullInt64{Int64: int64(*msg.Metadata.Mood), Valid: true}
		}
		copingSkill = nullable(msg.Metadata.CopingSkill)
	}

	stored := Message{
		ID:          ulid.Make().String(),
		Role:        msg.Role,
		Content:     msg.Content,
		Timestamp:   ts.UTC(),
		CounselorID: msg.CounselorID,
		Metadata:    cloneMetadata(msg.Metadata),
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, seq, role, content, counselor_id, mood, coping_skill, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.ID, conversationID, total+1, string(stored.Role), stored.Content,
		nullable(stored.CounselorID), mood, copingSkill, formatTime(ts),
	); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	// Progress side effect rides the same transaction as the append.
	if mood.Valid {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO progress_entries (id, conversation_id, kind, mood, note, recorded_at)
			VALUES (?, ?, 'mood', ?, NULL, ?)`,
			ulid.Make().String(), conversationID, mood, formatTime(ts),
		); err != nil {
			return nil, fmt.Errorf("insert mood entry: %w", err)
		}
	}
	if copingSkill.Valid {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO progress_entries (id, conversation_id, kind, mood, note, recorded_at)
			VALUES (?, ?, 'coping_skill', NULL, ?, ?)`,
			ulid.Make().String(), conversationID, copingSkill, formatTime(ts),
		); err != nil {
			return nil, fmt.Errorf("insert coping entry: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations SET total_messages = ?, updated_at = ? WHERE id = ?`,
		total+1, formatTime(ts), conversationID,
	); err != nil {
		return nil, fmt.Errorf("update counters: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return &stored, nil
}

// Get retrieves a conversation with its full transcript, flags, and
// progress record.
func (s *SQLiteStore) Get(ctx context.Context, conversationID string) (*Conversation, error) {
	conv, err := s.loadConversationRow(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if conv.Messages, err = s.loadMessages(ctx, conversationID, 0); err != nil {
		return nil, err
	}
	if conv.CrisisFlags, err = s.loadFlags(ctx, conversationID); err != nil {
		return nil, err
	}
	if err = s.loadProgress(ctx, conversationID, &conv.Progress); err != nil {
		return nil, err
	}

	return conv, nil
}

func (s *SQLiteStore) loadConversationRow(ctx context.Context, id string) (*Conversation, error) {
	var (
		conv        Conversation
		counselorID sql.NullString
		goals       sql.NullString
		status      string
		createdAt   string
		updatedAt   string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, client_id, counselor_id, service_type, status, session_count, total_messages, goals, created_at, updated_at
		FROM conversations WHERE id = ?`, id,
	).Scan(&conv.ID, &conv.ClientID, &counselorID, &conv.ServiceType, &status,
		&conv.SessionCount, &conv.TotalMessages, &goals, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	conv.CounselorID = counselorID.String
	conv.Status = Status(status)
	conv.Goals = decodeStrings(goals)
	conv.CreatedAt = parseTime(createdAt)
	conv.UpdatedAt = parseTime(updatedAt)
	conv.Messages = []Message{}
	return &conv, nil
}

// loadMessages returns messages in seq order; limit <= 0 means all, a
// positive limit returns the trailing window.
func (s *SQLiteStore) loadMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	query := `
		SELECT id, role, content, counselor_id, mood, coping_skill, created_at
		FROM messages WHERE conversation_id = ? ORDER BY seq`
	args := []any{conversationID}
	if limit > 0 {
		// Trailing window: take the last N by seq, then restore order.
		query = `
			SELECT id, role, content, counselor_id, mood, coping_skill, created_at FROM (
				SELECT id, role, content, counselor_id, mood, coping_skill, created_at, seq
				FROM messages WHERE conversation_id = ? ORDER BY seq DESC LIMIT ?
			) ORDER BY seq`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	out := []Message{}
	for rows.Next() {
		var (
			m           Message
			counselorID sql.NullString
			mood        sql.NullInt64
			copingSkill sql.NullString
			createdAt   string
			role        string
		)
		if err := rows.Scan(&m.ID, &role, &m.Content, &counselorID, &mood, &copingSkill, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = Role(role)
		m.CounselorID = counselorID.String
		m.Timestamp = parseTime(createdAt)
		if mood.Valid || copingSkill.Valid {
			m.Metadata = &MessageMetadata{CopingSkill: copingSkill.String}
			if mood.Valid {
				v := int(mood.Int64)
				m.Metadata.Mood = &v
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) loadFlags(ctx context.Context, conversationID string) ([]CrisisFlag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, level, keywords, escalated, resolved, created_at
		FROM crisis_flags WHERE conversation_id = ? ORDER BY created_at, id`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load crisis flags: %w", err)
	}
	defer rows.Close()

	var out []CrisisFlag
	for rows.Next() {
		var (
			f         CrisisFlag
			level     string
			keywords  sql.NullString
			escalated int
			resolved  int
			createdAt string
		)
		if err := rows.Scan(&f.ID, &level, &keywords, &escalated, &resolved, &createdAt); err != nil {
			return nil, fmt.Errorf("scan crisis flag: %w", err)
		}
		f.Level = taxonomy.Tier(level)
		f.Keywords = decodeStrings(keywords)
		f.Escalated = escalated != 0
		f.Resolved = resolved != 0
		f.Timestamp = parseTime(createdAt)
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) loadProgress(ctx context.Context, conversationID string, p *Progress) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, mood, note, recorded_at
		FROM progress_entries WHERE conversation_id = ? ORDER BY recorded_at, id`, conversationID)
	if err != nil {
		return fmt.Errorf("load progress: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			kind       string
			mood       sql.NullInt64
			note       sql.NullString
			recordedAt string
		)
		if err := rows.Scan(&kind, &mood, &note, &recordedAt); err != nil {
			return fmt.Errorf("scan progress entry: %w", err)
		}
		ts := parseTime(recordedAt)
		switch kind {
		case "mood":
			p.MoodHistory = append(p.MoodHistory, MoodEntry{Value: int(mood.Int64), RecordedAt: ts})
		case "coping_skill":
			p.CopingSkills = append(p.CopingSkills, ProgressEntry{Note: note.String, RecordedAt: ts})
		case "challenge":
			p.Challenges = append(p.Challenges, ProgressEntry{Note: note.String, RecordedAt: ts})
		case "achievement":
			p.Achievements = append(p.Achievements, ProgressEntry{Note: note.String, RecordedAt: ts})
		}
	}
	return rows.Err()
}

// ListByClient returns a client's conversations, most recently active
// first.
func (s *SQLiteStore) ListByClient(ctx context.Context, clientID string) ([]*Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM conversations WHERE client_id = ? ORDER BY updated_at DESC`, clientID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan conversation id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*Conversation, 0, len(ids))
	for _, id := range ids {
		conv, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, conv)
	}
	return out, nil
}

// History returns the trailing message window. Lenient on unknown ids.
func (s *SQLiteStore) History(ctx context.Context, conversationID string, maxMessages int) ([]Message, error) {
	if maxMessages <= 0 {
		maxMessages = historyDefaultLimit
	}
	return s.loadMessages(ctx, conversationID, maxMessages)
}

// Summarize derives a digest; (nil, nil) for unknown ids.
func (s *SQLiteStore) Summarize(ctx context.Context, conversationID string) (*Summary, error) {
	conv, err := s.loadConversationRow(ctx, conversationID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	recent, err := s.loadMessages(ctx, conversationID, summaryWindow)
	if err != nil {
		return nil, err
	}

	var flagCount, unresolved int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN resolved = 0 THEN 1 ELSE 0 END), 0)
		FROM crisis_flags WHERE conversation_id = ?`, conversationID,
	).Scan(&flagCount, &unresolved); err != nil {
		return nil, fmt.Errorf("count crisis flags: %w", err)
	}

	return &Summary{
		ConversationID:  conv.ID,
		ServiceType:     conv.ServiceType,
		Status:          conv.Status,
		SessionCount:    conv.SessionCount,
		TotalMessages:   conv.TotalMessages,
		RecentTopics:    topicsForMessages(recent),
		CrisisFlagCount: flagCount,
		UnresolvedFlags: unresolved,
		Goals:           conv.Goals,
		LastActivity:    conv.UpdatedAt,
	}, nil
}

// UpdateGoals replaces the goal list wholesale.
func (s *SQLiteStore) UpdateGoals(ctx context.Context, conversationID string, goals []string) ([]string, error) {
	encoded, err := encodeStrings(goals)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET goals = ?, updated_at = ? WHERE id = ?`,
		encoded, formatTime(s.now()), conversationID)
	if err != nil {
		return nil, fmt.Errorf("update goals: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return append([]string(nil), goals...), nil
}

// FlagCrisis appends a crisis flag.
func (s *SQLiteStore) FlagCrisis(ctx context.Context, conversationID string, params FlagParams) (*CrisisFlag, error) {
	keywords, err := encodeStrings(params.Keywords)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM conversations WHERE id = ?`, conversationID).Scan(&exists)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	now := s.now()
	flag := CrisisFlag{
		ID:        ulid.Make().String(),
		Level:     params.Level,
		Keywords:  append([]string(nil), params.Keywords...),
		Timestamp: now.UTC(),
		Escalated: params.Escalated,
	}

	escalated := 0
	if params.Escalated {
		escalated = 1
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO crisis_flags (id, conversation_id, level, keywords, escalated, resolved, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)`,
		flag.ID, conversationID, string(params.Level), keywords, escalated, formatTime(now),
	); err != nil {
		return nil, fmt.Errorf("insert crisis flag: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`,
		formatTime(now), conversationID,
	); err != nil {
		return nil, fmt.Errorf("touch conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.logger.Warn("crisis flagged",
		zap.String("conversation_id", conversationID),
		zap.String("level", string(params.Level)),
		zap.Bool("escalated", params.Escalated),
	)

	return &flag, nil
}

// StartSession increments the session counter and returns the new count.
func (s *SQLiteStore) StartSession(ctx context.Context, conversationID string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var count int
	err = tx.QueryRowContext(ctx,
		`SELECT session_count FROM conversations WHERE id = ?`, conversationID).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("load session count: %w", err)
	}

	count++
	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET session_count = ?, updated_at = ? WHERE id = ?`,
		count, formatTime(s.now()), conversationID,
	); err != nil {
		return 0, fmt.Errorf("update session count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return count, nil
}

// SetStatus records an administrative lifecycle change.
func (s *SQLiteStore) SetStatus(ctx context.Context, conversationID string, status Status) error {
	if status != StatusActive && status != StatusClosed {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), formatTime(s.now()), conversationID)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ResolveFlag marks a crisis flag resolved.
func (s *SQLiteStore) ResolveFlag(ctx context.Context, conversationID, flagID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE crisis_flags SET resolved = 1 WHERE id = ? AND conversation_id = ?`,
		flagID, conversationID)
	if err != nil {
		return fmt.Errorf("resolve flag: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: crisis flag %s", ErrNotFound, flagID)
	}
	return nil
}

// Analytics computes the aggregate snapshot with SQL aggregates.
func (s *SQLiteStore) Analytics(ctx context.Context) (*Analytics, error) {
	a := &Analytics{
		ByServiceType:       make(map[string]int),
		RecentConversations: []SearchResult{},
	}

	// COALESCE keeps the average at 0 on an empty store.
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(total_messages), 0),
		       COALESCE(AVG(session_count), 0)
		FROM conversations`,
	).Scan(&a.TotalConversations, &a.ActiveConversations, &a.TotalMessages, &a.AverageSessionCount)
	if err != nil {
		return nil, fmt.Errorf("aggregate conversations: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM crisis_flags`).Scan(&a.TotalCrisisFlags); err != nil {
		return nil, fmt.Errorf("count crisis flags: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT service_type, COUNT(*) FROM conversations GROUP BY service_type`)
	if err != nil {
		return nil, fmt.Errorf("group by service type: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, fmt.Errorf("scan service type: %w", err)
		}
		a.ByServiceType[st] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	recentRows, err := s.db.QueryContext(ctx, `
		SELECT id, client_id, counselor_id, service_type, updated_at, total_messages
		FROM conversations ORDER BY updated_at DESC LIMIT ?`, recentConversationsLimit)
	if err != nil {
		return nil, fmt.Errorf("recent conversations: %w", err)
	}
	defer recentRows.Close()
	for recentRows.Next() {
		r, err := scanProjection(recentRows)
		if err != nil {
			return nil, err
		}
		a.RecentConversations = append(a.RecentConversations, r)
	}
	return a, recentRows.Err()
}

// Search matches message content by case-insensitive substring, with
// equality filters on the conversation fields.
func (s *SQLiteStore) Search(ctx context.Context, query string, filters SearchFilters) ([]SearchResult, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: search query is empty", ErrInvalidInput)
	}

	// SQLite's lower() only folds ASCII, so the content match happens in
	// Go against the fetched rows. Keeps Unicode queries consistent with
	// the in-memory store.
	q := `
		SELECT c.id, c.client_id, c.counselor_id, c.service_type, c.updated_at, c.total_messages, m.content
		FROM conversations c
		JOIN messages m ON m.conversation_id = c.id`
	var (
		conds []string
		args  []any
	)
	if filters.ServiceType != "" {
		conds = append(conds, `c.service_type = ?`)
		args = append(args, filters.ServiceType)
	}
	if filters.ClientID != "" {
		conds = append(conds, `c.client_id = ?`)
		args = append(args, filters.ClientID)
	}
	if filters.CounselorID != "" {
		conds = append(conds, `c.counselor_id = ?`)
		args = append(args, filters.CounselorID)
	}
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	q += ` ORDER BY c.updated_at DESC, m.seq`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("search conversations: %w", err)
	}
	defer rows.Close()

	needle := strings.ToLower(query)
	seen := make(map[string]bool)
	var out []SearchResult
	for rows.Next() {
		var (
			r           SearchResult
			counselorID sql.NullString
			updatedAt   string
			content     string
		)
		if err := rows.Scan(&r.ID, &r.ClientID, &counselorID, &r.ServiceType, &updatedAt, &r.TotalMessages, &content); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		if seen[r.ID] || !strings.Contains(strings.ToLower(content), needle) {
			continue
		}
		seen[r.ID] = true
		r.CounselorID = counselorID.String
		r.LastActivity = parseTime(updatedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanProjection(rows *sql.Rows) (SearchResult, error) {
	var (
		r           SearchResult
		counselorID sql.NullString
		updatedAt   string
	)
	if err := rows.Scan(&r.ID, &r.ClientID, &counselorID, &r.ServiceType, &updatedAt, &r.TotalMessages); err != nil {
		return SearchResult{}, fmt.Errorf("scan projection: %w", err)
	}
	r.CounselorID = counselorID.String
	r.LastActivity = parseTime(updatedAt)
	return r, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
