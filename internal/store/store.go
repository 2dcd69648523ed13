// Package store implements domain.Store on SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"guestdesk/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements domain.Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection: SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, logger: logger}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS clients (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		channel     TEXT NOT NULL,
		external_id TEXT NOT NULL,
		name        TEXT NOT NULL DEFAULT '',
		username    TEXT NOT NULL DEFAULT '',
		language    TEXT NOT NULL DEFAULT 'ru',
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(channel, external_id)
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id                   INTEGER PRIMARY KEY AUTOINCREMENT,
		client_id            INTEGER NOT NULL REFERENCES clients(id),
		status               TEXT NOT NULL DEFAULT 'in_progress',
		category             TEXT NOT NULL DEFAULT 'general',
		assigned_operator_id INTEGER REFERENCES operators(id),
		created_at           DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at           DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_client ON conversations(client_id, status);
	CREATE INDEX IF NOT EXISTS idx_conversations_status ON conversations(status, updated_at);

	CREATE TABLE IF NOT EXISTS messages (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id INTEGER NOT NULL REFERENCES conversations(id),
		sender          TEXT NOT NULL,
		text            TEXT NOT NULL,
		created_at      DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conv ON messages(conversation_id, created_at);

	CREATE TABLE IF NOT EXISTS operators (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		name           TEXT NOT NULL,
		notify_chat_id TEXT NOT NULL DEFAULT '',
		is_active      INTEGER NOT NULL DEFAULT 1,
		created_at     DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS knowledge (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		question        TEXT NOT NULL,
		answer          TEXT NOT NULL,
		keywords        TEXT NOT NULL DEFAULT '',
		added_by_id     INTEGER REFERENCES operators(id),
		conversation_id INTEGER REFERENCES conversations(id),
		is_active       INTEGER NOT NULL DEFAULT 1,
		times_used      INTEGER NOT NULL DEFAULT 0,
		created_at      DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at      DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_knowledge_active ON knowledge(is_active);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- Clients ---

// GetOrCreateClient upserts on the (channel, external_id) unique constraint,
// so concurrent first messages from the same guest resolve to one row.
func (s *SQLiteStore) GetOrCreateClient(ctx context.Context, channel, externalID, name, username string) (*domain.Client, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO clients (channel, external_id, name, username)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(channel, external_id) DO UPDATE SET
			name     = CASE WHEN excluded.name     != '' THEN excluded.name     ELSE clients.name     END,
			username = CASE WHEN excluded.username != '' THEN excluded.username ELSE clients.username END`,
		channel, externalID, name, username,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert client: %w", err)
	}

	var c domain.Client
	err = s.db.QueryRowContext(ctx,
		`SELECT id, channel, external_id, name, username, language, created_at
		 FROM clients WHERE channel = ? AND external_id = ?`,
		channel, externalID,
	).Scan(&c.ID, &c.Channel, &c.ExternalID, &c.Name, &c.Username, &c.Language, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("load client: %w", err)
	}
	return &c, nil
}

func (s *SQLiteStore) ClientByID(ctx context.Context, id int64) (*domain.Client, error) {
	var c domain.Client
	err := s.db.QueryRowContext(ctx,
		`SELECT id, channel, external_id, name, username, language, created_at
		 FROM clients WHERE id = ?`, id,
	).Scan(&c.ID, &c.Channel, &c.ExternalID, &c.Name, &c.Username, &c.Language, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// --- Conversations ---

const conversationCols = `id, client_id, status, category, assigned_operator_id, created_at, updated_at`

func (s *SQLiteStore) scanConversation(row *sql.Row) (*domain.Conversation, error) {
	var c domain.Conversation
	var operatorID sql.NullInt64
	err := row.Scan(&c.ID, &c.ClientID, &c.Status, &c.Category, &operatorID, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if operatorID.Valid {
		c.AssignedOperatorID = &operatorID.Int64
	}
	return &c, nil
}

// FindActiveConversation returns the most recently updated open session for
// the client, or nil. bot_completed and closed are both terminal here.
func (s *SQLiteStore) FindActiveConversation(ctx context.Context, clientID int64) (*domain.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationCols+` FROM conversations
		 WHERE client_id = ? AND status IN ('in_progress', 'needs_operator', 'operator_active')
		 ORDER BY updated_at DESC LIMIT 1`, clientID,
	)
	return s.scanConversation(row)
}

func (s *SQLiteStore) CreateConversation(ctx context.Context, clientID int64) (*domain.Conversation, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (client_id) VALUES (?)`, clientID,
	)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetConversation(ctx, id)
}

func (s *SQLiteStore) GetConversation(ctx context.Context, id int64) (*domain.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationCols+` FROM conversations WHERE id = ?`, id,
	)
	return s.scanConversation(row)
}

func (s *SQLiteStore) UpdateConversationStatus(ctx context.Context, id int64, expected *domain.ConversationStatus, next domain.ConversationStatus, operatorID *int64) (bool, error) {
	var (
		res sql.Result
		err error
	)
	if expected != nil {
		res, err = s.db.ExecContext(ctx,
			`UPDATE conversations
			 SET status = ?, assigned_operator_id = COALESCE(?, assigned_operator_id), updated_at = CURRENT_TIMESTAMP
			 WHERE id = ? AND status = ?`,
			next, operatorID, id, *expected,
		)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE conversations
			 SET status = ?, assigned_operator_id = COALESCE(?, assigned_operator_id), updated_at = CURRENT_TIMESTAMP
			 WHERE id = ?`,
			next, operatorID, id,
		)
	}
	if err != nil {
		return false, fmt.Errorf("update conversation status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ClaimConversation is the take action: compare-and-swap into operator_active.
// Loses against a concurrent claim, a closed conversation, or a missing id.
func (s *SQLiteStore) ClaimConversation(ctx context.Context, id, operatorID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations
		 SET status = 'operator_active', assigned_operator_id = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status NOT IN ('closed', 'operator_active')`,
		operatorID, id,
	)
	if err != nil {
		return false, fmt.Errorf("claim conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) CloseStale(ctx context.Context, idleCutoff, escalatedCutoff time.Time) (int64, error) {
	res1, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET status = 'closed', updated_at = CURRENT_TIMESTAMP
		 WHERE status IN ('in_progress', 'bot_completed') AND updated_at < ?`,
		idleCutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("close idle conversations: %w", err)
	}
	n1, err := res1.RowsAffected()
	if err != nil {
		return 0, err
	}

	res2, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET status = 'closed', updated_at = CURRENT_TIMESTAMP
		 WHERE status = 'needs_operator' AND updated_at < ?`,
		escalatedCutoff.UTC(),
	)
	if err != nil {
		return n1, fmt.Errorf("close stale escalations: %w", err)
	}
	n2, err := res2.RowsAffected()
	if err != nil {
		return n1, err
	}
	return n1 + n2, nil
}

// --- Messages ---

func (s *SQLiteStore) AppendMessage(ctx context.Context, conversationID int64, sender domain.Sender, text string) (*domain.Message, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, sender, text, created_at) VALUES (?, ?, ?, ?)`,
		conversationID, sender, text, now,
	)
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	// A message is activity: bump the conversation timestamp so the sweeper
	// sees it as fresh.
	_, _ = s.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`, now, conversationID,
	)

	return &domain.Message{
		ID:             id,
		ConversationID: conversationID,
		Sender:         sender,
		Text:           text,
		CreatedAt:      now,
	}, nil
}

func (s *SQLiteStore) RecentHistory(ctx context.Context, conversationID int64, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 10
	}

	// Last N messages, returned oldest first.
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, sender, text, created_at
		 FROM messages WHERE conversation_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`, conversationID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Sender, &m.Text, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// LastQAPair finds the newest operator answer and the client question that
// preceded it within the last 10 messages.
func (s *SQLiteStore) LastQAPair(ctx context.Context, conversationID int64) (string, string, bool, error) {
	msgs, err := s.RecentHistory(ctx, conversationID, 10)
	if err != nil {
		return "", "", false, err
	}

	var question, answer string
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.Sender == domain.SenderOperator && answer == "" {
			answer = m.Text
		} else if m.Sender == domain.SenderClient && answer != "" {
			question = m.Text
			break
		}
	}
	if question == "" || answer == "" {
		return "", "", false, nil
	}
	return question, answer, true, nil
}

// --- Knowledge ---

const knowledgeCols = `id, question, answer, keywords, added_by_id, conversation_id, is_active, times_used, created_at, updated_at`

func scanKnowledge(rows *sql.Rows) ([]domain.KnowledgeEntry, error) {
	var entries []domain.KnowledgeEntry
	for rows.Next() {
		var e domain.KnowledgeEntry
		var addedBy, convID sql.NullInt64
		if err := rows.Scan(&e.ID, &e.Question, &e.Answer, &e.Keywords,
			&addedBy, &convID, &e.IsActive, &e.TimesUsed, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		if addedBy.Valid {
			e.AddedByID = &addedBy.Int64
		}
		if convID.Valid {
			e.ConversationID = &convID.Int64
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) ListActiveKnowledgeEntries(ctx context.Context) ([]domain.KnowledgeEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+knowledgeCols+` FROM knowledge WHERE is_active = 1 ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanKnowledge(rows)
}

func (s *SQLiteStore) ListKnowledgeEntries(ctx context.Context, onlyActive bool) ([]domain.KnowledgeEntry, error) {
	query := `SELECT ` + knowledgeCols + ` FROM knowledge`
	if onlyActive {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY times_used DESC, id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanKnowledge(rows)
}

func (s *SQLiteStore) IncrementKnowledgeUsage(ctx context.Context, entryID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE knowledge SET times_used = times_used + 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		entryID,
	)
	return err
}

func (s *SQLiteStore) InsertKnowledgeEntry(ctx context.Context, entry domain.KnowledgeEntry) (*domain.KnowledgeEntry, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO knowledge (question, answer, keywords, added_by_id, conversation_id, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 1, ?, ?)`,
		entry.Question, entry.Answer, entry.Keywords, entry.AddedByID, entry.ConversationID, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert knowledge entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	entry.ID = id
	entry.IsActive = true
	entry.CreatedAt = now
	entry.UpdatedAt = now
	s.logger.Info("knowledge entry added", "id", id, "question_len", len(entry.Question))
	return &entry, nil
}

func (s *SQLiteStore) SetKnowledgeActive(ctx context.Context, id int64, active bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE knowledge SET is_active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		active, id,
	)
	return err
}

// --- Operators ---

const operatorCols = `id, name, notify_chat_id, is_active, created_at`

func (s *SQLiteStore) AddOperator(ctx context.Context, op domain.Operator) (*domain.Operator, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO operators (name, notify_chat_id, is_active) VALUES (?, ?, ?)`,
		op.Name, op.NotifyChatID, op.IsActive,
	)
	if err != nil {
		return nil, fmt.Errorf("add operator: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.OperatorByID(ctx, id)
}

func (s *SQLiteStore) scanOperator(row *sql.Row) (*domain.Operator, error) {
	var op domain.Operator
	err := row.Scan(&op.ID, &op.Name, &op.NotifyChatID, &op.IsActive, &op.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &op, nil
}

func (s *SQLiteStore) OperatorByID(ctx context.Context, id int64) (*domain.Operator, error) {
	return s.scanOperator(s.db.QueryRowContext(ctx,
		`SELECT `+operatorCols+` FROM operators WHERE id = ?`, id,
	))
}

func (s *SQLiteStore) OperatorByChatID(ctx context.Context, chatID string) (*domain.Operator, error) {
	if chatID == "" {
		return nil, nil
	}
	return s.scanOperator(s.db.QueryRowContext(ctx,
		`SELECT `+operatorCols+` FROM operators WHERE notify_chat_id = ?`, chatID,
	))
}

func (s *SQLiteStore) ListOperators(ctx context.Context) ([]domain.Operator, error) {
	return s.listOperators(ctx, `SELECT `+operatorCols+` FROM operators ORDER BY id`)
}

func (s *SQLiteStore) ListNotifiableOperators(ctx context.Context) ([]domain.Operator, error) {
	return s.listOperators(ctx,
		`SELECT `+operatorCols+` FROM operators WHERE is_active = 1 AND notify_chat_id != '' ORDER BY id`)
}

func (s *SQLiteStore) listOperators(ctx context.Context, query string) ([]domain.Operator, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ops []domain.Operator
	for rows.Next() {
		var op domain.Operator
		if err := rows.Scan(&op.ID, &op.Name, &op.NotifyChatID, &op.IsActive, &op.CreatedAt); err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

func (s *SQLiteStore) SetOperatorActive(ctx context.Context, id int64, active bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE operators SET is_active = ? WHERE id = ?`, active, id,
	)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
