package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// UploadRecord is one workspace upload made on behalf of a chat tab.
type UploadRecord struct {
	UploadID       string    `json:"uploadId"`
	TabID          string    `json:"tabId"`
	ConversationID string    `json:"conversationId,omitempty"`
	FilePaths      []string  `json:"filePaths"`
	UploadedAt     time.Time `json:"timestamp"`
}

// ConversationRecord ties a chat tab to its backend conversation.
type ConversationRecord struct {
	TabID          string    `json:"tabId"`
	ConversationID string    `json:"conversationId"`
	Task           string    `json:"task,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// SaveUpload inserts or replaces an upload record.
func (s *Store) SaveUpload(ctx context.Context, rec UploadRecord) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	paths, err := json.Marshal(rec.FilePaths)
	if err != nil {
		return fmt.Errorf("encode file paths: %w", err)
	}
	if rec.UploadedAt.IsZero() {
		rec.UploadedAt = time.Now()
	}
	_, err = s.execWithRetry(`
		INSERT OR REPLACE INTO uploads (upload_id, tab_id, conversation_id, file_paths, uploaded_at)
		VALUES (?, ?, ?, ?, ?)`,
		rec.UploadID, rec.TabID, rec.ConversationID, string(paths), rec.UploadedAt.UTC())
	if err != nil {
		return fmt.Errorf("save upload: %w", err)
	}
	return nil
}

// ListUploads returns the uploads for a tab, oldest first.
func (s *Store) ListUploads(ctx context.Context, tabID string) ([]UploadRecord, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT upload_id, tab_id, conversation_id, file_paths, uploaded_at
		FROM uploads WHERE tab_id = ? ORDER BY uploaded_at ASC, upload_id ASC`, tabID)
	if err != nil {
		return nil, fmt.Errorf("query uploads: %w", err)
	}
	defer rows.Close()

	var out []UploadRecord
	for rows.Next() {
		var (
			rec   UploadRecord
			paths string
		)
		if err := rows.Scan(&rec.UploadID, &rec.TabID, &rec.ConversationID, &paths, &rec.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan upload: %w", err)
		}
		if err := json.Unmarshal([]byte(paths), &rec.FilePaths); err != nil {
			return nil, fmt.Errorf("decode file paths for %s: %w", rec.UploadID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SaveConversation records the conversation id for a tab. The first record
// wins; later calls for the same tab only fill in a missing task.
func (s *Store) SaveConversation(ctx context.Context, rec ConversationRecord) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.execWithRetry(`
		INSERT INTO conversations (tab_id, conversation_id, task, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(tab_id) DO UPDATE SET task = CASE WHEN conversations.task = '' THEN excluded.task ELSE conversations.task END`,
		rec.TabID, rec.ConversationID, rec.Task, rec.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}

// GetConversation returns the record for tabID, or nil when none exists.
func (s *Store) GetConversation(ctx context.Context, tabID string) (*ConversationRecord, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	var rec ConversationRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT tab_id, conversation_id, task, created_at FROM conversations WHERE tab_id = ?`, tabID).
		Scan(&rec.TabID, &rec.ConversationID, &rec.Task, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &rec, nil
}
