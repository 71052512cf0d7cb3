package data

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteStorage SQLite 实现的会话存储：同一个文件可以容纳多个会话，
// 每行都带 session_id，读写只作用于当前会话
type SQLiteStorage struct {
	db        *sql.DB
	sessionID string

	mu     sync.Mutex
	closed bool
}

// NewSQLiteStorage 打开（必要时创建）SQLite 会话存储
func NewSQLiteStorage(dbPath, sessionID string) (*SQLiteStorage, error) {
	if sessionID == "" {
		return nil, errors.New("session id is required")
	}

	// 确保目录存在
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite 单写者，避免连接池里出现 database is locked
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS session_storage (
			session_id TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (session_id, key)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create session_storage table: %w", err)
	}

	return &SQLiteStorage{db: db, sessionID: sessionID}, nil
}

// SessionID returns the session this storage is scoped to.
func (s *SQLiteStorage) SessionID() string {
	return s.sessionID
}

// Get returns the value stored under key for the current session.
func (s *SQLiteStorage) Get(key string) (string, bool, error) {
	if err := s.checkOpen(); err != nil {
		return "", false, err
	}
	var value string
	err := s.db.QueryRow(
		"SELECT value FROM session_storage WHERE session_id = ? AND key = ?",
		s.sessionID, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read key %q: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key for the current session.
func (s *SQLiteStorage) Set(key, value string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	_, err := s.db.Exec(`
		INSERT INTO session_storage (session_id, key, value) VALUES (?, ?, ?)
		ON CONFLICT(session_id, key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, s.sessionID, key, value)
	if err != nil {
		return fmt.Errorf("failed to write key %q: %w", key, err)
	}
	return nil
}

// Remove deletes key for the current session.
func (s *SQLiteStorage) Remove(key string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if _, err := s.db.Exec(
		"DELETE FROM session_storage WHERE session_id = ? AND key = ?",
		s.sessionID, key,
	); err != nil {
		return fmt.Errorf("failed to remove key %q: %w", key, err)
	}
	return nil
}

// Clear 删除当前会话的全部条目，其他会话不受影响
func (s *SQLiteStorage) Clear() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if _, err := s.db.Exec("DELETE FROM session_storage WHERE session_id = ?", s.sessionID); err != nil {
		return fmt.Errorf("failed to clear session %q: %w", s.sessionID, err)
	}
	return nil
}

// Close 关闭数据库连接
func (s *SQLiteStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *SQLiteStorage) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStorageClosed
	}
	return nil
}
