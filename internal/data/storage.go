package data

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrStorageClosed is returned by storages used after Close.
var ErrStorageClosed = errors.New("storage closed")

// NewSessionID 生成会话 ID，用于把缓存行限定在一次会话内
func NewSessionID() string {
	return uuid.New().String()
}

// SessionStorage 内存实现的会话存储（进程生命周期即会话生命周期）
type SessionStorage struct {
	items sync.Map // map[key]value
}

// NewSessionStorage 创建内存会话存储
func NewSessionStorage() *SessionStorage {
	return &SessionStorage{}
}

// Get returns the value stored under key.
func (s *SessionStorage) Get(key string) (string, bool, error) {
	val, ok := s.items.Load(key)
	if !ok {
		return "", false, nil
	}
	return val.(string), true, nil
}

// Set stores value under key.
func (s *SessionStorage) Set(key, value string) error {
	s.items.Store(key, value)
	return nil
}

// Remove deletes key. Removing a missing key is not an error.
func (s *SessionStorage) Remove(key string) error {
	s.items.Delete(key)
	return nil
}

// Clear 清空所有条目
func (s *SessionStorage) Clear() error {
	s.items.Range(func(key, _ interface{}) bool {
		s.items.Delete(key)
		return true
	})
	return nil
}

// Close is a no-op; it lets SessionStorage stand in for SQLiteStorage.
func (s *SessionStorage) Close() error {
	return nil
}
