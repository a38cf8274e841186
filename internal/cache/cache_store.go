package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// CacheItem представляет кэшированное значение
type CacheItem[V any] struct {
	Data      V
	ExpiresAt time.Time
}

// CacheStore — потокобезопасный кэш с временем жизни записей
type CacheStore[V any] struct {
	cache map[string]*CacheItem[V]
	mutex sync.RWMutex
	now   func() time.Time
}

// NewCacheStore создает новый экземпляр CacheStore
func NewCacheStore[V any]() *CacheStore[V] {
	return &CacheStore[V]{
		cache: make(map[string]*CacheItem[V]),
		now:   time.Now,
	}
}

// Get извлекает кэшированный элемент по ключу
func (cs *CacheStore[V]) Get(key string) (*CacheItem[V], bool) {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()

	item, exists := cs.cache[key]
	if !exists || cs.now().After(item.ExpiresAt) {
		return nil, false
	}

	return item, true
}

// Put сохраняет элемент в кэш с указанным сроком действия
func (cs *CacheStore[V]) Put(key string, data V, ttl time.Duration) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	cs.cache[key] = &CacheItem[V]{
		Data:      data,
		ExpiresAt: cs.now().Add(ttl),
	}
}

// Len возвращает количество записей, включая просроченные, но еще не удаленные
func (cs *CacheStore[V]) Len() int {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()
	return len(cs.cache)
}

// CleanupExpired удаляет просроченные элементы из кэша
func (cs *CacheStore[V]) CleanupExpired() {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	now := cs.now()
	for key, item := range cs.cache {
		if now.After(item.ExpiresAt) {
			delete(cs.cache, key)
		}
	}
}

// StartCleanupTicker запускает периодическую очистку до отмены контекста
func (cs *CacheStore[V]) StartCleanupTicker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cs.CleanupExpired()
			}
		}
	}()
}

// CalculateFileHash вычисляет хеш SHA256 содержимого файла
func CalculateFileHash(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("не удалось открыть файл: %w", err)
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("не удалось прочитать файл: %w", err)
	}

	return fmt.Sprintf("%x", hasher.Sum(nil)), nil
}

// CalculateHashFromString вычисляет хеш SHA256 строки
func CalculateHashFromString(s string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(s)))
}
