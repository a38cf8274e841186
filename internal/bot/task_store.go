package bot

import (
	"sync"
	"time"
)

// ActiveTask — выгрузка, запущенная из чата и еще не завершенная.
type ActiveTask struct {
	TaskID    string // пусто, пока сервер не принял задачу
	Request   ExportRequest
	StartedAt time.Time
}

// TaskStore — потокобезопасное хранилище активных выгрузок по идентификатору чата.
// В одном чате одновременно выполняется не больше одной выгрузки.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[int64]ActiveTask
}

// NewTaskStore создает новый экземпляр TaskStore.
func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks: make(map[int64]ActiveTask),
	}
}

// Reserve занимает чат под новую выгрузку. Возвращает false, если в чате уже есть активная.
func (s *TaskStore) Reserve(chatID int64, req ExportRequest, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[chatID]; ok {
		return false
	}
	s.tasks[chatID] = ActiveTask{Request: req, StartedAt: now}
	return true
}

// SetTaskID запоминает идентификатор задачи, выданный сервером.
func (s *TaskStore) SetTaskID(chatID int64, taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[chatID]; ok {
		t.TaskID = taskID
		s.tasks[chatID] = t
	}
}

// Get возвращает активную выгрузку чата.
func (s *TaskStore) Get(chatID int64) (ActiveTask, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[chatID]
	return t, ok
}

// Delete освобождает чат.
func (s *TaskStore) Delete(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, chatID)
}
