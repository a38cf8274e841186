package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wechat-daily-report/internal/domain"
)

// TaskStatus представляет статус задачи выгрузки
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Task представляет собой одну задачу выгрузки
type Task struct {
	ID           string
	Status       TaskStatus
	Window       domain.TimeWindow
	Rooms        []string
	Result       []domain.RoomResult
	Cached       bool
	ErrorMessage string
	CreatedAt    time.Time
	ExpiresAt    time.Time // Для автоматической очистки
}

// TaskStore управляет хранением и извлечением задач
type TaskStore struct {
	tasks map[string]*Task
	mutex sync.RWMutex
	now   func() time.Time
}

// NewTaskStore создает новый экземпляр TaskStore
func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks: make(map[string]*Task),
		now:   time.Now,
	}
}

// CreateTask создает новую задачу со статусом 'pending'
func (ts *TaskStore) CreateTask(taskID string, rooms []string, window domain.TimeWindow, ttl time.Duration) {
	ts.mutex.Lock()
	defer ts.mutex.Unlock()

	now := ts.now()
	ts.tasks[taskID] = &Task{
		ID:        taskID,
		Status:    TaskStatusPending,
		Window:    window,
		Rooms:     append([]string(nil), rooms...),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// UpdateTaskStatus обновляет статус задачи
func (ts *TaskStore) UpdateTaskStatus(taskID string, status TaskStatus) error {
	return ts.update(taskID, func(task *Task) {
		task.Status = status
	})
}

// UpdateTaskResult сохраняет результат и переводит задачу в 'completed'
func (ts *TaskStore) UpdateTaskResult(taskID string, result []domain.RoomResult, cached bool) error {
	return ts.update(taskID, func(task *Task) {
		task.Status = TaskStatusCompleted
		task.Result = result
		task.Cached = cached
	})
}

// UpdateTaskError сохраняет сообщение об ошибке и переводит задачу в 'failed'.
// Частичный результат, если он есть, сохраняется.
func (ts *TaskStore) UpdateTaskError(taskID string, errorMessage string, result []domain.RoomResult) error {
	return ts.update(taskID, func(task *Task) {
		task.Status = TaskStatusFailed
		task.ErrorMessage = errorMessage
		task.Result = result
	})
}

func (ts *TaskStore) update(taskID string, fn func(*Task)) error {
	ts.mutex.Lock()
	defer ts.mutex.Unlock()

	task, exists := ts.tasks[taskID]
	if !exists {
		return fmt.Errorf("task %s not found", taskID)
	}
	fn(task)
	return nil
}

// GetTask возвращает копию задачи по ее ID
func (ts *TaskStore) GetTask(taskID string) (*Task, error) {
	ts.mutex.RLock()
	defer ts.mutex.RUnlock()

	task, exists := ts.tasks[taskID]
	if !exists {
		return nil, fmt.Errorf("task %s not found", taskID)
	}

	snapshot := *task
	return &snapshot, nil
}

// CleanupExpired удаляет просроченные задачи из хранилища
func (ts *TaskStore) CleanupExpired() {
	ts.mutex.Lock()
	defer ts.mutex.Unlock()

	now := ts.now()
	for taskID, task := range ts.tasks {
		if now.After(task.ExpiresAt) {
			delete(ts.tasks, taskID)
		}
	}
}

// StartCleanupTicker запускает тикер для периодической очистки просроченных задач
func (ts *TaskStore) StartCleanupTicker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ts.CleanupExpired()
			}
		}
	}()
}
