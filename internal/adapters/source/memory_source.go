package source

import (
	"context"
	"sort"
	"sync"

	"wechat-daily-report/internal/domain"
	"wechat-daily-report/internal/ports"
)

// MemorySource реализует ports.HistorySource поверх записей в памяти.
// Ведет себя как сервис истории: фильтрует по комнате и окну, отдает страницы по offset/limit.
type MemorySource struct {
	mu      sync.RWMutex
	records []domain.RawRecord
}

// NewMemorySource создает новый экземпляр MemorySource.
func NewMemorySource(records []domain.RawRecord) *MemorySource {
	s := &MemorySource{}
	s.Add(records...)
	return s
}

var _ ports.HistorySource = (*MemorySource)(nil)

// Add добавляет записи, сохраняя порядок по времени.
func (s *MemorySource) Add(records ...domain.RawRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Копируем, чтобы не зависеть от изменений исходного среза.
	s.records = append(s.records, records...)
	sort.SliceStable(s.records, func(i, j int) bool {
		return s.records[i].Timestamp.Before(s.records[j].Timestamp)
	})
}

// Len возвращает общее количество записей.
func (s *MemorySource) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// FetchPage возвращает страницу записей комнаты в окне. Конец окна включается,
// как это делает сервис истории.
func (s *MemorySource) FetchPage(ctx context.Context, req ports.PageRequest) ([]domain.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.RawRecord, 0)
	for _, r := range s.records {
		if !matchesTalker(r, req.Talker) {
			continue
		}
		if r.Timestamp.Before(req.Window.Start) || r.Timestamp.After(req.Window.End) {
			continue
		}
		matched = append(matched, r)
	}

	if req.Offset >= len(matched) {
		return []domain.RawRecord{}, nil
	}
	end := len(matched)
	if req.Limit > 0 && req.Offset+req.Limit < end {
		end = req.Offset + req.Limit
	}

	page := make([]domain.RawRecord, end-req.Offset)
	copy(page, matched[req.Offset:end])
	return page, nil
}

// matchesTalker считает записи без указанной комнаты принадлежащими любой комнате.
func matchesTalker(r domain.RawRecord, talker string) bool {
	if talker == "" || (r.Talker == "" && r.TalkerName == "") {
		return true
	}
	return r.Talker == talker || r.TalkerName == talker
}
