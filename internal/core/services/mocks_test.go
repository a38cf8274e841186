package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wechat-daily-report/internal/domain"
	"wechat-daily-report/internal/ports"
)

// MockHistorySource — мок-реализация ports.HistorySource для тестирования.
type MockHistorySource struct {
	FetchPageFunc func(ctx context.Context, req ports.PageRequest) ([]domain.RawRecord, error)

	mu       sync.Mutex
	requests []ports.PageRequest
}

// FetchPage реализует интерфейс ports.HistorySource
func (m *MockHistorySource) FetchPage(ctx context.Context, req ports.PageRequest) ([]domain.RawRecord, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.FetchPageFunc != nil {
		return m.FetchPageFunc(ctx, req)
	}
	return nil, nil
}

// Requests возвращает копию всех полученных запросов.
func (m *MockHistorySource) Requests() []ports.PageRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ports.PageRequest(nil), m.requests...)
}

// pagedSource отдает заранее подготовленные страницы по смещению.
func pagedSource(pageSize int, pages ...[]domain.RawRecord) *MockHistorySource {
	return &MockHistorySource{
		FetchPageFunc: func(_ context.Context, req ports.PageRequest) ([]domain.RawRecord, error) {
			idx := req.Offset / pageSize
			if idx >= len(pages) {
				return nil, nil
			}
			return pages[idx], nil
		},
	}
}

// textRecord создает текстовую запись с указанным временем.
func textRecord(id string, ts time.Time, sender, content string) domain.RawRecord {
	return domain.RawRecord{
		ID:         id,
		Timestamp:  ts,
		SenderID:   "wxid_" + sender,
		SenderName: sender,
		Kind:       domain.MessageKind{Type: 1},
		Content:    content,
	}
}

// recordIDs возвращает идентификаторы записей по порядку.
func recordIDs(records []domain.RawRecord) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}

// seqRecords создает n текстовых записей с шагом в минуту.
func seqRecords(from int, n int, base time.Time) []domain.RawRecord {
	out := make([]domain.RawRecord, 0, n)
	for i := from; i < from+n; i++ {
		out = append(out, textRecord(fmt.Sprint(i), base.Add(time.Duration(i)*time.Minute), "user", fmt.Sprint("msg ", i)))
	}
	return out
}
