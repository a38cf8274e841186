package source

import (
	"context"
	"fmt"
	"os"
	"sync"

	"wechat-daily-report/internal/adapters/parser"
	"wechat-daily-report/internal/domain"
	"wechat-daily-report/internal/ports"
)

// FileSource воспроизводит сохраненный ответ сервиса истории из файла.
// Файл читается один раз при первом запросе.
type FileSource struct {
	filePath string
	parser   ports.Parser

	once    sync.Once
	mem     *MemorySource
	loadErr error
}

// NewFileSource создает новый экземпляр FileSource.
func NewFileSource(filePath string) *FileSource {
	return &FileSource{filePath: filePath, parser: parser.NewJsonParser()}
}

var _ ports.HistorySource = (*FileSource)(nil)

// FetchPage реализует ports.HistorySource.
func (s *FileSource) FetchPage(ctx context.Context, req ports.PageRequest) ([]domain.RawRecord, error) {
	s.once.Do(s.load)
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.mem.FetchPage(ctx, req)
}

func (s *FileSource) load() {
	if s.filePath == "" {
		s.loadErr = fmt.Errorf("%w: не указан путь к файлу", domain.ErrMalformedResponse)
		return
	}

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		// Отсутствующий файл не исправится повтором запроса.
		s.loadErr = fmt.Errorf("%w: failed to read file %s: %v", domain.ErrMalformedResponse, s.filePath, err)
		return
	}

	records, err := s.parser.Parse(data)
	if err != nil {
		s.loadErr = fmt.Errorf("failed to parse %s: %w", s.filePath, err)
		return
	}
	s.mem = NewMemorySource(records)
}
