package exporter

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"wechat-daily-report/internal/domain"
	"wechat-daily-report/internal/ports"
)

const (
	// MaxNameLength — максимальная длина имени комнаты в имени файла, в рунах.
	MaxNameLength = 50
	// FallbackName используется, если от имени комнаты ничего не осталось.
	FallbackName = "unknown_group"
)

// MarkdownFileWriter сохраняет отчеты в файлы .md.
type MarkdownFileWriter struct{}

// NewMarkdownFileWriter создает новый экземпляр MarkdownFileWriter.
func NewMarkdownFileWriter() ports.ReportWriter {
	return &MarkdownFileWriter{}
}

// Write записывает отчет целиком, заменяя существующий файл.
func (w *MarkdownFileWriter) Write(report domain.Report, outputDir string) (string, error) {
	path := filepath.Join(outputDir, ReportFileName(report.Room.Name, report.Window.Label, ".md"))
	if err := writeFileAtomic(path, []byte(report.RenderedBody)); err != nil {
		return "", &domain.WriteFailedError{Path: path, Err: err}
	}
	return path, nil
}

// ReportFileName строит имя файла отчета для комнаты и метки окна.
func ReportFileName(roomName, label, ext string) string {
	return SanitizeName(roomName) + "_" + label + ext
}

// SanitizeName заменяет недопустимые символы на "_" и ограничивает длину.
// Допустимы латиница, цифры, "_", "-" и иероглифы CJK.
func SanitizeName(name string) string {
	runes := make([]rune, 0, len(name))
	for _, r := range name {
		if !isSafeRune(r) {
			r = '_'
		}
		runes = append(runes, r)
		if len(runes) == MaxNameLength {
			break
		}
	}
	if len(runes) == 0 {
		return FallbackName
	}
	return string(runes)
}

func isSafeRune(r rune) bool {
	switch {
	case r < unicode.MaxASCII && (r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'):
		return true
	case r == '_' || r == '-':
		return true
	case r >= 0x4e00 && r <= 0x9fff:
		return true
	}
	return false
}

// writeFileAtomic пишет во временный файл в том же каталоге и переименовывает его.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
