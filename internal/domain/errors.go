package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDateRange — входные даты не образуют корректное окно.
	ErrInvalidDateRange = errors.New("invalid date range")
	// ErrFetchFailed — выгрузка истории комнаты не удалась после всех повторов.
	ErrFetchFailed = errors.New("fetch failed")
	// ErrWriteFailed — отчет не удалось записать на диск.
	ErrWriteFailed = errors.New("write failed")
	// ErrMalformedResponse — ответ сервиса не удалось разобрать; повтор не поможет.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrRoomNotFound — комната не найдена в справочнике сервиса истории.
	ErrRoomNotFound = errors.New("room not found")
)

// FetchFailedError описывает исчерпание попыток выгрузки для комнаты.
type FetchFailedError struct {
	Room     string
	Attempts int
	Err      error
}

func (e *FetchFailedError) Error() string {
	return fmt.Sprintf("fetch failed for room %q after %d attempt(s): %v", e.Room, e.Attempts, e.Err)
}

func (e *FetchFailedError) Unwrap() error { return e.Err }

// Is позволяет сравнивать ошибку с ErrFetchFailed через errors.Is.
func (e *FetchFailedError) Is(target error) bool { return target == ErrFetchFailed }

// WriteFailedError описывает неудачную запись файла отчета.
type WriteFailedError struct {
	Path string
	Err  error
}

func (e *WriteFailedError) Error() string {
	return fmt.Sprintf("write failed for %s: %v", e.Path, e.Err)
}

func (e *WriteFailedError) Unwrap() error { return e.Err }

func (e *WriteFailedError) Is(target error) bool { return target == ErrWriteFailed }
