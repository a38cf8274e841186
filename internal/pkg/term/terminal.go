// Package term определяет возможности терминала для вывода CLI.
package term

import (
	"os"

	"golang.org/x/term"
)

// IsTerminal сообщает, подключен ли файл к терминалу.
func IsTerminal(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

// ColorEnabled сообщает, можно ли раскрашивать вывод в f.
// Переменная NO_COLOR отключает цвет независимо от терминала.
func ColorEnabled(f *os.File) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return IsTerminal(f)
}
