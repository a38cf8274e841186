package exporter

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"wechat-daily-report/internal/domain"
	"wechat-daily-report/internal/ports"
)

const maxRoomColumnWidth = 30

// ConsoleExporter выводит итоговую таблицу пакетного запуска.
type ConsoleExporter struct {
	out   io.Writer
	ok    *color.Color
	empty *color.Color
	fail  *color.Color
}

// NewConsoleExporter создает новый экземпляр ConsoleExporter.
// useColor управляет ANSI-раскраской столбца статуса.
func NewConsoleExporter(out io.Writer, useColor bool) ports.Exporter {
	e := &ConsoleExporter{
		out:   out,
		ok:    color.New(color.FgGreen),
		empty: color.New(color.FgYellow),
		fail:  color.New(color.FgRed, color.Bold),
	}
	for _, c := range []*color.Color{e.ok, e.empty, e.fail} {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return e
}

// Export печатает по строке на комнату и итог.
func (e *ConsoleExporter) Export(results []domain.RoomResult) error {
	if len(results) == 0 {
		_, err := fmt.Fprintln(e.out, "No rooms processed.")
		return err
	}

	roomWidth := runewidth.StringWidth("Room")
	for _, r := range results {
		if w := runewidth.StringWidth(r.Room); w > roomWidth {
			roomWidth = w
		}
	}
	if roomWidth > maxRoomColumnWidth {
		roomWidth = maxRoomColumnWidth
	}

	var sb strings.Builder
	sb.WriteString(pad("Room", roomWidth) + "  " + pad("Status", 7) + "  " + pad("Messages", 8) + "  " + pad("People", 6) + "  Output\n")
	sb.WriteString(strings.Repeat("-", roomWidth+2+7+2+8+2+6+2+6) + "\n")

	failed := 0
	for _, r := range results {
		room := runewidth.Truncate(r.Room, roomWidth, "…")
		status := e.colorize(r.Status, pad(string(r.Status), 7))
		detail := r.FilePath
		if r.Err != nil {
			failed++
			detail = r.Err.Error()
		}
		fmt.Fprintf(&sb, "%s  %s  %s  %s  %s\n",
			pad(room, roomWidth),
			status,
			pad(fmt.Sprint(r.MessageCount), 8),
			pad(fmt.Sprint(r.ParticipantCount), 6),
			detail,
		)
	}
	fmt.Fprintf(&sb, "\n%d room(s), %d succeeded, %d failed\n", len(results), len(results)-failed, failed)

	_, err := io.WriteString(e.out, sb.String())
	return err
}

func (e *ConsoleExporter) colorize(status domain.RoomStatus, s string) string {
	switch status {
	case domain.RoomStatusOK:
		return e.ok.Sprint(s)
	case domain.RoomStatusEmpty:
		return e.empty.Sprint(s)
	default:
		return e.fail.Sprint(s)
	}
}

// pad дополняет строку пробелами до ширины колонки с учетом широких символов.
func pad(s string, width int) string {
	if n := width - runewidth.StringWidth(s); n > 0 {
		return s + strings.Repeat(" ", n)
	}
	return s
}
