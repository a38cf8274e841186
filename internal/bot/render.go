package bot

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/mattn/go-runewidth"
	"github.com/xuri/excelize/v2"

	"wechat-daily-report/internal/pkg/config"
)

const countColumnWidth = 6

// column — колонка моноширинной таблицы.
type column struct {
	title string
	width int
}

// roomsTable форматирует статусы комнат как таблицу в HTML-блоке <pre>.
func roomsTable(rooms []RoomDTO, widths config.ColumnWidths) string {
	cols := []column{
		{"Комната", widths.Room},
		{"Статус", widths.Status},
		{"Сообщ.", countColumnWidth},
		{"Участ.", countColumnWidth},
	}
	rows := make([][]string, 0, len(rooms))
	for _, r := range rooms {
		rows = append(rows, []string{r.Room, r.Status, strconv.Itoa(r.Messages), strconv.Itoa(r.Participants)})
	}
	return renderTable(cols, rows)
}

// runsTable форматирует записи журнала запусков.
func runsTable(runs []RunDTO, widths config.ColumnWidths) string {
	cols := []column{
		{"Время", 11},
		{"Комната", widths.Room},
		{"Дата", 10},
		{"Статус", widths.Status},
		{"Сообщ.", countColumnWidth},
	}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.RecordedAt.Local().Format("01-02 15:04"),
			r.Room,
			r.Label,
			r.Status,
			strconv.Itoa(r.MessageCount),
		})
	}
	return renderTable(cols, rows)
}

// renderTable строит таблицу с переносом длинных значений по словам.
// Значения экранируются для ParseMode HTML.
func renderTable(cols []column, rows [][]string) string {
	var sb strings.Builder
	sb.WriteString("<pre><code>")

	for _, c := range cols {
		sb.WriteString("| " + c.title + generatePadding(c.title, c.width) + " ")
	}
	sb.WriteString("|\n")

	for _, c := range cols {
		sb.WriteString("|" + strings.Repeat("-", c.width+2))
	}
	sb.WriteString("|\n")

	for _, row := range rows {
		cells := make([][]string, len(cols))
		maxLines := 1
		for i, c := range cols {
			value := ""
			if i < len(row) {
				value = strings.ReplaceAll(strings.ToValidUTF8(row[i], ""), "\n", " ")
			}
			cells[i] = wrapString(value, c.width)
			maxLines = max(maxLines, len(cells[i]))
		}

		for line := 0; line < maxLines; line++ {
			for i, c := range cols {
				part := ""
				if line < len(cells[i]) {
					part = cells[i][line]
				}
				// Ширина считается по исходному тексту, экранирование меняет только байты.
				sb.WriteString("| " + html.EscapeString(part) + generatePadding(part, c.width) + " ")
			}
			sb.WriteString("|\n")
		}
	}
	sb.WriteString("</code></pre>")
	return sb.String()
}

// generatePadding вычисляет отступ для строки с учетом поправки на CJK-символы.
func generatePadding(s string, colWidth int) string {
	paddingNeeded := colWidth - runewidth.StringWidth(s)

	// Некоторые клиенты рисуют CJK-символы чуть уже двух ячеек, один пробел выравнивает колонку.
	hasCJK := false
	for _, r := range s {
		if unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hangul, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r) {
			hasCJK = true
			break
		}
	}

	if hasCJK && paddingNeeded >= 0 {
		paddingNeeded++
	}

	if paddingNeeded > 0 {
		return strings.Repeat(" ", paddingNeeded)
	}
	return ""
}

// wrapString переносит строку по ширине колонки, предпочитая границы слов.
// Слово длиннее колонки разрывается посередине.
func wrapString(s string, width int) []string {
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return []string{s}
	}

	words := strings.Fields(s)
	if len(words) == 0 {
		return []string{""}
	}

	var (
		lines       []string
		currentLine strings.Builder
	)
	for _, word := range words {
		wordWidth := runewidth.StringWidth(word)

		if wordWidth > width {
			if currentLine.Len() > 0 {
				lines = append(lines, currentLine.String())
				currentLine.Reset()
			}
			lines = append(lines, splitByWidth(word, width)...)
			continue
		}

		lineLen := runewidth.StringWidth(currentLine.String())
		if lineLen > 0 && lineLen+1+wordWidth > width {
			lines = append(lines, currentLine.String())
			currentLine.Reset()
		}

		if currentLine.Len() > 0 {
			currentLine.WriteString(" ")
		}
		currentLine.WriteString(word)
	}

	if currentLine.Len() > 0 {
		lines = append(lines, currentLine.String())
	}
	return lines
}

// splitByWidth режет слово на куски шириной не больше width.
func splitByWidth(word string, width int) []string {
	var lines []string
	runes := []rune(word)
	for len(runes) > 0 {
		i, currentWidth := 0, 0
		for i < len(runes) {
			w := runewidth.RuneWidth(runes[i])
			if currentWidth+w > width {
				break
			}
			currentWidth += w
			i++
		}
		if i == 0 {
			i = 1
		}
		lines = append(lines, string(runes[:i]))
		runes = runes[i:]
	}
	return lines
}

// roomsCSV выгружает статусы комнат в CSV, когда таблица не помещается в сообщение.
func roomsCSV(rooms []RoomDTO) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"Room", "Label", "Status", "Messages", "Participants", "Error"})
	for _, r := range rooms {
		_ = w.Write([]string{r.Room, r.Label, r.Status, strconv.Itoa(r.Messages), strconv.Itoa(r.Participants), r.Error})
	}
	w.Flush()
	return buf.Bytes()
}

// roomsWorkbook строит xlsx-сводку по комнатам задачи.
func roomsWorkbook(status *TaskStatusResponse, exportedAt time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheetName = "Комнаты"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to delete default sheet: %w", err)
	}

	headers := []string{"Дата выгрузки", "Окно", "Комната", "Статус", "Сообщений", "Участников", "Ошибка"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return nil, err
		}
	}

	stamp := exportedAt.Format(time.RFC3339)
	for i, r := range status.Rooms {
		values := []any{stamp, status.Window, r.Room, r.Status, r.Messages, r.Participants, r.Error}
		for j, v := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return nil, err
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write excel to buffer: %w", err)
	}
	return buf.Bytes(), nil
}
