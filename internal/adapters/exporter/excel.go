package exporter

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"wechat-daily-report/internal/domain"
	"wechat-daily-report/internal/ports"
)

const (
	messagesSheet = "聊天记录"
	statsSheet    = "统计"
)

// ExcelWriter сохраняет отчет в книгу Excel: лист сообщений и лист статистики.
type ExcelWriter struct{}

// NewExcelWriter создает новый экземпляр ExcelWriter.
func NewExcelWriter() ports.ReportWriter {
	return &ExcelWriter{}
}

// Write записывает книгу рядом с Markdown-отчетом, с тем же именем и расширением .xlsx.
func (w *ExcelWriter) Write(report domain.Report, outputDir string) (string, error) {
	path := filepath.Join(outputDir, ReportFileName(report.Room.Name, report.Window.Label, ".xlsx"))

	data, err := BuildWorkbook(report)
	if err != nil {
		return "", &domain.WriteFailedError{Path: path, Err: err}
	}
	if err := writeFileAtomic(path, data); err != nil {
		return "", &domain.WriteFailedError{Path: path, Err: err}
	}
	return path, nil
}

// BuildWorkbook формирует содержимое .xlsx в памяти.
func BuildWorkbook(report domain.Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(messagesSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to remove default sheet: %w", err)
	}

	headers := []string{"时间", "发送者", "类型", "内容", "引用发送者", "引用内容"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(messagesSheet, cell, h)
	}

	row := 2
	for _, m := range report.Messages {
		if !m.Type.Counted() {
			continue
		}
		sender := m.SenderName
		if m.IsSelf {
			sender += " [我]"
		}
		values := []interface{}{m.Timestamp.Format("2006-01-02 15:04:05"), sender, m.Type.String(), m.Body}
		if m.Quote != nil {
			values = append(values, m.Quote.OriginalSenderName, m.Quote.OriginalBodySnippet)
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(messagesSheet, cell, &values); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", row, err)
		}
		row++
	}
	f.SetColWidth(messagesSheet, "A", "A", 20)
	f.SetColWidth(messagesSheet, "D", "D", 80)

	if _, err := f.NewSheet(statsSheet); err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	stats := [][]interface{}{
		{"群聊", report.Room.Name},
		{"时间范围", report.Window.Label},
		{"生成时间", report.GeneratedAt.Format("2006-01-02 15:04:05")},
		{"参与人数", report.ParticipantCount},
		{"消息数量", report.EffectiveMessageCount},
	}
	for i, p := range report.Participants {
		label := ""
		if i == 0 {
			label = "成员"
		}
		stats = append(stats, []interface{}{label, p})
	}
	for i, values := range stats {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(statsSheet, cell, &values); err != nil {
			return nil, fmt.Errorf("failed to write stats: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write excel to buffer: %w", err)
	}
	return buf.Bytes(), nil
}
