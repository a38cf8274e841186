// Package notifier доставляет ежедневный отчет в каналы уведомлений.
package notifier

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"wechat-daily-report/internal/domain"
	"wechat-daily-report/internal/ports"
)

// ConsoleNotifier печатает краткую сводку отчета.
type ConsoleNotifier struct {
	out    io.Writer
	header *color.Color
}

// NewConsoleNotifier создает новый экземпляр ConsoleNotifier.
func NewConsoleNotifier(out io.Writer, useColor bool) *ConsoleNotifier {
	header := color.New(color.FgCyan, color.Bold)
	if useColor {
		header.EnableColor()
	} else {
		header.DisableColor()
	}
	return &ConsoleNotifier{out: out, header: header}
}

var _ ports.Notifier = (*ConsoleNotifier)(nil)

// Name возвращает имя канала.
func (n *ConsoleNotifier) Name() string {
	return "console"
}

// Notify печатает заголовок, итоги и статус каждой комнаты.
func (n *ConsoleNotifier) Notify(_ context.Context, d domain.Delivery) error {
	var sb strings.Builder
	line := strings.Repeat("=", 50)
	sb.WriteString(line + "\n")
	sb.WriteString(n.header.Sprint(d.Title) + "\n")
	sb.WriteString(line + "\n")
	fmt.Fprintf(&sb, "报告日期: %s\n", d.DateLabel)
	fmt.Fprintf(&sb, "群聊数量: %d\n", len(d.Rooms))
	fmt.Fprintf(&sb, "消息总数: %d\n", d.TotalMessages)
	for _, r := range d.Rooms {
		fmt.Fprintf(&sb, "  - %s: %d 条消息, %d 人 (%s)\n", r.Room, r.MessageCount, r.ParticipantCount, r.SummaryStatus)
	}
	sb.WriteString(line + "\n")
	_, err := io.WriteString(n.out, sb.String())
	return err
}
