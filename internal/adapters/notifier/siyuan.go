package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"wechat-daily-report/internal/adapters/exporter"
	"wechat-daily-report/internal/domain"
	"wechat-daily-report/internal/ports"
)

const (
	siyuanCreateDocPath = "/api/filetree/createDocWithMd"
	siyuanGetConfPath   = "/api/system/getConf"
	siyuanRoot          = "/微信群聊日报"
)

// SiYuanConfig описывает подключение к заметкам SiYuan.
type SiYuanConfig struct {
	BaseURL              string
	AuthToken            string
	NotebookID           string
	SaveIndividualGroups bool
	Timeout              time.Duration
}

// SiYuanNotifier сохраняет ежедневный отчет документом в блокноте SiYuan.
type SiYuanNotifier struct {
	cfg    SiYuanConfig
	client *http.Client
	logger *slog.Logger
}

// NewSiYuanNotifier создает новый экземпляр SiYuanNotifier.
func NewSiYuanNotifier(cfg SiYuanConfig, logger *slog.Logger) *SiYuanNotifier {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SiYuanNotifier{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

var _ ports.Notifier = (*SiYuanNotifier)(nil)

type siyuanResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Name возвращает имя канала.
func (n *SiYuanNotifier) Name() string {
	return "siyuan"
}

// Notify создает документ дня и, если включено, документы по каждой комнате.
// Ошибки документов комнат не прерывают сохранение остальных.
func (n *SiYuanNotifier) Notify(ctx context.Context, d domain.Delivery) error {
	path := DailyDocPath(d.DateLabel)
	if err := n.createDoc(ctx, path, FormatDailyDoc(d)); err != nil {
		return err
	}
	n.logger.Info("siyuan document created", "path", path)

	if !n.cfg.SaveIndividualGroups {
		return nil
	}
	for _, room := range d.Rooms {
		if room.Summary == "" {
			continue
		}
		roomPath := RoomDocPath(room.Room, d.DateLabel)
		if err := n.createDoc(ctx, roomPath, formatRoomDoc(room, d)); err != nil {
			n.logger.Warn("failed to create room document", "room", room.Room, "error", err)
			continue
		}
		n.logger.Info("siyuan document created", "path", roomPath)
	}
	return nil
}

// Ping проверяет доступность SiYuan.
func (n *SiYuanNotifier) Ping(ctx context.Context) error {
	resp, err := n.post(ctx, siyuanGetConfPath, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("siyuan returned status %d", resp.StatusCode)
	}
	return nil
}

func (n *SiYuanNotifier) createDoc(ctx context.Context, path, markdown string) error {
	payload, err := json.Marshal(map[string]string{
		"notebook": n.cfg.NotebookID,
		"path":     path,
		"markdown": markdown,
	})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	resp, err := n.post(ctx, siyuanCreateDocPath, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("siyuan returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result siyuanResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode siyuan response: %w", err)
	}
	if result.Code != 0 {
		return fmt.Errorf("siyuan rejected document %s: %s", path, result.Msg)
	}
	return nil
}

func (n *SiYuanNotifier) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Token "+n.cfg.AuthToken)
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to siyuan: %w", err)
	}
	return resp, nil
}

// DailyDocPath возвращает путь документа дня.
func DailyDocPath(date string) string {
	return fmt.Sprintf("%s/%s-日报", siyuanRoot, date)
}

// RoomDocPath возвращает путь документа комнаты.
func RoomDocPath(room, date string) string {
	return fmt.Sprintf("%s/群聊报告/%s/%s", siyuanRoot, exporter.SanitizeName(room), date)
}

// FormatDailyDoc дополняет отчет метаданными и таблицей статистики.
func FormatDailyDoc(d domain.Delivery) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# 微信群聊日报 - %s\n\n", d.DateLabel)
	fmt.Fprintf(&sb, "> 📅 报告日期: %s  \n", d.DateLabel)
	fmt.Fprintf(&sb, "> 🕐 生成时间: %s  \n\n", d.GeneratedAt.Format("2006-01-02 15:04:05"))
	sb.WriteString(d.Markdown)
	sb.WriteString("\n\n## 📊 数据统计\n\n")
	if len(d.Rooms) > 0 {
		sb.WriteString("| 群聊名称 | 消息数量 | 状态 |\n")
		sb.WriteString("|----------|----------|------|\n")
		for _, r := range d.Rooms {
			fmt.Fprintf(&sb, "| %s | %d | %s |\n", r.Room, r.MessageCount, roomDocStatus(r))
		}
	}
	fmt.Fprintf(&sb, "\n**标签**: #微信群聊 #日报 #%s\n", strings.ReplaceAll(d.DateLabel, "-", ""))
	return sb.String()
}

func roomDocStatus(r domain.RoomDigest) string {
	switch {
	case r.SummaryStatus == domain.SummaryFallback:
		return "⚠️ 总结失败"
	case r.Summary != "" && r.MessageCount > 0:
		return "✅ 已分析"
	default:
		return "⚠️ 无数据"
	}
}

func formatRoomDoc(r domain.RoomDigest, d domain.Delivery) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s - %s\n\n", r.Room, d.DateLabel)
	fmt.Fprintf(&sb, "> 📅 日期: %s  \n", d.DateLabel)
	fmt.Fprintf(&sb, "> 🕐 生成时间: %s  \n", d.GeneratedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "> 📱 群聊: %s\n\n", r.Room)
	sb.WriteString(r.Summary)
	sb.WriteString("\n")
	return sb.String()
}
