// Package bot реализует Telegram-бота, который запускает выгрузки на сервере
// и присылает в чат итоги и Markdown-отчеты комнат.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"wechat-daily-report/internal/pkg/config"
)

const (
	startCommand  = "start"
	helpCommand   = "help"
	exportCommand = "export"
	statusCommand = "status"
	runsCommand   = "runs"

	defaultRunsLimit = 10
	maxRunsLimit     = 50
	maxMessageLength = 4096
)

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}(:\d{4}-\d{2}-\d{2})?$`)

const helpText = "Я запускаю выгрузку истории групп WeChat и присылаю отчеты.\n\n" +
	"/export [группа, группа] [YYYY-MM-DD | YYYY-MM-DD:YYYY-MM-DD] [rolling]: выгрузить группы за дату.\n" +
	"Без групп используются группы из конфигурации сервера, без даты выгружается сегодняшний день.\n" +
	"/status: состояние текущей выгрузки.\n" +
	"/runs [N]: последние записи журнала запусков.\n\n" +
	"Можно прислать сохраненный ответ сервиса истории (JSON) с теми же параметрами в подписи."

// Bot представляет собой основной объект Telegram-бота.
type Bot struct {
	api          *tgbotapi.BotAPI
	cfg          config.Bot
	serverClient ServerAPI
	taskStore    *TaskStore
	logger       *slog.Logger
	httpClient   *http.Client
	allowed      map[int64]bool
	now          func() time.Time

	sendMessageFunc      func(tgbotapi.Chattable) (tgbotapi.Message, error)
	getFileDirectURLFunc func(fileID string) (string, error)

	pollers sync.WaitGroup
}

// NewBot создает и инициализирует новый экземпляр бота.
func NewBot(token string, cfg config.Bot, serverClient ServerAPI, taskStore *TaskStore, logger *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot api: %w", err)
	}

	logger.Info("Authorized on account", slog.String("username", api.Self.UserName))

	b := newBot(cfg, serverClient, taskStore, logger)
	b.api = api
	b.sendMessageFunc = api.Send
	b.getFileDirectURLFunc = api.GetFileDirectURL
	return b, nil
}

func newBot(cfg config.Bot, serverClient ServerAPI, taskStore *TaskStore, logger *slog.Logger) *Bot {
	allowed := make(map[int64]bool, len(cfg.AllowedChats))
	for _, id := range cfg.AllowedChats {
		allowed[id] = true
	}
	return &Bot{
		cfg:          cfg,
		serverClient: serverClient,
		taskStore:    taskStore,
		logger:       logger,
		httpClient:   &http.Client{Timeout: cfg.HTTPTimeout},
		allowed:      allowed,
		now:          time.Now,
	}
}

// Start запускает основной цикл обработки обновлений от Telegram и блокируется
// до отмены контекста. Перед возвратом дожидается завершения опроса задач.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Context cancelled, stopping bot...")
			b.api.StopReceivingUpdates()
			b.pollers.Wait()
			return
		case update := <-updates:
			if update.Message == nil {
				continue
			}
			b.handleMessage(ctx, update.Message)
		}
	}
}

// handleMessage обрабатывает входящее сообщение.
func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if !b.isAllowed(msg.Chat.ID) {
		b.logger.Warn("message from chat outside the allow list", slog.Int64("chat_id", msg.Chat.ID))
		b.reply(msg.Chat.ID, "У этого чата нет доступа к выгрузкам.")
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	if msg.Document != nil {
		b.handleDocument(ctx, msg)
		return
	}

	b.reply(msg.Chat.ID, "Отправьте команду /export или сохраненный JSON-ответ сервиса истории. Справка: /help")
}

func (b *Bot) isAllowed(chatID int64) bool {
	return len(b.allowed) == 0 || b.allowed[chatID]
}

// handleCommand обрабатывает команды.
func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	switch msg.Command() {
	case startCommand, helpCommand:
		b.reply(chatID, helpText)
	case exportCommand:
		req, err := parseExportArgs(msg.CommandArguments())
		if err != nil {
			b.reply(chatID, fmt.Sprintf("Не удалось разобрать параметры: %v", err))
			return
		}
		b.startExport(ctx, chatID, req, func(ctx context.Context) (*StartTaskResponse, error) {
			return b.serverClient.StartExport(ctx, req)
		})
	case statusCommand:
		b.handleStatus(ctx, chatID)
	case runsCommand:
		b.handleRuns(ctx, chatID, msg.CommandArguments())
	default:
		b.reply(chatID, "Я не знаю такой команды.")
	}
}

// handleDocument загружает присланный файл на сервер как сохраненный ответ сервиса истории.
func (b *Bot) handleDocument(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	logger := b.logger.With(slog.Int64("chat_id", chatID))

	req, err := parseExportArgs(msg.Caption)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Не удалось разобрать подпись к файлу: %v", err))
		return
	}

	b.startExport(ctx, chatID, req, func(ctx context.Context) (*StartTaskResponse, error) {
		fileURL, err := b.getFileDirectURLFunc(msg.Document.FileID)
		if err != nil {
			logger.Error("failed to get file direct url", slog.String("error", err.Error()))
			return nil, errors.New("не удалось получить доступ к файлу")
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := b.httpClient.Do(httpReq)
		if err != nil {
			logger.Error("failed to download file", slog.String("error", err.Error()))
			return nil, errors.New("не удалось скачать файл")
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			logger.Error("failed to download file", slog.Int("status", resp.StatusCode))
			return nil, errors.New("не удалось скачать файл")
		}

		return b.serverClient.UploadChatlog(ctx, DocumentFile{Name: msg.Document.FileName, Content: resp.Body}, req)
	})
}

// startExport занимает чат, запускает задачу на сервере и начинает опрос ее статуса.
func (b *Bot) startExport(ctx context.Context, chatID int64, req ExportRequest, start func(context.Context) (*StartTaskResponse, error)) {
	logger := b.logger.With(slog.Int64("chat_id", chatID))

	// 1. Проверяем, нет ли уже активной задачи.
	if !b.taskStore.Reserve(chatID, req, b.now()) {
		logger.Warn("user tried to start a new task while another is active")
		b.reply(chatID, "Пожалуйста, подождите завершения предыдущей выгрузки, прежде чем начинать новую.")
		return
	}

	// 2. Запускаем задачу на сервере.
	startResp, err := start(ctx)
	if err != nil {
		b.taskStore.Delete(chatID)
		logger.Error("failed to start task on backend", slog.String("error", err.Error()))
		b.reply(chatID, fmt.Sprintf("Не удалось начать выгрузку: %v", err))
		return
	}

	taskID := startResp.TaskID
	logger = logger.With(slog.String("task_id", taskID))
	logger.Info("task started on backend", slog.Any("groups", req.Groups), slog.String("date", req.Date))

	// 3. Сохраняем task_id и запускаем опрос.
	b.taskStore.SetTaskID(chatID, taskID)
	b.reply(chatID, "✅ Выгрузка поставлена в очередь. Ожидайте результата.")

	b.pollers.Add(1)
	go func() {
		defer b.pollers.Done()
		b.pollTaskStatus(ctx, chatID, taskID)
	}()
}

// pollTaskStatus опрашивает статус задачи на сервере до ее завершения.
func (b *Bot) pollTaskStatus(ctx context.Context, chatID int64, taskID string) {
	logger := b.logger.With(slog.Int64("chat_id", chatID), slog.String("task_id", taskID))
	defer b.taskStore.Delete(chatID)

	ticker := time.NewTicker(b.cfg.PollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Warn("polling cancelled by context")
			return
		case <-ticker.C:
			logger.Debug("polling task status")
			status, err := b.serverClient.GetTaskStatus(ctx, taskID)
			if err != nil {
				logger.Error("failed to get task status", slog.String("error", err.Error()))
				continue
			}

			switch status.Status {
			case "completed":
				logger.Info("task completed", slog.Bool("cached", status.Cached))
				b.processCompletedTask(ctx, chatID, status)
				return
			case "failed":
				logger.Warn("task failed", slog.String("reason", status.ErrorMessage))
				b.reply(chatID, fmt.Sprintf("Выгрузка не удалась: %s", status.ErrorMessage))
				if len(status.Rooms) > 0 {
					b.sendRoomSummary(chatID, status)
				}
				return
			case "pending", "processing":
				logger.Debug("task is in progress", slog.String("status", status.Status))
			default:
				logger.Warn("unknown task status", slog.String("status", status.Status))
			}
		}
	}
}

// processCompletedTask отправляет итог по комнатам и отчеты комнат с сообщениями.
func (b *Bot) processCompletedTask(ctx context.Context, chatID int64, status *TaskStatusResponse) {
	logger := b.logger.With(slog.Int64("chat_id", chatID), slog.String("task_id", status.TaskID))

	if len(status.Rooms) == 0 {
		b.reply(chatID, "Выгрузка завершена, но сервер не вернул ни одной комнаты.")
		return
	}

	b.sendRoomSummary(chatID, status)

	for _, room := range status.Rooms {
		if room.Status != "ok" {
			continue
		}
		report, err := b.serverClient.GetReport(ctx, status.TaskID, room.Room)
		if err != nil {
			logger.Error("failed to fetch room report", slog.String("room", room.Room), slog.String("error", err.Error()))
			b.reply(chatID, fmt.Sprintf("Не удалось получить отчет комнаты %s.", room.Room))
			continue
		}
		doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{
			Name:  reportFileName(room),
			Bytes: report,
		})
		doc.Caption = fmt.Sprintf("%s, %s: %d сообщений, %d участников", room.Room, room.Label, room.Messages, room.Participants)
		b.send(doc)
	}
}

// sendRoomSummary отправляет таблицу статусов комнат. Большие выгрузки уходят xlsx-файлом.
func (b *Bot) sendRoomSummary(chatID int64, status *TaskStatusResponse) {
	if len(status.Rooms) >= b.cfg.ExcelThreshold {
		b.logger.Info("room count is over threshold, sending excel file", slog.Int("rooms", len(status.Rooms)))
		data, err := roomsWorkbook(status, b.now())
		if err != nil {
			b.logger.Error("failed to build excel summary", slog.String("error", err.Error()))
			b.reply(chatID, "Не удалось сформировать Excel-файл.")
			return
		}
		doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{
			Name:  fmt.Sprintf("wechat_export_%s.xlsx", b.now().Format("2006-01-02_15-04-05")),
			Bytes: data,
		})
		doc.Caption = summaryHeadline(status)
		b.send(doc)
		return
	}

	text := summaryHeadline(status) + "\n" + roomsTable(status.Rooms, b.cfg.Render)
	if len(text) > maxMessageLength {
		b.logger.Warn("generated text is too long, sending as file", slog.Int("length", len(text)))
		doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{
			Name:  fmt.Sprintf("wechat_export_%s.csv", b.now().Format("2006-01-02_15-04-05")),
			Bytes: roomsCSV(status.Rooms),
		})
		doc.Caption = summaryHeadline(status)
		b.send(doc)
		return
	}

	reply := tgbotapi.NewMessage(chatID, text)
	reply.ParseMode = tgbotapi.ModeHTML
	b.send(reply)
}

// handleStatus сообщает состояние текущей выгрузки чата.
func (b *Bot) handleStatus(ctx context.Context, chatID int64) {
	task, ok := b.taskStore.Get(chatID)
	if !ok {
		b.reply(chatID, "Активных выгрузок нет.")
		return
	}
	if task.TaskID == "" {
		b.reply(chatID, "Выгрузка запускается.")
		return
	}
	status, err := b.serverClient.GetTaskStatus(ctx, task.TaskID)
	if err != nil {
		b.logger.Error("failed to get task status", slog.String("task_id", task.TaskID), slog.String("error", err.Error()))
		b.reply(chatID, "Не удалось получить статус выгрузки.")
		return
	}
	b.reply(chatID, fmt.Sprintf("Выгрузка %s: %s (запущена %s назад).",
		shortID(task.TaskID), status.Status, b.now().Sub(task.StartedAt).Round(time.Second)))
}

// handleRuns отправляет последние записи журнала запусков.
func (b *Bot) handleRuns(ctx context.Context, chatID int64, args string) {
	limit := defaultRunsLimit
	if args = strings.TrimSpace(args); args != "" {
		n, err := strconv.Atoi(args)
		if err != nil || n <= 0 {
			b.reply(chatID, "Укажите положительное число записей, например /runs 5.")
			return
		}
		limit = min(n, maxRunsLimit)
	}

	runs, err := b.serverClient.RecentRuns(ctx, limit)
	if err != nil {
		b.logger.Error("failed to fetch runs", slog.String("error", err.Error()))
		b.reply(chatID, "Не удалось получить журнал запусков.")
		return
	}
	if len(runs) == 0 {
		b.reply(chatID, "Журнал запусков пуст.")
		return
	}

	reply := tgbotapi.NewMessage(chatID, runsTable(runs, b.cfg.Render))
	reply.ParseMode = tgbotapi.ModeHTML
	b.send(reply)
}

func (b *Bot) reply(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) send(msg tgbotapi.Chattable) {
	if _, err := b.sendMessageFunc(msg); err != nil {
		b.logger.Error("failed to send message", slog.String("error", err.Error()))
	}
}

// parseExportArgs разбирает "группа, группа 2025-01-15 rolling". Дата и rolling
// распознаются в любом месте, остальное считается списком групп через запятую.
func parseExportArgs(args string) (ExportRequest, error) {
	var (
		req  ExportRequest
		rest []string
	)
	for _, token := range strings.Fields(args) {
		switch {
		case strings.EqualFold(token, "rolling"):
			req.Rolling = true
		case datePattern.MatchString(token):
			if req.Date != "" {
				return ExportRequest{}, fmt.Errorf("дата указана дважды: %s и %s", req.Date, token)
			}
			req.Date = token
		default:
			rest = append(rest, token)
		}
	}
	req.Groups = config.SplitList(strings.Join(rest, " "))
	if req.Rolling && strings.Contains(req.Date, ":") {
		return ExportRequest{}, errors.New("rolling не сочетается с диапазоном дат")
	}
	return req, nil
}

func summaryHeadline(status *TaskStatusResponse) string {
	ok, failed := 0, 0
	for _, r := range status.Rooms {
		if r.Status == "failed" {
			failed++
		} else {
			ok++
		}
	}
	headline := fmt.Sprintf("Окно %s: комнат %d, успешно %d, с ошибкой %d.", status.Window, len(status.Rooms), ok, failed)
	if status.Cached {
		headline += " Результат из кэша."
	}
	return headline
}

func reportFileName(room RoomDTO) string {
	name := strings.NewReplacer("/", "_", "\\", "_", " ", "_").Replace(room.Room)
	return fmt.Sprintf("%s_%s.md", name, room.Label)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
