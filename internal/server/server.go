package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"wechat-daily-report/internal/cache"
	"wechat-daily-report/internal/core/services"
	"wechat-daily-report/internal/domain"
	"wechat-daily-report/internal/pkg/config"
	"wechat-daily-report/internal/ports"
	"wechat-daily-report/internal/usecase"
)

const (
	maxUploadSize     = 32 << 20
	defaultRunsLimit  = 50
	healthCheckBudget = 5 * time.Second
	taskTTL           = 24 * time.Hour
)

// RoomExporter определяет вариант использования, который выгружает комнаты за окно.
type RoomExporter interface {
	Export(ctx context.Context, req usecase.ExportRequest) ([]domain.RoomResult, error)
}

// ReplayFactory строит выгрузку поверх сохраненного ответа сервиса истории.
type ReplayFactory func(filePath string) RoomExporter

// Option настраивает Server.
type Option func(*Server)

// WithHealthChecker подключает проверку сервиса истории к /health.
func WithHealthChecker(h ports.HealthChecker) Option {
	return func(s *Server) {
		s.health = h
	}
}

// WithRunLedger включает /api/v1/runs.
func WithRunLedger(l ports.RunLedger) Option {
	return func(s *Server) {
		s.ledger = l
	}
}

// WithReplay включает загрузку сохраненных ответов через /api/v1/exports/upload.
func WithReplay(f ReplayFactory) Option {
	return func(s *Server) {
		s.replay = f
	}
}

// WithLogger задает логгер сервера.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock подменяет источник текущего времени для окна по умолчанию.
func WithClock(now func() time.Time, loc *time.Location) Option {
	return func(s *Server) {
		s.now = now
		s.loc = loc
	}
}

// Server представляет HTTP-сервер
type Server struct {
	HTTPServer *http.Server
	cfg        *config.Config
	taskStore  *TaskStore
	cacheStore *cache.CacheStore[[]domain.RoomResult]
	exporter   RoomExporter

	health ports.HealthChecker
	ledger ports.RunLedger
	replay ReplayFactory
	logger *slog.Logger
	now    func() time.Time
	loc    *time.Location

	ctx    context.Context
	cancel context.CancelFunc
}

// exportRequest — тело POST /api/v1/exports.
type exportRequest struct {
	Group     string   `json:"group"`
	Groups    []string `json:"groups"`
	Date      string   `json:"date"`
	StartDate string   `json:"start_date"`
	EndDate   string   `json:"end_date"`
	Rolling   bool     `json:"rolling"`
}

type roomResponse struct {
	Room         string            `json:"room"`
	Label        string            `json:"label"`
	Status       domain.RoomStatus `json:"status"`
	Messages     int               `json:"messages"`
	Participants int               `json:"participants"`
	File         string            `json:"file,omitempty"`
	Error        string            `json:"error,omitempty"`
}

type taskResponse struct {
	TaskID       string         `json:"task_id"`
	Status       TaskStatus     `json:"status"`
	Window       string         `json:"window"`
	Cached       bool           `json:"cached"`
	ErrorMessage string         `json:"error_message"`
	Rooms        []roomResponse `json:"rooms"`
}

// New создает новый экземпляр Server
func New(cfg *config.Config, exporter RoomExporter, taskStore *TaskStore, cacheStore *cache.CacheStore[[]domain.RoomResult], opts ...Option) (*Server, error) {
	if exporter == nil {
		return nil, errors.New("exporter is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:        cfg,
		taskStore:  taskStore,
		cacheStore: cacheStore,
		exporter:   exporter,
		logger:     slog.Default(),
		now:        time.Now,
		loc:        time.Local,
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(s)
	}

	chiRouter := chi.NewRouter()

	// Промежуточное ПО
	chiRouter.Use(middleware.RequestID)
	chiRouter.Use(middleware.Logger)
	chiRouter.Use(middleware.Recoverer)

	chiRouter.Get("/health", s.handleHealth)

	// Маршруты API
	chiRouter.Route("/api/v1", func(r chi.Router) {
		r.Post("/exports", s.handleExport)
		r.Post("/exports/upload", s.handleUpload)
		r.Get("/tasks/{taskID}", s.handleTask)
		r.Get("/tasks/{taskID}/report", s.handleReport)
		r.Get("/runs", s.handleRuns)
	})

	s.HTTPServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      chiRouter,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	interval := cfg.Server.CleanupInterval
	if interval <= 0 {
		interval = time.Hour
	}
	s.taskStore.StartCleanupTicker(ctx, interval)
	s.cacheStore.StartCleanupTicker(ctx, interval)

	return s, nil
}

// ListenAndServe запускает HTTP-сервер
func (s *Server) ListenAndServe() error {
	return s.HTTPServer.ListenAndServe()
}

// Shutdown корректно завершает работу HTTP-сервера и отменяет выполняющиеся задачи
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	defer s.cancel()
	return s.HTTPServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "ok"}
	code := http.StatusOK
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckBudget)
		defer cancel()
		if err := s.health.Health(ctx); err != nil {
			resp["status"] = "degraded"
			resp["history"] = err.Error()
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, resp)
}

// handleExport запускает выгрузку комнат через сервис истории
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Не удалось декодировать тело запроса", http.StatusBadRequest)
		return
	}

	rooms, window, err := s.resolve(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	key := cache.CalculateHashFromString("history|" + strings.Join(rooms, "\n") + "|" + windowKey(window))
	taskID := s.start(rooms, window, key, s.exporter, nil)
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
}

// handleUpload запускает выгрузку по загруженному сохраненному ответу сервиса истории
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.replay == nil {
		http.Error(w, "Загрузка файлов не настроена", http.StatusNotImplemented)
		return
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		http.Error(w, "Не удалось разобрать форму", http.StatusBadRequest)
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Не удалось получить файл из формы", http.StatusBadRequest)
		return
	}
	defer file.Close()

	rooms, window, err := s.resolve(exportRequest{
		Groups:    r.MultipartForm.Value["group"],
		Date:      r.FormValue("date"),
		StartDate: r.FormValue("start_date"),
		EndDate:   r.FormValue("end_date"),
		Rolling:   r.FormValue("rolling") == "true",
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	tempFilePath := filepath.Join(os.TempDir(), fmt.Sprintf("chatlog_%s.json", uuid.NewString()))
	if err := saveUpload(tempFilePath, file); err != nil {
		s.logger.Error("failed to store uploaded file", "error", err, "path", tempFilePath)
		http.Error(w, "Не удалось сохранить загруженный файл", http.StatusInternalServerError)
		return
	}

	fileHash, err := cache.CalculateFileHash(tempFilePath)
	if err != nil {
		os.Remove(tempFilePath)
		http.Error(w, "Не удалось вычислить хеш файла", http.StatusInternalServerError)
		return
	}
	s.logger.Info("chatlog dump uploaded", "path", tempFilePath, "hash", fileHash)

	key := cache.CalculateHashFromString("file|" + fileHash + "|" + strings.Join(rooms, "\n") + "|" + windowKey(window))
	taskID := s.start(rooms, window, key, s.replay(tempFilePath), func() {
		os.Remove(tempFilePath)
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.taskStore.GetTask(chi.URLParam(r, "taskID"))
	if err != nil {
		http.Error(w, "Задача не найдена", http.StatusNotFound)
		return
	}

	resp := taskResponse{
		TaskID:       task.ID,
		Status:       task.Status,
		Window:       task.Window.Label,
		Cached:       task.Cached,
		ErrorMessage: task.ErrorMessage,
		Rooms:        make([]roomResponse, 0, len(task.Result)),
	}
	for _, res := range task.Result {
		rr := roomResponse{
			Room:         res.Room,
			Label:        res.Label,
			Status:       res.Status,
			Messages:     res.MessageCount,
			Participants: res.ParticipantCount,
			File:         res.FilePath,
		}
		if res.Err != nil {
			rr.Error = res.Err.Error()
		}
		resp.Rooms = append(resp.Rooms, rr)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleReport отдает Markdown-отчет комнаты. Для задачи с несколькими
// комнатами нужен параметр room.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	task, err := s.taskStore.GetTask(chi.URLParam(r, "taskID"))
	if err != nil {
		http.Error(w, "Задача не найдена", http.StatusNotFound)
		return
	}
	if task.Status != TaskStatusCompleted {
		http.Error(w, "Задача не завершена", http.StatusBadRequest)
		return
	}

	room := r.URL.Query().Get("room")
	if room == "" {
		if len(task.Result) != 1 {
			http.Error(w, "Требуется параметр room", http.StatusBadRequest)
			return
		}
		room = task.Result[0].Room
	}

	for _, res := range task.Result {
		if res.Room != room {
			continue
		}
		if res.Report == nil {
			http.Error(w, "Отчет по комнате не построен", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, res.Report.RenderedBody)
		return
	}
	http.Error(w, "Комната не найдена в задаче", http.StatusNotFound)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		http.Error(w, "Журнал запусков не настроен", http.StatusNotImplemented)
		return
	}

	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "Некорректный параметр limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := s.ledger.Recent(limit)
	if err != nil {
		s.logger.Error("failed to read run ledger", "error", err)
		http.Error(w, "Не удалось прочитать журнал запусков", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []domain.RunEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": entries})
}

// resolve определяет список комнат и окно выгрузки.
// Без явных комнат используются группы из конфигурации.
func (s *Server) resolve(req exportRequest) ([]string, domain.TimeWindow, error) {
	var rooms []string
	for _, g := range append([]string{req.Group}, req.Groups...) {
		if g = strings.TrimSpace(g); g != "" {
			rooms = append(rooms, g)
		}
	}
	if len(rooms) == 0 {
		rooms = s.cfg.Export.Groups
	}
	if len(rooms) == 0 {
		return nil, domain.TimeWindow{}, usecase.ErrNoRooms
	}

	window, err := services.ResolveWindow(services.WindowRequest{
		Date:      req.Date,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Rolling:   req.Rolling,
	}, s.now(), s.loc)
	if err != nil {
		return nil, domain.TimeWindow{}, err
	}
	return rooms, window, nil
}

// start регистрирует задачу и запускает ее в горутине.
func (s *Server) start(rooms []string, window domain.TimeWindow, cacheKey string, exp RoomExporter, cleanup func()) string {
	taskID := uuid.NewString()
	s.taskStore.CreateTask(taskID, rooms, window, taskTTL)

	go func() {
		if cleanup != nil {
			defer cleanup()
		}
		s.run(taskID, rooms, window, cacheKey, exp)
	}()
	return taskID
}

func (s *Server) run(taskID string, rooms []string, window domain.TimeWindow, cacheKey string, exp RoomExporter) {
	logger := s.logger.With("task_id", taskID, "window", window.Label)
	s.taskStore.UpdateTaskStatus(taskID, TaskStatusProcessing)

	if cachedItem, found := s.cacheStore.Get(cacheKey); found {
		s.taskStore.UpdateTaskResult(taskID, cachedItem.Data, true)
		logger.Info("export served from cache")
		return
	}

	taskCtx := s.ctx
	if s.cfg.Server.TaskTimeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(s.ctx, s.cfg.Server.TaskTimeout)
		defer cancel()
	}

	results, err := exp.Export(taskCtx, usecase.ExportRequest{
		Rooms:     rooms,
		Window:    window,
		OutputDir: s.cfg.Export.OutputDir,
	})
	if err != nil {
		if !anySucceeded(results) {
			s.taskStore.UpdateTaskError(taskID, err.Error(), results)
			logger.Error("export task failed", "error", err)
			return
		}
		// частичный результат не кэшируется
		s.taskStore.UpdateTaskResult(taskID, results, false)
		logger.Warn("export task finished with failed rooms", "error", err)
		return
	}

	s.cacheStore.Put(cacheKey, results, s.cfg.Server.CacheTTL)
	s.taskStore.UpdateTaskResult(taskID, results, false)
	logger.Info("export task completed", "rooms", len(results))
}

func anySucceeded(results []domain.RoomResult) bool {
	for _, r := range results {
		if r.Status != domain.RoomStatusFailed {
			return true
		}
	}
	return false
}

func windowKey(w domain.TimeWindow) string {
	return w.Start.Format(time.RFC3339) + "~" + w.End.Format(time.RFC3339)
}

func saveUpload(path string, src io.Reader) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(path)
		return err
	}
	return out.Close()
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
