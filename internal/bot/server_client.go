package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ServerAPI — операции сервера выгрузок, которые использует бот.
type ServerAPI interface {
	StartExport(ctx context.Context, req ExportRequest) (*StartTaskResponse, error)
	UploadChatlog(ctx context.Context, file DocumentFile, req ExportRequest) (*StartTaskResponse, error)
	GetTaskStatus(ctx context.Context, taskID string) (*TaskStatusResponse, error)
	GetReport(ctx context.Context, taskID, room string) ([]byte, error)
	RecentRuns(ctx context.Context, limit int) ([]RunDTO, error)
}

// ServerClient — клиент для взаимодействия с API сервера выгрузок.
type ServerClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewServerClient создает новый экземпляр ServerClient.
func NewServerClient(baseURL string, timeout time.Duration) *ServerClient {
	return &ServerClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

var _ ServerAPI = (*ServerClient)(nil)

// ExportRequest — параметры выгрузки. Пустой список комнат означает комнаты из конфигурации сервера.
type ExportRequest struct {
	Groups  []string `json:"groups,omitempty"`
	Date    string   `json:"date,omitempty"`
	Rolling bool     `json:"rolling,omitempty"`
}

// API-ответы
type StartTaskResponse struct {
	TaskID string `json:"task_id"`
}

// RoomDTO — итог по одной комнате в статусе задачи.
type RoomDTO struct {
	Room         string `json:"room"`
	Label        string `json:"label"`
	Status       string `json:"status"`
	Messages     int    `json:"messages"`
	Participants int    `json:"participants"`
	Error        string `json:"error,omitempty"`
}

type TaskStatusResponse struct {
	TaskID       string    `json:"task_id"`
	Status       string    `json:"status"`
	Window       string    `json:"window"`
	Cached       bool      `json:"cached"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Rooms        []RoomDTO `json:"rooms"`
}

// RunDTO — запись журнала запусков.
type RunDTO struct {
	RunID        string    `json:"run_id"`
	Room         string    `json:"room"`
	Label        string    `json:"label"`
	Status       string    `json:"status"`
	MessageCount int       `json:"message_count"`
	Error        string    `json:"error,omitempty"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// DocumentFile представляет файл для загрузки.
type DocumentFile struct {
	Name    string
	Content io.Reader
}

// StartExport запускает выгрузку комнат из сервиса истории.
func (c *ServerClient) StartExport(ctx context.Context, req ExportRequest) (*StartTaskResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/exports", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.startTask(httpReq)
}

// UploadChatlog отправляет сохраненный ответ сервиса истории на сервер.
func (c *ServerClient) UploadChatlog(ctx context.Context, file DocumentFile, req ExportRequest) (*StartTaskResponse, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	fw, err := w.CreateFormFile("file", file.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file for %s: %w", file.Name, err)
	}
	if _, err = io.Copy(fw, file.Content); err != nil {
		return nil, fmt.Errorf("failed to copy file content for %s: %w", file.Name, err)
	}
	for _, g := range req.Groups {
		if err := w.WriteField("group", g); err != nil {
			return nil, err
		}
	}
	if req.Date != "" {
		if err := w.WriteField("date", req.Date); err != nil {
			return nil, err
		}
	}
	if req.Rolling {
		if err := w.WriteField("rolling", "true"); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/exports/upload", &b)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())
	return c.startTask(httpReq)
}

func (c *ServerClient) startTask(req *http.Request) (*StartTaskResponse, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return nil, statusError(resp)
	}

	var result StartTaskResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

// GetTaskStatus запрашивает статус задачи.
func (c *ServerClient) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatusResponse, error) {
	var result TaskStatusResponse
	if err := c.getJSON(ctx, "/api/v1/tasks/"+url.PathEscape(taskID), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetReport возвращает Markdown-отчет комнаты из выполненной задачи.
func (c *ServerClient) GetReport(ctx context.Context, taskID, room string) ([]byte, error) {
	q := url.Values{}
	q.Set("room", room)
	endpoint := fmt.Sprintf("%s/api/v1/tasks/%s/report?%s", c.baseURL, url.PathEscape(taskID), q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	return data, nil
}

// RecentRuns запрашивает последние записи журнала запусков.
func (c *ServerClient) RecentRuns(ctx context.Context, limit int) ([]RunDTO, error) {
	var result struct {
		Runs []RunDTO `json:"runs"`
	}
	if err := c.getJSON(ctx, "/api/v1/runs?limit="+strconv.Itoa(limit), &result); err != nil {
		return nil, err
	}
	return result.Runs, nil
}

func (c *ServerClient) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// statusError включает в ошибку начало тела ответа, где сервер пишет причину.
func statusError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	if text := strings.TrimSpace(string(msg)); text != "" {
		return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, text)
	}
	return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
}
