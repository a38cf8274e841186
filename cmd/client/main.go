package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type RoomStatusResponse struct {
	Room         string `json:"room"`
	Label        string `json:"label"`
	Status       string `json:"status"`
	Messages     int    `json:"messages"`
	Participants int    `json:"participants"`
	Error        string `json:"error,omitempty"`
}

type TaskStatusResponse struct {
	TaskID       string               `json:"task_id"`
	Status       string               `json:"status"`
	Window       string               `json:"window"`
	Cached       bool                 `json:"cached"`
	ErrorMessage string               `json:"error_message,omitempty"`
	Rooms        []RoomStatusResponse `json:"rooms"`
}

func main() {
	var (
		serverAddr string
		groups     string
		date       string
		rolling    bool
		outputDir  string
		interval   time.Duration
	)
	flag.StringVar(&serverAddr, "server", "http://localhost:8080", "Server address")
	flag.StringVar(&groups, "group", "", "Comma separated group names (default: server config)")
	flag.StringVar(&date, "date", "", "Date YYYY-MM-DD or range YYYY-MM-DD:YYYY-MM-DD")
	flag.BoolVar(&rolling, "rolling", false, "Use the 05:00 to 05:00 window ending on -date")
	flag.StringVar(&outputDir, "o", "", "Save reports to this directory instead of printing them")
	flag.DurationVar(&interval, "interval", 2*time.Second, "Task status polling interval")
	flag.Parse()

	serverAddr = strings.TrimRight(serverAddr, "/")
	rooms := splitGroups(groups)

	var (
		taskID string
		err    error
	)
	switch flag.NArg() {
	case 0:
		taskID, err = startExport(serverAddr, rooms, date, rolling)
	case 1:
		// Сохраненный ответ сервиса истории загружается на сервер
		taskID, err = uploadDump(serverAddr, flag.Arg(0), rooms, date, rolling)
	default:
		log.Fatal("At most one chatlog dump is accepted. Usage: client [flags] [chatlog.json]")
	}
	if err != nil {
		log.Fatalf("Не удалось создать задачу: %v", err)
	}
	fmt.Printf("Задача создана с идентификатором: %s\n", taskID)

	// Опрос о статусе задачи
	for {
		time.Sleep(interval)

		status, err := getStatus(serverAddr, taskID)
		if err != nil {
			log.Fatalf("Не удалось опросить статус задачи: %v", err)
		}
		fmt.Printf("Статус задачи: %s\n", status.Status)

		switch status.Status {
		case "completed":
			fmt.Printf("Задача выполнена успешно (окно %s, из кеша: %t).\n", status.Window, status.Cached)
			failed := printRooms(serverAddr, status, outputDir)
			if failed > 0 {
				os.Exit(1)
			}
			return
		case "failed":
			fmt.Printf("Задача не выполнена: %s\n", status.ErrorMessage)
			os.Exit(1)
		case "pending", "processing":
			// Продолжение опроса
			continue
		default:
			log.Fatalf("Неизвестный статус задачи: %s", status.Status)
		}
	}
}

func splitGroups(s string) []string {
	var out []string
	for _, g := range strings.Split(s, ",") {
		if g = strings.TrimSpace(g); g != "" {
			out = append(out, g)
		}
	}
	return out
}

func startExport(serverAddr string, rooms []string, date string, rolling bool) (string, error) {
	body, err := json.Marshal(map[string]any{
		"groups":  rooms,
		"date":    date,
		"rolling": rolling,
	})
	if err != nil {
		return "", err
	}
	resp, err := http.Post(serverAddr+"/api/v1/exports", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("не удалось отправить запрос: %w", err)
	}
	defer resp.Body.Close()
	return decodeTaskID(resp)
}

func uploadDump(serverAddr, path string, rooms []string, date string, rolling bool) (string, error) {
	// Создание многочастной формы для загрузки файла
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("не удалось открыть файл %s: %w", path, err)
	}
	defer file.Close()

	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("не удалось создать файл формы: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("не удалось записать данные файла: %w", err)
	}
	for _, room := range rooms {
		if err := writer.WriteField("group", room); err != nil {
			return "", err
		}
	}
	if err := writer.WriteField("date", date); err != nil {
		return "", err
	}
	if err := writer.WriteField("rolling", fmt.Sprint(rolling)); err != nil {
		return "", err
	}

	// Важно закрыть writer, чтобы записать завершающую границу
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("не удалось закрыть multipart writer: %w", err)
	}

	resp, err := http.Post(serverAddr+"/api/v1/exports/upload", writer.FormDataContentType(), &body)
	if err != nil {
		return "", fmt.Errorf("не удалось отправить запрос: %w", err)
	}
	defer resp.Body.Close()
	return decodeTaskID(resp)
}

func decodeTaskID(resp *http.Response) (string, error) {
	if resp.StatusCode != http.StatusAccepted {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("сервер вернул статус %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var taskResp map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&taskResp); err != nil {
		return "", fmt.Errorf("не удалось декодировать ответ: %w", err)
	}
	if taskResp["task_id"] == "" {
		return "", fmt.Errorf("идентификатор задачи не найден в ответе")
	}
	return taskResp["task_id"], nil
}

func getStatus(serverAddr, taskID string) (*TaskStatusResponse, error) {
	resp, err := http.Get(fmt.Sprintf("%s/api/v1/tasks/%s", serverAddr, taskID))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("сервер вернул статус: %d", resp.StatusCode)
	}

	var status TaskStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("не удалось декодировать ответ статуса: %w", err)
	}
	return &status, nil
}

// printRooms выводит итог по комнатам и их отчеты. Возвращает число неуспешных комнат.
func printRooms(serverAddr string, status *TaskStatusResponse, outputDir string) int {
	failed := 0
	for _, room := range status.Rooms {
		if room.Error != "" {
			failed++
			fmt.Printf("- %s: %s (%s)\n", room.Room, room.Status, room.Error)
			continue
		}
		fmt.Printf("- %s: %s, %d сообщений, %d участников\n", room.Room, room.Status, room.Messages, room.Participants)

		report, err := getReport(serverAddr, status.TaskID, room.Room)
		if err != nil {
			log.Printf("Warning: не удалось получить отчет %s: %v", room.Room, err)
			continue
		}
		if outputDir == "" {
			fmt.Println(report)
			continue
		}
		path := filepath.Join(outputDir, fmt.Sprintf("%s_%s.md", strings.ReplaceAll(room.Room, "/", "_"), room.Label))
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			log.Fatalf("Не удалось создать каталог %s: %v", outputDir, err)
		}
		if err := os.WriteFile(path, []byte(report), 0o644); err != nil {
			log.Fatalf("Не удалось сохранить отчет %s: %v", path, err)
		}
		fmt.Printf("  сохранен в %s\n", path)
	}
	return failed
}

func getReport(serverAddr, taskID, room string) (string, error) {
	q := url.Values{}
	q.Set("room", room)
	resp, err := http.Get(fmt.Sprintf("%s/api/v1/tasks/%s/report?%s", serverAddr, taskID, q.Encode()))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("не удалось прочитать тело отчета: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("сервер вернул статус %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return string(data), nil
}
