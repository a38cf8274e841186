package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// TranscriptHeading открывает раздел переписки в отрисованном отчете.
const TranscriptHeading = "## 聊天记录"

// transcriptEntry совпадает с первой строкой записи переписки: "[01-02 15:04] ...".
var transcriptEntry = regexp.MustCompile(`^\[\d{2}-\d{2} \d{2}:\d{2}\] `)

// TimeWindow — полуоткрытый интервал [Start, End) с меткой для имен файлов и заголовков.
// Создается только через NewTimeWindow, поэтому Start всегда строго раньше End.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Label string    `json:"label"`
}

// NewTimeWindow создает окно, проверяя, что начало строго раньше конца.
func NewTimeWindow(start, end time.Time, label string) (TimeWindow, error) {
	if !start.Before(end) {
		return TimeWindow{}, fmt.Errorf("%w: start %s is not before end %s", ErrInvalidDateRange,
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return TimeWindow{Start: start, End: end, Label: label}, nil
}

// Contains сообщает, попадает ли момент t в окно.
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// MessageKind — числовые коды типа и подтипа, как их отдает сервис истории.
type MessageKind struct {
	Type    int `json:"type"`
	SubType int `json:"sub_type"`
}

// RawQuote — данные цитируемого сообщения, встроенные в саму запись.
type RawQuote struct {
	ID         string
	SenderName string
	Content    string
	IsSelf     bool
	Kind       MessageKind
}

// RawRecord представляет одну запись в том виде, в каком ее вернул сервис истории.
type RawRecord struct {
	ID         string
	Timestamp  time.Time
	Talker     string
	TalkerName string
	SenderID   string
	SenderName string
	IsSelf     bool
	Kind       MessageKind
	Content    string
	// Title и URL заполнены для карточек-ссылок.
	Title string
	URL   string
	// QuotedID — идентификатор цитируемого сообщения, если запись является ответом.
	QuotedID string
	Quoted   *RawQuote
}

// QuoteRef — ссылка ответа на исходное сообщение.
type QuoteRef struct {
	OriginalSenderName  string `json:"original_sender_name"`
	OriginalBodySnippet string `json:"original_body_snippet"`
	OriginalIsSelf      bool   `json:"original_is_self"`
	// Degraded выставляется, когда исходное сообщение не найдено в выгрузке
	// и ссылка собрана из данных, встроенных в сам ответ.
	Degraded bool `json:"degraded"`
}

// Message — каноническое сообщение после нормализации.
type Message struct {
	ID         string      `json:"id"`
	Timestamp  time.Time   `json:"timestamp"`
	SenderID   string      `json:"sender_id"`
	SenderName string      `json:"sender_name"`
	IsSelf     bool        `json:"is_self"`
	Type       MessageType `json:"type"`
	Body       string      `json:"body"`
	Quote      *QuoteRef   `json:"quote,omitempty"`
}

// ChatRoom описывает групповой чат.
type ChatRoom struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

// Report — собранный отчет по одной комнате за одно окно. После сборки не изменяется.
type Report struct {
	Room                  ChatRoom   `json:"room"`
	Window                TimeWindow `json:"window"`
	Messages              []Message  `json:"messages"`
	Participants          []string   `json:"participants"`
	ParticipantCount      int        `json:"participant_count"`
	EffectiveMessageCount int        `json:"effective_message_count"`
	DegradedQuotes        int        `json:"degraded_quotes"`
	GeneratedAt           time.Time  `json:"generated_at"`
	RenderedBody          string     `json:"rendered_body"`
}

// Tail возвращает копию отчета с последними n учитываемыми сообщениями.
// Сообщения и раздел переписки в RenderedBody обрезаются согласованно,
// заголовок и статистика остаются от полного отчета.
func (r Report) Tail(n int) Report {
	if n <= 0 || r.EffectiveMessageCount <= n {
		return r
	}

	counted := 0
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if !r.Messages[i].Type.Counted() {
			continue
		}
		counted++
		if counted == n {
			r.Messages = r.Messages[i:]
			break
		}
	}
	r.RenderedBody = tailTranscript(r.RenderedBody, n)
	return r
}

func tailTranscript(body string, n int) string {
	idx := strings.Index(body, TranscriptHeading)
	if idx < 0 {
		return body
	}
	head := body[:idx+len(TranscriptHeading)]
	lines := strings.Split(body[idx+len(TranscriptHeading):], "\n")

	var starts []int
	for i, line := range lines {
		if transcriptEntry.MatchString(line) {
			starts = append(starts, i)
		}
	}
	if len(starts) <= n {
		return body
	}
	return head + "\n\n" + strings.Join(lines[starts[len(starts)-n]:], "\n")
}

// RoomStatus — итог обработки одной комнаты в пакетном запуске.
type RoomStatus string

const (
	RoomStatusOK     RoomStatus = "ok"
	RoomStatusEmpty  RoomStatus = "empty"
	RoomStatusFailed RoomStatus = "failed"
)

// RoomResult — результат обработки одной комнаты.
type RoomResult struct {
	Room             string
	Label            string
	Status           RoomStatus
	FilePath         string
	MessageCount     int
	ParticipantCount int
	Report           *Report
	Err              error
}

// SummaryStatus описывает, чем закончилось построение сводки по комнате.
type SummaryStatus string

const (
	SummaryOK       SummaryStatus = "ok"
	SummarySkipped  SummaryStatus = "skipped"
	SummaryFallback SummaryStatus = "summary_failed"
)

// RoomDigest — сводка по одной комнате для ежедневного отчета.
type RoomDigest struct {
	Room             string
	MessageCount     int
	ParticipantCount int
	Summary          string
	SummaryStatus    SummaryStatus
	// Report хранит полный отчет комнаты, если он был собран.
	Report *Report
}

// Delivery — то, что отправляется в каналы уведомлений.
type Delivery struct {
	Title         string
	DateLabel     string
	Markdown      string
	GeneratedAt   time.Time
	TotalMessages int
	Rooms         []RoomDigest
}

// RunEntry — запись журнала запусков по одной комнате.
type RunEntry struct {
	RunID        string     `json:"run_id"`
	Room         string     `json:"room"`
	Label        string     `json:"label"`
	Status       RoomStatus `json:"status"`
	MessageCount int        `json:"message_count"`
	FilePath     string     `json:"file_path,omitempty"`
	Error        string     `json:"error,omitempty"`
	RecordedAt   time.Time  `json:"recorded_at"`
}
