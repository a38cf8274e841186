package services

import (
	"bytes"
	"log/slog"
	"sort"
	"strings"
	"text/template"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"wechat-daily-report/internal/domain"
)

const (
	// SelfMarker помечает сообщения владельца аккаунта.
	SelfMarker = "[我]"
	// EmptyMarker выводится вместо списка сообщений, если выводить нечего.
	EmptyMarker = "暂无聊天记录"

	lineTimeLayout      = "01-02 15:04"
	generatedTimeLayout = "2006-01-02 15:04:05"
)

var reportTemplate = template.Must(template.New("report").Parse(`# {{.Title}}

- 时间范围: {{.Label}}
- 生成时间: {{.GeneratedAt}}
- 参与人数: {{.ParticipantCount}}
- 消息数量: {{.MessageCount}}
- 成员: {{if .Members}}{{.Members}}{{else}}无{{end}}

{{.Heading}}

{{range .Lines}}{{.}}
{{else}}{{.Empty}}
{{end}}`))

// reportView — данные, передаваемые в шаблон отчета.
type reportView struct {
	Title            string
	Label            string
	GeneratedAt      string
	ParticipantCount int
	MessageCount     int
	Members          string
	Heading          string
	Lines            []string
	Empty            string
}

// AssemblerOption — функциональная опция для Assembler.
type AssemblerOption func(*Assembler)

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) AssemblerOption {
	return func(a *Assembler) {
		if now != nil {
			a.now = now
		}
	}
}

// WithAssemblerLogger устанавливает логгер сборщика.
func WithAssemblerLogger(l *slog.Logger) AssemblerOption {
	return func(a *Assembler) {
		if l != nil {
			a.log = l
		}
	}
}

// Assembler считает статистику и рендерит Markdown-отчет комнаты.
type Assembler struct {
	now func() time.Time
	log *slog.Logger
}

// NewAssembler создает новый экземпляр Assembler.
func NewAssembler(opts ...AssemblerOption) *Assembler {
	a := &Assembler{
		now: time.Now,
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble собирает отчет. Никогда не возвращает ошибку: отчет без сообщений тоже корректен.
func (a *Assembler) Assemble(room domain.ChatRoom, window domain.TimeWindow, messages []domain.Message) domain.Report {
	sorted := make([]domain.Message, len(messages))
	copy(sorted, messages)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	effective := 0
	degraded := 0
	senders := make(map[string]struct{})
	observed := make(map[string]struct{})
	lines := make([]string, 0, len(sorted))
	for _, m := range sorted {
		if m.SenderName != "" {
			observed[m.SenderName] = struct{}{}
		}
		if m.Quote != nil && m.Quote.Degraded {
			degraded++
		}
		if !m.Type.Counted() {
			continue
		}
		effective++
		if m.SenderName != "" {
			senders[m.SenderName] = struct{}{}
		}
		lines = append(lines, renderLines(m)...)
	}

	participants := make([]string, 0, len(senders))
	for name := range senders {
		participants = append(participants, name)
	}
	sortNames(participants)

	// Members — все отправители выборки, включая изображения и прочие типы.
	members := make([]string, 0, len(observed))
	for name := range observed {
		members = append(members, name)
	}
	sortNames(members)
	room.Members = members

	report := domain.Report{
		Room:                  room,
		Window:                window,
		Messages:              sorted,
		Participants:          participants,
		ParticipantCount:      len(participants),
		EffectiveMessageCount: effective,
		DegradedQuotes:        degraded,
		GeneratedAt:           a.now(),
	}

	title := room.Name
	if title == "" {
		title = room.ID
	}
	view := reportView{
		Title:            title,
		Label:            window.Label,
		GeneratedAt:      report.GeneratedAt.Format(generatedTimeLayout),
		ParticipantCount: report.ParticipantCount,
		MessageCount:     report.EffectiveMessageCount,
		Members:          strings.Join(participants, "、"),
		Heading:          domain.TranscriptHeading,
		Lines:            lines,
		Empty:            EmptyMarker,
	}

	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, view); err != nil {
		// Шаблон статический, ошибка здесь означает только сбой записи в буфер.
		a.log.Error("Failed to render report template", "room", room.Name, "error", err)
	}
	report.RenderedBody = buf.String()

	a.log.Debug("Report assembled",
		"room", room.Name,
		"window", window.Label,
		"messages", effective,
		"participants", report.ParticipantCount,
		"degraded_quotes", degraded,
	)
	return report
}

// sortNames упорядочивает имена по нормализованной форме, при равенстве по исходной строке.
func sortNames(names []string) {
	// Caser хранит состояние, поэтому создается на каждый вызов.
	fold := cases.Fold()
	keys := make(map[string]string, len(names))
	for _, n := range names {
		keys[n] = fold.String(norm.NFC.String(n))
	}
	sort.SliceStable(names, func(i, j int) bool {
		ki, kj := keys[names[i]], keys[names[j]]
		if ki != kj {
			return ki < kj
		}
		return names[i] < names[j]
	})
}

// renderLines возвращает строки отчета для одного учитываемого сообщения.
func renderLines(m domain.Message) []string {
	line := "[" + m.Timestamp.Format(lineTimeLayout) + "] " + displayName(m.SenderName, m.IsSelf) + " : " + m.Body
	return domain.MatchType(m.Type, domain.TypeSwitch[[]string]{
		Text:      func() []string { return []string{line} },
		LinkShare: func() []string { return []string{line} },
		QuotedReply: func() []string {
			q := m.Quote
			if q == nil {
				return []string{line}
			}
			return []string{line, "  └ 回复 " + displayName(q.OriginalSenderName, q.OriginalIsSelf) + ": " + q.OriginalBodySnippet}
		},
		Image: func() []string { return nil },
		Other: func() []string { return nil },
	})
}

func displayName(name string, isSelf bool) string {
	if name == "" {
		name = UnknownSender
	}
	if isSelf {
		return name + " " + SelfMarker
	}
	return name
}
