package services

import (
	"log/slog"
	"strings"
	"time"
	"unicode"

	"wechat-daily-report/internal/domain"
)

// Коды типов сообщений сервиса истории.
const (
	kindText     = 1
	kindImage    = 3
	kindVideo    = 43
	kindSticker  = 47
	kindApp      = 49
	kindSystem   = 10000
	subTypeQuote = 57
)

const (
	// SnippetLength — максимальная длина фрагмента цитаты в рунах.
	SnippetLength = 50
	// UnknownSender подставляется, когда имя автора цитаты неизвестно.
	UnknownSender = "未知用户"

	imagePlaceholder       = "[图片]"
	unavailablePlaceholder = "[原消息不可用]"
	sharePrefix            = "[分享]"
)

// NormalizerOption — функциональная опция для Normalizer.
type NormalizerOption func(*Normalizer)

// WithLocation задает часовой пояс, в который переводятся метки времени.
func WithLocation(loc *time.Location) NormalizerOption {
	return func(n *Normalizer) {
		if loc != nil {
			n.loc = loc
		}
	}
}

// WithNormalizerLogger устанавливает логгер нормализатора.
func WithNormalizerLogger(l *slog.Logger) NormalizerOption {
	return func(n *Normalizer) {
		if l != nil {
			n.log = l
		}
	}
}

// Normalizer классифицирует сырые записи и разрешает цитаты.
// Не имеет состояния, повторный вызов на тех же данных дает тот же результат.
type Normalizer struct {
	loc *time.Location
	log *slog.Logger
}

// NewNormalizer создает новый экземпляр Normalizer.
func NewNormalizer(opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{
		loc: time.Local,
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize преобразует записи в сообщения, сохраняя их количество и порядок.
// Изображения и неподдерживаемые записи остаются в выдаче с пустым телом.
func (n *Normalizer) Normalize(records []domain.RawRecord) []domain.Message {
	index := make(map[string]int, len(records))
	for i, r := range records {
		if r.ID == "" {
			continue
		}
		if _, ok := index[r.ID]; !ok {
			index[r.ID] = i
		}
	}

	messages := make([]domain.Message, len(records))
	degraded := 0
	for i, r := range records {
		msg := domain.Message{
			ID:         r.ID,
			Timestamp:  r.Timestamp.In(n.loc),
			SenderID:   r.SenderID,
			SenderName: r.SenderName,
			IsSelf:     r.IsSelf,
			Type:       classify(r),
		}

		switch msg.Type {
		case domain.TypeText:
			msg.Body = cleanText(r.Content)
		case domain.TypeLinkShare:
			msg.Body = linkShareBody(r)
		case domain.TypeQuotedReply:
			msg.Body = cleanText(r.Content)
			msg.Quote = resolveQuote(r, records, index)
			if msg.Quote.Degraded {
				degraded++
				n.log.Debug("Quoted message not found in fetched window", "id", r.ID, "quoted_id", r.QuotedID)
			}
		}

		messages[i] = msg
	}

	if degraded > 0 {
		n.log.Debug("Quote resolution degraded", "count", degraded, "total", len(records))
	}
	return messages
}

// classify определяет тип записи. Срабатывает первое подходящее правило.
func classify(r domain.RawRecord) domain.MessageType {
	switch {
	case isMediaKind(r.Kind):
		return domain.TypeImage
	case r.QuotedID != "" || r.Quoted != nil || (r.Kind.Type == kindApp && r.Kind.SubType == subTypeQuote):
		return domain.TypeQuotedReply
	case r.Kind.Type == kindApp && (r.Title != "" || r.URL != ""):
		return domain.TypeLinkShare
	case r.Kind.Type == kindSystem:
		return domain.TypeOther
	case cleanText(r.Content) == "":
		return domain.TypeOther
	default:
		return domain.TypeText
	}
}

func isMediaKind(k domain.MessageKind) bool {
	switch k.Type {
	case kindImage, kindVideo, kindSticker:
		return true
	}
	return false
}

// linkShareBody форматирует карточку-ссылку как ссылку Markdown.
func linkShareBody(r domain.RawRecord) string {
	title := cleanText(r.Title)
	url := strings.TrimSpace(r.URL)
	if title == "" {
		title = url
	}
	if url == "" {
		return sharePrefix + " [" + title + "]"
	}
	return sharePrefix + " [" + title + "](" + url + ")"
}

// resolveQuote ищет исходное сообщение в том же наборе записей.
// Если оно не найдено или не поддерживается, ссылка собирается из данных самого ответа.
func resolveQuote(r domain.RawRecord, records []domain.RawRecord, index map[string]int) *domain.QuoteRef {
	if r.QuotedID != "" {
		if pos, ok := index[r.QuotedID]; ok {
			orig := records[pos]
			sender := orig.SenderName
			if sender == "" {
				sender = UnknownSender
			}
			switch classify(orig) {
			case domain.TypeImage:
				return &domain.QuoteRef{
					OriginalSenderName:  sender,
					OriginalBodySnippet: imagePlaceholder,
					OriginalIsSelf:      orig.IsSelf,
				}
			case domain.TypeText, domain.TypeQuotedReply:
				return &domain.QuoteRef{
					OriginalSenderName:  sender,
					OriginalBodySnippet: Snippet(cleanText(orig.Content), SnippetLength),
					OriginalIsSelf:      orig.IsSelf,
				}
			case domain.TypeLinkShare:
				return &domain.QuoteRef{
					OriginalSenderName:  sender,
					OriginalBodySnippet: Snippet(linkShareBody(orig), SnippetLength),
					OriginalIsSelf:      orig.IsSelf,
				}
			}
		}
	}
	return degradedQuote(r.Quoted)
}

func degradedQuote(q *domain.RawQuote) *domain.QuoteRef {
	ref := &domain.QuoteRef{
		OriginalSenderName:  UnknownSender,
		OriginalBodySnippet: unavailablePlaceholder,
		Degraded:            true,
	}
	if q == nil {
		return ref
	}
	if name := strings.TrimSpace(q.SenderName); name != "" {
		ref.OriginalSenderName = name
	}
	ref.OriginalIsSelf = q.IsSelf
	if isMediaKind(q.Kind) {
		ref.OriginalBodySnippet = imagePlaceholder
	} else if body := cleanText(q.Content); body != "" {
		ref.OriginalBodySnippet = Snippet(body, SnippetLength)
	}
	return ref
}

// Snippet обрезает строку до max рун, добавляя многоточие при обрезке.
func Snippet(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}

// cleanText заменяет переводы строк и табуляцию пробелами, удаляет прочие управляющие символы.
func cleanText(s string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', '\t':
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(cleaned)
}
