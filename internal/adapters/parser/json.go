package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"wechat-daily-report/internal/cache"
	"wechat-daily-report/internal/domain"
	"wechat-daily-report/internal/ports"
)

// timeLayouts — форматы времени, которые встречаются в ответах сервиса истории.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// flexTime принимает RFC3339, локальное время без пояса и unix-секунды.
type flexTime struct {
	time.Time
}

func (t *flexTime) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] != '"' {
		sec, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			return fmt.Errorf("unsupported time value %s", data)
		}
		t.Time = time.Unix(sec, 0)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for _, layout := range timeLayouts {
		parsed, err := time.ParseInLocation(layout, s, time.Local)
		if err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unsupported time format %q", s)
}

// chatlogMessage — запись в формате сервиса истории.
type chatlogMessage struct {
	Seq        int64            `json:"seq"`
	Time       flexTime         `json:"time"`
	Talker     string           `json:"talker"`
	TalkerName string           `json:"talkerName"`
	Sender     string           `json:"sender"`
	SenderName string           `json:"senderName"`
	IsSelf     bool             `json:"isSelf"`
	Type       int              `json:"type"`
	SubType    int              `json:"subType"`
	Content    string           `json:"content"`
	Contents   *chatlogContents `json:"contents,omitempty"`
}

type chatlogContents struct {
	Title string          `json:"title"`
	URL   string          `json:"url"`
	Refer *chatlogMessage `json:"refer,omitempty"`
}

// envelope — ответ, в котором записи обернуты в объект.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Items json.RawMessage `json:"items"`
}

type chatlogRoom struct {
	Name     string `json:"name"`
	NickName string `json:"nickName"`
	Remark   string `json:"remark"`
}

// JsonParser разбирает JSON-ответы сервиса истории.
type JsonParser struct{}

// NewJsonParser создает новый экземпляр JsonParser.
func NewJsonParser() ports.Parser {
	return &JsonParser{}
}

// Parse преобразует ответ со списком сообщений в сырые записи.
// Поддерживаются голый массив и объект с полем data или items.
func (p *JsonParser) Parse(data []byte) ([]domain.RawRecord, error) {
	list, err := unwrapList(data)
	if err != nil {
		return nil, err
	}

	var raw []chatlogMessage
	if err := json.Unmarshal(list, &raw); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal messages: %v", domain.ErrMalformedResponse, err)
	}

	records := make([]domain.RawRecord, 0, len(raw))
	for _, m := range raw {
		records = append(records, toRecord(m))
	}
	return records, nil
}

// ParseRooms разбирает ответ справочника комнат.
func ParseRooms(data []byte) ([]domain.ChatRoom, error) {
	list, err := unwrapList(data)
	if err != nil {
		return nil, err
	}

	var raw []chatlogRoom
	if err := json.Unmarshal(list, &raw); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal rooms: %v", domain.ErrMalformedResponse, err)
	}

	rooms := make([]domain.ChatRoom, 0, len(raw))
	for _, r := range raw {
		name := r.NickName
		if name == "" {
			name = r.Remark
		}
		if name == "" {
			name = r.Name
		}
		// Состав комнаты из справочника не используется: участники берутся из выборки.
		rooms = append(rooms, domain.ChatRoom{ID: r.Name, Name: name})
	}
	return rooms, nil
}

func unwrapList(data []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage("[]"), nil
	}

	switch trimmed[0] {
	case '[':
		return trimmed, nil
	case '{':
		var env envelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, fmt.Errorf("%w: failed to unmarshal envelope: %v", domain.ErrMalformedResponse, err)
		}
		for _, candidate := range []json.RawMessage{env.Data, env.Items} {
			if len(candidate) > 0 && !bytes.Equal(candidate, []byte("null")) {
				return candidate, nil
			}
		}
		return json.RawMessage("[]"), nil
	default:
		return nil, fmt.Errorf("%w: unexpected response start %q", domain.ErrMalformedResponse, trimmed[0])
	}
}

func toRecord(m chatlogMessage) domain.RawRecord {
	r := domain.RawRecord{
		ID:         recordID(m),
		Timestamp:  m.Time.Time,
		Talker:     m.Talker,
		TalkerName: m.TalkerName,
		SenderID:   m.Sender,
		SenderName: strings.TrimSpace(m.SenderName),
		IsSelf:     m.IsSelf,
		Kind:       domain.MessageKind{Type: m.Type, SubType: m.SubType},
		Content:    m.Content,
	}
	if r.SenderName == "" {
		r.SenderName = m.Sender
	}

	if c := m.Contents; c != nil {
		r.Title = c.Title
		r.URL = c.URL
		if ref := c.Refer; ref != nil {
			if ref.Seq != 0 {
				r.QuotedID = strconv.FormatInt(ref.Seq, 10)
			}
			sender := strings.TrimSpace(ref.SenderName)
			if sender == "" {
				sender = ref.Sender
			}
			r.Quoted = &domain.RawQuote{
				ID:         r.QuotedID,
				SenderName: sender,
				Content:    ref.Content,
				IsSelf:     ref.IsSelf,
				Kind:       domain.MessageKind{Type: ref.Type, SubType: ref.SubType},
			}
		}
	}
	return r
}

// recordID использует seq, а при его отсутствии хеш от времени, отправителя и текста.
func recordID(m chatlogMessage) string {
	if m.Seq != 0 {
		return strconv.FormatInt(m.Seq, 10)
	}
	return cache.CalculateHashFromString(fmt.Sprintf("%d|%s|%s", m.Time.UnixNano(), m.Sender, m.Content))
}
