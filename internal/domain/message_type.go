package domain

import (
	"encoding/json"
	"fmt"
)

// MessageType — закрытое множество типов сообщений.
// Реализовать интерфейс вне пакета нельзя из-за неэкспортируемого метода.
type MessageType interface {
	fmt.Stringer
	// Counted сообщает, учитывается ли сообщение в статистике и выводится ли в отчет.
	Counted() bool
	isMessageType()
}

type messageType struct {
	name    string
	counted bool
}

func (t messageType) String() string { return t.name }
func (t messageType) Counted() bool  { return t.counted }
func (messageType) isMessageType()   {}

// MarshalJSON сериализует тип его именем.
func (t messageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.name)
}

var (
	TypeText        MessageType = messageType{name: "text", counted: true}
	TypeLinkShare   MessageType = messageType{name: "link_share", counted: true}
	TypeQuotedReply MessageType = messageType{name: "quoted_reply", counted: true}
	TypeImage       MessageType = messageType{name: "image"}
	TypeOther       MessageType = messageType{name: "other"}
)

// ParseMessageType возвращает тип по его имени.
func ParseMessageType(name string) (MessageType, error) {
	for _, t := range []MessageType{TypeText, TypeLinkShare, TypeQuotedReply, TypeImage, TypeOther} {
		if t.String() == name {
			return t, nil
		}
	}
	return nil, fmt.Errorf("unknown message type %q", name)
}

// TypeSwitch содержит по одной ветке на каждый вариант MessageType.
type TypeSwitch[R any] struct {
	Text        func() R
	LinkShare   func() R
	QuotedReply func() R
	Image       func() R
	Other       func() R
}

// MatchType вызывает ветку, соответствующую типу t.
// Отсутствующая ветка считается ошибкой программиста и приводит к панике.
func MatchType[R any](t MessageType, sw TypeSwitch[R]) R {
	var branch func() R
	switch t {
	case TypeText:
		branch = sw.Text
	case TypeLinkShare:
		branch = sw.LinkShare
	case TypeQuotedReply:
		branch = sw.QuotedReply
	case TypeImage:
		branch = sw.Image
	case TypeOther:
		branch = sw.Other
	default:
		panic(fmt.Sprintf("domain: unknown message type %v", t))
	}
	if branch == nil {
		panic(fmt.Sprintf("domain: no branch for message type %s", t))
	}
	return branch()
}
