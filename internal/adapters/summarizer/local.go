package summarizer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"wechat-daily-report/internal/domain"
	"wechat-daily-report/internal/ports"
)

const (
	maxListedMembers = 10
	maxKeywords      = 5
)

// DefaultKeywords считаются в текстах сообщений локальной сводкой.
var DefaultKeywords = []string{"会议", "时间", "地点", "明天", "今天", "项目", "工作"}

// LocalSummarizer строит статистическую сводку без обращения к внешним сервисам.
type LocalSummarizer struct {
	keywords []string
}

// NewLocalSummarizer создает новый экземпляр LocalSummarizer.
func NewLocalSummarizer(keywords ...string) *LocalSummarizer {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	return &LocalSummarizer{keywords: keywords}
}

var _ ports.Summarizer = (*LocalSummarizer)(nil)

// Name возвращает имя сводки.
func (s *LocalSummarizer) Name() string {
	return "local"
}

type keywordCount struct {
	word  string
	count int
}

// Summarize считает участников, сообщения и частоту ключевых слов.
func (s *LocalSummarizer) Summarize(_ context.Context, roomName string, report domain.Report) (string, error) {
	if report.EffectiveMessageCount == 0 {
		return EmptySummary(roomName), nil
	}

	counts := make(map[string]int, len(s.keywords))
	for _, m := range report.Messages {
		if !m.Type.Counted() {
			continue
		}
		body := strings.ToLower(m.Body)
		for _, w := range s.keywords {
			if strings.Contains(body, w) {
				counts[w]++
			}
		}
	}

	ranked := make([]keywordCount, 0, len(counts))
	for _, w := range s.keywords {
		if c := counts[w]; c > 0 {
			ranked = append(ranked, keywordCount{word: w, count: c})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].count > ranked[j].count })
	if len(ranked) > maxKeywords {
		ranked = ranked[:maxKeywords]
	}
	hot := make([]string, 0, len(ranked))
	for _, k := range ranked {
		hot = append(hot, fmt.Sprintf("%s(%d次)", k.word, k.count))
	}

	members := report.Participants
	suffix := ""
	if len(members) > maxListedMembers {
		members = members[:maxListedMembers]
		suffix = "..."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## 群聊总结：%s\n\n", roomName)
	sb.WriteString("### 基本信息\n")
	fmt.Fprintf(&sb, "- 参与人数：%d人\n", report.ParticipantCount)
	fmt.Fprintf(&sb, "- 消息总数：%d条\n\n", report.EffectiveMessageCount)
	sb.WriteString("### 参与成员\n")
	sb.WriteString(strings.Join(members, ", ") + suffix + "\n\n")
	sb.WriteString("### 热门关键词\n")
	if len(hot) == 0 {
		sb.WriteString("无\n\n")
	} else {
		sb.WriteString(strings.Join(hot, ", ") + "\n\n")
	}
	sb.WriteString("*注：这是简单统计总结，如需详细分析请配置AI服务*\n")
	return sb.String(), nil
}
