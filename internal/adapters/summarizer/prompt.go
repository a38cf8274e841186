package summarizer

import (
	"fmt"
	"strings"
)

// MaxPromptMessages ограничивает число последних записей переписки в запросе к модели.
const MaxPromptMessages = 50

const systemPrompt = "你是一个专业的聊天记录分析师，善于从群聊记录中提取关键信息并生成简洁有用的总结。"

// EmptySummary возвращается для комнаты без сообщений без обращения к модели.
func EmptySummary(roomName string) string {
	return fmt.Sprintf("群聊 '%s' 暂无聊天记录", roomName)
}

// buildPrompt встраивает отрисованный Markdown-отчет комнаты в запрос.
func buildPrompt(roomName, body string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "请分析群聊 '%s' 的聊天记录，重点关注核心话题、有价值的观点和重要信息分享。忽略没有意义的图片链接、表情符号等内容。\n\n", roomName)
	sb.WriteString("聊天记录：\n")
	sb.WriteString(strings.TrimSpace(body))
	sb.WriteString("\n\n请按以下格式输出结构化总结：\n\n")
	sb.WriteString("## 📊 群聊概况\n")
	fmt.Fprintf(&sb, "- **群聊名称**: %s\n", roomName)
	sb.WriteString("- **活跃成员**: [统计发言人数]\n")
	sb.WriteString("- **消息总数**: [统计有效消息数量]\n")
	sb.WriteString("- **时间跨度**: [记录时间范围]\n\n")
	sb.WriteString("## 🔥 核心话题\n")
	sb.WriteString("[按重要性排序，列出最多 20 个主要讨论话题，每个话题包含关键观点]\n\n")
	sb.WriteString("1. **话题一**: \n   - 核心内容: \n   - 主要观点: \n   - 参与讨论: \n\n")
	sb.WriteString("## 💡 有价值信息\n")
	sb.WriteString("[提取重要的信息分享、资源推荐、经验总结等]\n\n")
	sb.WriteString("- **重要通知**: \n- **资源分享**: \n- **经验分享**: \n- **决策事项**: \n\n")
	sb.WriteString("## ❓ FAQ 常见问题\n")
	sb.WriteString("[整理群内讨论的问题和解答，最多 20 个问题]\n\n")
	sb.WriteString("**Q1**: [问题描述]\n**A1**: [解答内容]\n\n")
	sb.WriteString("## 🎯 待跟进事项\n")
	sb.WriteString("[需要后续关注或行动的事项]\n\n")
	sb.WriteString("- [ ] [待办事项1]\n\n")
	sb.WriteString("## 📝 备注\n")
	sb.WriteString("[其他值得关注的信息或观察]\n\n")
	sb.WriteString("---\n*本总结基于AI分析生成，如有遗漏请参考原始聊天记录*\n")
	return sb.String()
}
