package usecase

import (
	"fmt"
	"strings"

	"handbook-agent/internal/domain"
)

const systemPrompt = "You are a helpful HR assistant that answers questions based on the provided company documents and conversation history. " +
	"Answer only from the provided context and conversation history. " +
	"If they do not contain the answer, say so."

const promptTemplate = `Based on the following context from company documents and our previous conversation, please answer the user's question.

Company Documents Context:
%s
%s

Current User Question: %s

Please provide a helpful and accurate answer based on the company documents and our conversation history:`

func buildPromptMessages(results []domain.SearchResult, history []domain.Turn, query string) []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: buildUserPrompt(results, history, query)},
	}
}

func buildUserPrompt(results []domain.SearchResult, history []domain.Turn, query string) string {
	return fmt.Sprintf(promptTemplate, joinContext(results), formatHistory(history), query)
}

// joinContext keeps ranking order.
func joinContext(results []domain.SearchResult) string {
	texts := make([]string, 0, len(results))
	for _, r := range results {
		texts = append(texts, r.Chunk.Text)
	}
	return strings.Join(texts, "\n\n")
}

func formatHistory(history []domain.Turn) string {
	if len(history) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\nPrevious conversation:\n")
	for _, t := range history {
		fmt.Fprintf(&b, "Human: %s\nAssistant: %s\n", t.Input, t.Output)
	}
	return b.String()
}
