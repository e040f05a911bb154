// Package prompt assembles token-budgeted message windows for the model from
// session history and a templated system prompt.
package prompt

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/parley/internal/types"
	"github.com/user/parley/pkg/llm"
)

// Engine assembles token-budgeted prompts for the LLM.
type Engine struct {
	tokenizer *tiktoken.Tiktoken
	tmpl      *template.Template
	maxTokens int
	reserve   int
}

// PromptData is the data passed to the system prompt template.
type PromptData struct {
	Time      string
	SessionID string
	Tools     string
}

// New creates a prompt engine with the specified token budget.
// model selects the tokenizer (e.g. "gpt-4o"); unknown models fall back to
// cl100k_base. maxTokens is the model's context window size and reserve is
// the number of tokens held back for the response.
func New(model string, maxTokens, reserve int, promptText string) (*Engine, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}

	if promptText == "" {
		promptText = DefaultPrompt
	}
	tmpl, err := template.New("system").Parse(promptText)
	if err != nil {
		return nil, fmt.Errorf("parse system prompt template: %w", err)
	}

	return &Engine{
		tokenizer: enc,
		tmpl:      tmpl,
		maxTokens: maxTokens,
		reserve:   reserve,
	}, nil
}

// LoadPromptFile reads a custom system prompt template from path. An empty
// path selects the built-in default.
func LoadPromptFile(path string) (string, error) {
	if path == "" {
		return DefaultPrompt, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read system prompt: %w", err)
	}
	return string(data), nil
}

// countTokens returns the token count for a string.
func (e *Engine) countTokens(text string) int {
	return len(e.tokenizer.Encode(text, nil, nil))
}

// BuildWindow assembles the message window for a model call: the rendered
// system prompt followed by as much recent history as fits the input budget.
// History is trimmed from the oldest end, so the most recent turns always
// survive, and the returned slice is in chronological order.
func (e *Engine) BuildWindow(
	ctx context.Context,
	session *types.SessionIndex,
	history []*types.Message,
	toolNames []string,
) ([]llm.Message, error) {
	sysPrompt, err := e.renderSystem(session, toolNames)
	if err != nil {
		return nil, err
	}

	budget := e.maxTokens - e.reserve - e.countTokens(sysPrompt)

	// Walk newest-first so old turns fall off when the budget runs out.
	var kept []llm.Message
	used := 0
	for i := len(history) - 1; i >= 0; i-- {
		msg := llm.Message{
			Role:    string(history[i].Role),
			Content: history[i].Content,
		}
		tokens := e.countTokens(msg.Content)
		if used+tokens > budget {
			break
		}
		kept = append(kept, msg)
		used += tokens
	}

	messages := make([]llm.Message, 0, 1+len(kept))
	messages = append(messages, llm.Message{Role: "system", Content: sysPrompt})
	for i := len(kept) - 1; i >= 0; i-- {
		messages = append(messages, kept[i])
	}
	return messages, nil
}

func (e *Engine) renderSystem(session *types.SessionIndex, toolNames []string) (string, error) {
	data := PromptData{
		Time:  time.Now().Format(time.RFC3339),
		Tools: strings.Join(toolNames, ", "),
	}
	if session != nil {
		data.SessionID = string(session.SessionID)
	}

	var sb strings.Builder
	if err := e.tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render system prompt: %w", err)
	}
	return sb.String(), nil
}
