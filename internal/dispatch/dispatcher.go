// Package dispatch runs the model loop for a single conversation turn:
// window assembly, tool rounds, and history persistence.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/user/parley/internal/gateway"
	"github.com/user/parley/internal/imaging"
	"github.com/user/parley/internal/prompt"
	"github.com/user/parley/internal/types"
	"github.com/user/parley/pkg/llm"
)

// toolResultLimit caps a single tool result fed back to the model.
const toolResultLimit = 8000

// defaultImageQuestion is used when an image arrives without accompanying text.
const defaultImageQuestion = "Describe what you see in this image."

// imagePlaceholder is stored as the user turn content for image turns with no
// caption, so history replays stay text-only.
const imagePlaceholder = "[photo]"

// Dispatcher implements the turn loop. It is the processor handed to the
// gateway queue.
type Dispatcher struct {
	provider      llm.Provider
	engine        *prompt.Engine
	sessions      types.SessionStore
	conversations types.ConversationStore
	tools         *Registry
	agents        *AgentCache
	retry         *gateway.RetryPolicy
	maxRounds     int
}

// New creates a Dispatcher with the given dependencies.
func New(
	provider llm.Provider,
	engine *prompt.Engine,
	sessions types.SessionStore,
	conversations types.ConversationStore,
	tools *Registry,
	agents *AgentCache,
	retry *gateway.RetryPolicy,
	maxRounds int,
) *Dispatcher {
	if maxRounds <= 0 {
		maxRounds = 5
	}
	return &Dispatcher{
		provider:      provider,
		engine:        engine,
		sessions:      sessions,
		conversations: conversations,
		tools:         tools,
		agents:        agents,
		retry:         retry,
		maxRounds:     maxRounds,
	}
}

// ProcessRun executes the turn loop for a single run. Nothing is written to
// the conversation until the model produces a final response, so a failed
// turn leaves history untouched. Tool rounds live only inside the turn's
// window; the stored history holds exactly one user and one assistant
// message per completed turn.
func (d *Dispatcher) ProcessRun(run *gateway.Run) error {
	ctx := run.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	turn := run.Turn

	if turn.Text == "" && turn.ImagePath == "" {
		return types.NewError(types.KindValidation, "message is required")
	}

	agent := d.agents.GetOrCreate(run.SessionID)
	agent.Runs++

	session, err := d.sessions.Get(ctx, run.SessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	history, err := d.conversations.ReadAll(ctx, run.SessionID)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	window, err := d.engine.BuildWindow(ctx, session, history, d.tools.Names())
	if err != nil {
		return fmt.Errorf("build window: %w", err)
	}

	userMsg, storedContent, err := d.buildUserMessage(turn)
	if err != nil {
		return err
	}
	window = append(window, userMsg)

	llmTools := d.tools.AsLLMTools()

	for round := 0; round < d.maxRounds; round++ {
		var resp *llm.Response
		callErr := d.retry.Execute(func() error {
			r, err := d.provider.Complete(ctx, window, llmTools)
			if err != nil {
				return err
			}
			resp = r
			return nil
		})
		if callErr != nil {
			return types.WrapError(types.KindModel, "model call", callErr)
		}

		if len(resp.ToolCalls) > 0 {
			window = append(window, llm.Message{
				Role:    "assistant",
				Content: resp.Content,
				Tools:   resp.ToolCalls,
			})
			for _, tc := range resp.ToolCalls {
				window = append(window, llm.Message{
					Role:    "tool",
					Content: d.executeTool(ctx, tc),
					Tools:   []llm.ToolCall{tc},
				})
			}
			continue
		}

		if err := d.persistTurn(ctx, run, session, storedContent, resp.Content); err != nil {
			return err
		}
		run.Complete(resp.Content)
		return nil
	}

	return types.NewError(types.KindModel, fmt.Sprintf("max tool rounds (%d) exceeded", d.maxRounds))
}

// buildUserMessage turns the inbound turn into the model message and the
// content persisted for it. Image turns are normalized before any model call
// so bad uploads fail fast with a typed error.
func (d *Dispatcher) buildUserMessage(turn *types.InboundTurn) (llm.Message, string, error) {
	msg := llm.Message{Role: "user", Content: turn.Text}
	stored := turn.Text

	if turn.ImagePath != "" {
		b64, err := imaging.NormalizeFile(turn.ImagePath)
		if err != nil {
			return llm.Message{}, "", err
		}
		msg.Image = &llm.ImageData{MIMEType: imaging.MimeType, B64: b64}
		if msg.Content == "" {
			msg.Content = defaultImageQuestion
		}
		if stored == "" {
			stored = imagePlaceholder
		}
	}
	return msg, stored, nil
}

// executeTool runs a single tool call and returns the result text; execution
// failures become a result string the model can react to.
func (d *Dispatcher) executeTool(ctx context.Context, tc llm.ToolCall) string {
	tool, ok := d.tools.Get(tc.Function.Name)
	if !ok {
		return fmt.Sprintf("error: unknown tool %q", tc.Function.Name)
	}
	result, err := tool.Execute(ctx, tc.Function.Arguments)
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}
	if len(result) > toolResultLimit {
		result = result[:toolResultLimit] + "\n[truncated]"
	}
	return result
}

// persistTurn appends the user and assistant messages and refreshes the
// session index. Both appends happen only after a successful model response.
func (d *Dispatcher) persistTurn(ctx context.Context, run *gateway.Run, session *types.SessionIndex, userContent, assistantContent string) error {
	now := time.Now()
	if err := d.conversations.Append(ctx, &types.Message{
		ID:        types.NewMessageID(),
		SessionID: run.SessionID,
		RunID:     run.ID,
		Role:      types.RoleUser,
		Content:   userContent,
		At:        now,
	}); err != nil {
		return fmt.Errorf("record user message: %w", err)
	}
	if err := d.conversations.Append(ctx, &types.Message{
		ID:        types.NewMessageID(),
		SessionID: run.SessionID,
		RunID:     run.ID,
		Role:      types.RoleAssistant,
		Content:   assistantContent,
		At:        time.Now(),
	}); err != nil {
		return fmt.Errorf("record assistant message: %w", err)
	}

	session.LastRunID = run.ID
	session.MessageCount += 2
	session.UpdatedAt = time.Now()
	if err := d.sessions.Update(ctx, session); err != nil {
		return fmt.Errorf("update session index: %w", err)
	}
	return nil
}
