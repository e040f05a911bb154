// Package gemini implements llm.Provider for the Google Gemini API via the
// official genai SDK.
package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/user/parley/pkg/llm"
)

// Client implements the llm.Provider interface for the Gemini API.
type Client struct {
	client *genai.Client
	config *llm.Config
}

var _ llm.Provider = (*Client)(nil)

// New creates a new Gemini client with the given configuration.
func New(ctx context.Context, config *llm.Config) (*Client, error) {
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &Client{client: gc, config: config}, nil
}

// Complete sends a chat completion request and returns the full response.
func (c *Client) Complete(ctx context.Context, messages []llm.Message, tools []llm.Tool) (*llm.Response, error) {
	system, contents := ConvertMessages(messages)

	config := &genai.GenerateContentConfig{
		Tools: ConvertTools(tools),
	}
	if c.config.MaxTokens > 0 {
		config.MaxOutputTokens = int32(c.config.MaxTokens)
	}
	if c.config.Temperature != 0 {
		temp := c.config.Temperature
		config.Temperature = &temp
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.config.Model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini request: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no candidates in response")
	}

	out := &llm.Response{}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" && !part.Thought {
			text.WriteString(part.Text)
		}
		if part.FunctionCall != nil {
			out.ToolCalls = append(out.ToolCalls, convertFunctionCall(part.FunctionCall))
		}
	}
	out.Content = text.String()

	if resp.UsageMetadata != nil {
		out.Usage = llm.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:  int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return out, nil
}

// ConvertMessages converts llm messages to genai Contents, pulling any system
// message out into the returned system instruction. Exported for testing.
func ConvertMessages(messages []llm.Message) (string, []*genai.Content) {
	var system string
	var contents []*genai.Content

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			system = msg.Content
		case "assistant":
			parts := []*genai.Part{}
			if msg.Content != "" {
				parts = append(parts, &genai.Part{Text: msg.Content})
			}
			for _, tc := range msg.Tools {
				var args map[string]any
				_ = json.Unmarshal(tc.Function.Arguments, &args)
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						ID:   tc.ID,
						Name: tc.Function.Name,
						Args: args,
					},
				})
			}
			if len(parts) == 0 {
				continue
			}
			contents = append(contents, &genai.Content{Role: "model", Parts: parts})
		case "tool":
			if len(msg.Tools) == 0 {
				continue
			}
			tc := msg.Tools[0]
			contents = append(contents, &genai.Content{
				Role: "user",
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						ID:       tc.ID,
						Name:     tc.Function.Name,
						Response: map[string]any{"output": msg.Content},
					},
				}},
			})
		default:
			parts := []*genai.Part{}
			if msg.Content != "" {
				parts = append(parts, &genai.Part{Text: msg.Content})
			}
			if msg.Image != nil {
				if raw, err := base64.StdEncoding.DecodeString(msg.Image.B64); err == nil {
					parts = append(parts, &genai.Part{
						InlineData: &genai.Blob{
							MIMEType: msg.Image.MIMEType,
							Data:     raw,
						},
					})
				}
			}
			if len(parts) == 0 {
				continue
			}
			contents = append(contents, &genai.Content{Role: "user", Parts: parts})
		}
	}
	return system, contents
}

// ConvertTools converts llm tools to genai function declarations.
// Exported for testing.
func ConvertTools(tools []llm.Tool) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, len(tools))
	for i, t := range tools {
		var schema map[string]any
		_ = json.Unmarshal(t.Function.Parameters, &schema)
		decls[i] = &genai.FunctionDeclaration{
			Name:                 t.Function.Name,
			Description:          t.Function.Description,
			ParametersJsonSchema: schema,
		}
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// convertFunctionCall maps a genai function call back to the provider-neutral
// tool call shape. Gemini may omit call IDs, so one is generated when absent.
func convertFunctionCall(fc *genai.FunctionCall) llm.ToolCall {
	id := fc.ID
	if id == "" {
		id = "call_" + uuid.New().String()
	}
	args, err := json.Marshal(fc.Args)
	if err != nil {
		args = json.RawMessage("{}")
	}
	return llm.ToolCall{
		ID:   id,
		Type: "function",
		Function: llm.FunctionCall{
			Name:      fc.Name,
			Arguments: args,
		},
	}
}
