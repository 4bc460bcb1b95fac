package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"github.com/tidwall/gjson"

	"github.com/kodikhq/switchboard/internal/kb"
)

const systemPrompt = `You are a helpful support assistant for Kodik.
Kodik is an AI-powered code editor that understands your codebase and helps
you code faster using natural language: describe what you want to create or
change and Kodik generates the code for you.

When answering user questions:
1. Always try search_knowledge_base first.
2. If the knowledge base doesn't have enough information, use ask_human to
   escalate to a human admin — provide a clear, self-contained question.
3. Be concise and friendly in your final answers.
4. Never fabricate information that isn't in the knowledge base or provided
   by a human admin.`

// maxToolRounds bounds the tool loop so a misbehaving model cannot spin an
// invocation forever.
const maxToolRounds = 8

// Store is the subset of the switchboard store the agent needs for its
// per-thread checkpoints and suspended snapshots.
type Store interface {
	SaveTranscript(ctx context.Context, threadID string, transcript []byte) error
	LoadTranscript(ctx context.Context, threadID string) ([]byte, error)
	SaveAwaiting(ctx context.Context, threadID string, snapshot []byte) error
	TakeAwaiting(ctx context.Context, threadID string) ([]byte, error)
}

// LLM is the OpenAI-backed agent. Safe for concurrent use; all per-thread
// state lives in the Store.
type LLM struct {
	client    openai.Client
	model     string
	store     Store
	retriever *kb.Retriever
}

// New creates the agent collaborator.
func New(apiKey, model string, store Store, retriever *kb.Retriever) *LLM {
	return &LLM{
		client:    openai.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		store:     store,
		retriever: retriever,
	}
}

// Invoke runs a full conversation turn for the thread: it loads the thread's
// checkpoint, appends the user's message, and drives the tool loop until the
// model produces a final answer or escalates. Invoking repeatedly with the
// same threadID continues the checkpointed conversation.
func (l *LLM) Invoke(ctx context.Context, threadID, userText string) (*Result, error) {
	transcript, err := l.loadTranscript(ctx, threadID)
	if err != nil {
		return nil, err
	}

	if len(transcript) == 0 {
		transcript = append(transcript, ChatMessage{Role: "system", Content: systemPrompt})
	}
	transcript = append(transcript, ChatMessage{Role: "user", Content: userText})

	return l.runLoop(ctx, threadID, transcript)
}

// Resume continues a suspended conversation with the human-supplied answer.
// The snapshot is taken exactly once; a second resume for the same thread
// fails with a descriptive error.
func (l *LLM) Resume(ctx context.Context, threadID, humanReply string) (*Result, error) {
	raw, err := l.store.TakeAwaiting(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("no suspended conversation for thread %s", threadID)
	}

	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode suspended snapshot: %w", err)
	}

	transcript := append(snap.Transcript, ChatMessage{
		Role:       "tool",
		ToolCallID: snap.ToolCallID,
		Content:    humanReply,
	})

	return l.runLoop(ctx, threadID, transcript)
}

// runLoop drives completion rounds, executing tool calls between them, until
// the model stops requesting tools or escalates to a human.
func (l *LLM) runLoop(ctx context.Context, threadID string, transcript []ChatMessage) (*Result, error) {
	for round := 0; round < maxToolRounds; round++ {
		completion, err := l.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model:    shared.ChatModel(l.model),
			Messages: toMessageParams(transcript),
			Tools:    toolDefinitions(),
		})
		if err != nil {
			return nil, fmt.Errorf("completion failed: %w", err)
		}
		if len(completion.Choices) == 0 {
			return nil, fmt.Errorf("completion returned no choices")
		}

		msg := completion.Choices[0].Message
		assistant := ChatMessage{Role: "assistant", Content: msg.Content}
		for _, tc := range msg.ToolCalls {
			assistant.ToolCalls = append(assistant.ToolCalls, ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		transcript = append(transcript, assistant)

		if len(assistant.ToolCalls) == 0 {
			if err := l.saveTranscript(ctx, threadID, transcript); err != nil {
				// The turn succeeded; a lost checkpoint only costs context
				log.Printf("[Agent] Failed to checkpoint thread %s: %v", threadID, err)
			}
			return &Result{Messages: transcript}, nil
		}

		for _, tc := range assistant.ToolCalls {
			switch tc.Name {
			case "search_knowledge_base":
				query := gjson.Get(tc.Arguments, "query").String()
				transcript = append(transcript, ChatMessage{
					Role:       "tool",
					ToolCallID: tc.ID,
					Content:    l.retriever.Search(query),
				})

			case "ask_human":
				question := gjson.Get(tc.Arguments, "question").String()
				if question == "" {
					question = "The assistant escalated without a question; see the conversation."
				}
				snap := snapshot{Transcript: transcript, ToolCallID: tc.ID, Question: question}
				raw, err := json.Marshal(&snap)
				if err != nil {
					return nil, fmt.Errorf("failed to encode suspended snapshot: %w", err)
				}
				if err := l.store.SaveAwaiting(ctx, threadID, raw); err != nil {
					return nil, err
				}
				return &Result{
					Messages:          transcript,
					Suspended:         true,
					SuspendedQuestion: question,
				}, nil

			default:
				transcript = append(transcript, ChatMessage{
					Role:       "tool",
					ToolCallID: tc.ID,
					Content:    fmt.Sprintf("unknown tool %q", tc.Name),
				})
			}
		}
	}

	return nil, fmt.Errorf("tool loop exceeded %d rounds for thread %s", maxToolRounds, threadID)
}

func (l *LLM) loadTranscript(ctx context.Context, threadID string) ([]ChatMessage, error) {
	raw, err := l.store.LoadTranscript(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	var transcript []ChatMessage
	if err := json.Unmarshal(raw, &transcript); err != nil {
		return nil, fmt.Errorf("failed to decode transcript: %w", err)
	}
	return transcript, nil
}

func (l *LLM) saveTranscript(ctx context.Context, threadID string, transcript []ChatMessage) error {
	raw, err := json.Marshal(transcript)
	if err != nil {
		return fmt.Errorf("failed to encode transcript: %w", err)
	}
	return l.store.SaveTranscript(ctx, threadID, raw)
}

// toMessageParams converts a transcript to the request wire form.
func toMessageParams(transcript []ChatMessage) []openai.ChatCompletionMessageParamUnion {
	params := make([]openai.ChatCompletionMessageParamUnion, 0, len(transcript))
	for _, m := range transcript {
		switch m.Role {
		case "system":
			params = append(params, openai.SystemMessage(m.Content))
		case "user":
			params = append(params, openai.UserMessage(m.Content))
		case "tool":
			params = append(params, openai.ToolMessage(m.Content, m.ToolCallID))
		case "assistant":
			if len(m.ToolCalls) == 0 {
				params = append(params, openai.AssistantMessage(m.Content))
				continue
			}
			assistant := openai.ChatCompletionAssistantMessageParam{}
			if m.Content != "" {
				assistant.Content.OfString = openai.String(m.Content)
			}
			for _, tc := range m.ToolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: tc.Arguments,
						},
					},
				})
			}
			params = append(params, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		}
	}
	return params
}

func toolDefinitions() []openai.ChatCompletionToolUnionParam {
	return []openai.ChatCompletionToolUnionParam{
		openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name: "search_knowledge_base",
			Description: openai.String("Search the knowledge base for information relevant to the " +
				"user's question. Use this tool first before escalating to a human admin."),
			Parameters: shared.FunctionParameters{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "Search query derived from the user's question",
					},
				},
				"required": []string{"query"},
			},
		}),
		openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name: "ask_human",
			Description: openai.String("Escalate a question to a human admin when the knowledge base " +
				"does not contain sufficient information and you cannot confidently answer. " +
				"Provide a clear, self-contained question for the admin."),
			Parameters: shared.FunctionParameters{
				"type": "object",
				"properties": map[string]any{
					"question": map[string]any{
						"type":        "string",
						"description": "Self-contained question for the human admin",
					},
				},
				"required": []string{"question"},
			},
		}),
	}
}
