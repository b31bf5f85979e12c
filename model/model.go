package model

import (
	"context"
	"fmt"
)

// Message is one role-tagged turn of model input.
type Message struct {
	Role    string `json:"role"` // "system", "user" or "assistant"
	Content string `json:"content"`
}

// SystemMessage builds a system-role turn.
func SystemMessage(content string) Message { return Message{Role: "system", Content: content} }

// UserMessage builds a user-role turn.
func UserMessage(content string) Message { return Message{Role: "user", Content: content} }

// AssistantMessage builds an assistant-role turn.
func AssistantMessage(content string) Message { return Message{Role: "assistant", Content: content} }

// Request captures the normalized model input produced by agents.
type Request struct {
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	Stream      bool      `json:"stream,omitempty"`
}

// Response is a (partial or final) chunk emitted by a model. For streaming
// requests the partial Text fragments concatenate to the final Text.
type Response struct {
	Partial      bool   `json:"partial"`
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", etc.
}

// Model is the minimal interface required by agents to drive generation.
// Generate returns a response channel and an error channel; both are closed
// when the call completes. The error channel carries at most one terminal
// error.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Complete drives a non-streaming generation to completion and returns the
// final text. It is the common path for agents that need a whole completion
// rather than fragments.
func Complete(ctx context.Context, m Model, req Request) (string, error) {
	req.Stream = false
	respCh, errCh := m.Generate(ctx, req)
	var text string
	for resp := range respCh {
		if !resp.Partial {
			text = resp.Text
		}
	}
	if err := <-errCh; err != nil {
		return "", err
	}
	return text, nil
}

// MockModel is a lightweight in-memory Model useful for tests & examples.
type MockModel struct {
	info      Info
	responses map[string]string
	err       error
}

// NewMockModel constructs a MockModel keyed on the last user message.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: "mock"},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) { m.responses[prompt] = response }

// FailWith makes every Generate call report err.
func (m *MockModel) FailWith(err error) { m.err = err }

// Generate implements Model; emits optional streaming char chunks then the final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)
		if m.err != nil {
			errCh <- m.err
			return
		}
		if len(req.Messages) == 0 {
			errCh <- fmt.Errorf("no messages provided")
			return
		}
		inputText := req.Messages[len(req.Messages)-1].Content
		full := m.responses[inputText]
		if full == "" {
			full = fmt.Sprintf("Mock response to: %s", inputText)
		}
		if req.Stream {
			for _, r := range full {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, Text: string(r)}:
				}
			}
		}
		respCh <- Response{Partial: false, Text: full, FinishReason: "stop"}
	}()

	return respCh, errCh
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
