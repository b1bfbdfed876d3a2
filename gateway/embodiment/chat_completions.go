// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package embodiment

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"agentgateway/shared/types"
)

// ChatComponentID addresses the agent's conversational entry point when the
// request model does not name a skill.
const ChatComponentID = "chat"

// ChatMessage is an OpenAI chat message
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// ChatCompletionRequest is the OpenAI-compatible request body
type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Stream      bool          `json:"stream,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	User        string        `json:"user,omitempty"`
}

// Validate checks the request shape
func (r *ChatCompletionRequest) Validate() error {
	if len(r.Messages) == 0 {
		return errors.New("messages must contain at least one message")
	}
	for i, m := range r.Messages {
		switch m.Role {
		case "system", "user", "assistant", "tool", "developer":
		default:
			return fmt.Errorf("messages[%d].role %q is not supported", i, m.Role)
		}
	}
	return nil
}

// ChatCompletion is the non-streaming response
type ChatCompletion struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   ChatUsage    `json:"usage"`
}

// ChatChoice is one completion choice
type ChatChoice struct {
	Index        int          `json:"index"`
	Message      *ChatMessage `json:"message,omitempty"`
	Delta        *ChatDelta   `json:"delta,omitempty"`
	FinishReason *string      `json:"finish_reason"`
}

// ChatDelta is a streamed message fragment
type ChatDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// ChatUsage is token accounting; the runner does not report it
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletionChunk is one streamed SSE payload
type ChatCompletionChunk struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
}

// OpenAIError is the OpenAI error object
type OpenAIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

type openAIErrorEnvelope struct {
	Error OpenAIError `json:"error"`
}

// streamLine is one NDJSON line produced by SkillExecutor.StreamSkill.
type streamLine struct {
	Content string `json:"content"`
	Done    bool   `json:"done"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ChatCompletions serves POST /v1/chat/completions.
func (h *Handlers) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	agent := types.AgentFromContext(r.Context())
	if agent == nil || agent.Agent == nil {
		writeOpenAIError(w, types.NewError("chat.completions", types.ErrNotFoundAgent, "", nil))
		return
	}

	var req ChatCompletionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxChatBodyBytes)).Decode(&req); err != nil {
		writeOpenAIError(w, types.NewError("chat.completions", types.ErrValidation, "request body must be a JSON chat completion request", err))
		return
	}
	if err := req.Validate(); err != nil {
		writeOpenAIError(w, types.NewError("chat.completions", types.ErrValidation, err.Error(), nil))
		return
	}

	componentID := ChatComponentID
	if skill, ok := agent.Agent.SkillByEndpoint(req.Model); ok {
		componentID = skill.ComponentID
	}
	model := req.Model
	if model == "" {
		model = agent.ID
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"messages":       req.Messages,
		"model":          model,
		"stream":         req.Stream,
		"conversationId": r.Header.Get(types.HeaderConversationID),
	})

	executor, err := h.executorFor(r)
	if err != nil {
		writeOpenAIError(w, err)
		return
	}

	if req.Stream {
		h.streamChat(w, r, executor, agent, componentID, model, payload)
		return
	}

	result, err := executor.ExecuteSkill(r.Context(), agent.ID, componentID, payload)
	if err != nil {
		h.log.Error(agent.ID, types.CorrelationIDFromContext(r.Context()), "Chat completion failed", map[string]interface{}{
			"component_id": componentID,
			"error":        err.Error(),
		})
		writeOpenAIError(w, err)
		return
	}

	stop := "stop"
	resp := ChatCompletion{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []ChatChoice{{
			Index:        0,
			Message:      &ChatMessage{Role: "assistant", Content: resultText(result)},
			FinishReason: &stop,
		}},
	}
	writeJSON(w, http.StatusOK, resp)
}

const maxChatBodyBytes = 4 << 20

func (h *Handlers) streamChat(w http.ResponseWriter, r *http.Request, executor SkillExecutor, agent *types.AgentContext, componentID, model string, payload []byte) {
	ctx := r.Context()
	correlationID := types.CorrelationIDFromContext(ctx)

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeOpenAIError(w, types.NewError("chat.stream", errors.New("streaming unsupported"), "streaming unsupported", nil))
		return
	}

	body, err := executor.StreamSkill(ctx, agent.ID, componentID, payload)
	if err != nil {
		writeOpenAIError(w, err)
		return
	}
	defer body.Close()

	// Close the upstream read handle as soon as the client goes away.
	stopWatch := context.AfterFunc(ctx, func() { _ = body.Close() })
	defer stopWatch()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	id := "chatcmpl-" + uuid.NewString()
	created := time.Now().Unix()
	chunk := func(delta ChatDelta, finish *string) ChatCompletionChunk {
		return ChatCompletionChunk{
			ID:      id,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   model,
			Choices: []ChatChoice{{Index: 0, Delta: &delta, FinishReason: finish}},
		}
	}

	if err := writeSSE(w, flusher, chunk(ChatDelta{Role: "assistant"}, nil)); err != nil {
		return
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var msg streamLine
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			msg.Content = line
		}

		if msg.Error != nil {
			code := msg.Error.Code
			if code == "" {
				code = string(types.CodeUpstream)
			}
			h.log.Warn(agent.ID, correlationID, "Upstream error mid-stream", map[string]interface{}{"code": code, "message": msg.Error.Message})
			_ = writeSSE(w, flusher, openAIErrorEnvelope{Error: OpenAIError{Code: code, Message: msg.Error.Message, Type: "upstream_error"}})
			return
		}
		if msg.Done {
			break
		}
		if msg.Content == "" {
			continue
		}
		if err := writeSSE(w, flusher, chunk(ChatDelta{Content: msg.Content}, nil)); err != nil {
			return
		}
	}

	if err := scanner.Err(); err != nil || ctx.Err() != nil {
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			h.log.Warn(agent.ID, correlationID, "Request timed out during stream", nil)
			_ = writeSSE(w, flusher, openAIErrorEnvelope{Error: OpenAIError{
				Code:    string(types.CodeTimeout),
				Message: types.ErrTimeout.Error(),
				Type:    "timeout_error",
			}})
		case ctx.Err() != nil:
			h.log.Info(agent.ID, correlationID, "Client disconnected during stream", nil)
		default:
			h.log.Warn(agent.ID, correlationID, "Upstream stream failed", map[string]interface{}{"error": err.Error()})
			_ = writeSSE(w, flusher, openAIErrorEnvelope{Error: OpenAIError{
				Code:    string(types.CodeUpstream),
				Message: "upstream stream interrupted",
				Type:    "upstream_error",
			}})
		}
		return
	}

	stop := "stop"
	if err := writeSSE(w, flusher, chunk(ChatDelta{}, &stop)); err != nil {
		return
	}
	_, _ = io.WriteString(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func writeSSE(w io.Writer, flusher http.Flusher, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// resultText extracts assistant text from a skill result: a JSON string, an
// object with a content/response/text field, or the raw JSON.
func resultText(result json.RawMessage) string {
	if len(result) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(result, &s); err == nil {
		return s
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(result, &obj); err == nil {
		for _, key := range []string{"content", "response", "text", "result"} {
			if v, ok := obj[key].(string); ok {
				return v
			}
		}
	}
	return string(result)
}

func writeOpenAIError(w http.ResponseWriter, err error) {
	ge := types.AsGatewayError(err)
	writeJSON(w, ge.HTTPStatus(), openAIErrorEnvelope{Error: OpenAIError{
		Code:    string(ge.Code()),
		Message: ge.PublicMessage(),
		Type:    openAIErrorType(ge),
	}})
}

func openAIErrorType(ge *types.GatewayError) string {
	switch ge.Code() {
	case types.CodeValidation:
		return "invalid_request_error"
	case types.CodeUnauthorized, types.CodeProviderNotConfigured:
		return "authentication_error"
	case types.CodeNotFoundAgent, types.CodeNotFoundFile:
		return "not_found_error"
	default:
		return "server_error"
	}
}
