package nodes

import (
	"context"
	"errors"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/manifold-flow/manifold/pkg/flow"
	"github.com/manifold-flow/manifold/pkg/value"
)

const defaultMaxTokens = 4096

// LLMNode sends a single prompt to the Anthropic Messages API and reports
// the text of the reply. Rate limits and server errors come back marked
// transient so the engine retry policy covers them.
type LLMNode struct {
	DefaultModel string

	// client is lazily constructed; the SDK reads ANTHROPIC_API_KEY.
	client *anthropicsdk.Client
}

type llmPrep struct {
	model     string
	prompt    string
	system    string
	maxTokens int64
}

type llmResult struct {
	text       string
	model      string
	stopReason string
}

func (n *LLMNode) Prep(_ context.Context, in *flow.Invocation) (any, error) {
	prompt := in.Params.GetString("prompt")
	if prompt == "" {
		return nil, fmt.Errorf("llm: missing 'prompt' param")
	}
	p := llmPrep{
		model:     n.DefaultModel,
		prompt:    prompt,
		system:    in.Params.GetString("system"),
		maxTokens: defaultMaxTokens,
	}
	if m := in.Params.GetString("model"); m != "" {
		p.model = m
	}
	if p.model == "" {
		return nil, fmt.Errorf("llm: no model configured")
	}
	if mt, ok := in.Params.Get("max_tokens"); ok {
		if f, isNum := mt.AsNumber(); isNum && f > 0 {
			p.maxTokens = int64(f)
		}
	}
	return p, nil
}

func (n *LLMNode) Exec(ctx context.Context, prep any) (any, error) {
	p := prep.(llmPrep)

	if n.client == nil {
		c := anthropicsdk.NewClient(option.WithAPIKey("")) // env key
		n.client = &c
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(p.model),
		MaxTokens: p.maxTokens,
		Messages: []anthropicsdk.MessageParam{
			anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(p.prompt)),
		},
	}
	if p.system != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: p.system}}
	}

	msg, err := n.client.Messages.New(ctx, params)
	if err != nil {
		return nil, mapAPIError(err)
	}

	text := ""
	for _, b := range msg.Content {
		if b.Type == "text" {
			text += b.Text
		}
	}
	return llmResult{text: text, model: p.model, stopReason: string(msg.StopReason)}, nil
}

func (n *LLMNode) Post(_ context.Context, _ *flow.Invocation, _, exec any) (flow.Outcome, error) {
	res := exec.(llmResult)
	out := value.NewMap()
	out.Set("text", value.String(res.text))
	out.Set("model", value.String(res.model))
	out.Set("stop_reason", value.String(res.stopReason))
	return flow.Outcome{Outputs: out}, nil
}

// mapAPIError marks retryable provider failures transient: rate limits,
// overload, and 5xx.
func mapAPIError(err error) error {
	var apiErr *anthropicsdk.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 529:
			return flow.MarkTransient(fmt.Errorf("llm: %w", err))
		}
		return fmt.Errorf("llm: %w", err)
	}
	// Network-level failure.
	return flow.MarkTransient(fmt.Errorf("llm: %w", err))
}
