package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

const planSystemPrompt = `You are a research planner. Produce a JSON object:
{"objective": "<one line>", "steps": [{"tool": "<kind>", "input": "<tool input>"}]}
Allowed tool kinds: web_search, document_fetch, code_interpreter, summarize.
Use 2-4 steps. Respond with the JSON object only.`

const auditSystemPrompt = `You are a research plan auditor. Review the plan for
coverage, tool fit, and step ordering. Produce a JSON object:
{"verdict": "approved" or "rejected", "feedback": "<required when rejected>"}
Respond with the JSON object only.`

// OpenAICapability implements Capability over the OpenAI chat completions
// API. Plan generation and auditing use JSON response mode; tool dispatch and
// synthesis are plain-text completions.
type OpenAICapability struct {
	client openai.Client
	model  shared.ChatModel
}

// OpenAIOptions configures an OpenAICapability.
type OpenAIOptions struct {
	// APIKey overrides the OPENAI_API_KEY environment variable.
	APIKey string

	// BaseURL targets an OpenAI-compatible endpoint.
	BaseURL string

	// Model is the chat model name. Default: gpt-4o-mini.
	Model string
}

// NewOpenAICapability creates an OpenAI-backed capability.
func NewOpenAICapability(opts OpenAIOptions) *OpenAICapability {
	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	model := opts.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &OpenAICapability{
		client: openai.NewClient(clientOpts...),
		model:  shared.ChatModel(model),
	}
}

// GeneratePlan implements Capability.
func (c *OpenAICapability) GeneratePlan(ctx context.Context, query, feedback string) (*Plan, error) {
	user := fmt.Sprintf("Research query: %s", query)
	if feedback != "" {
		user += fmt.Sprintf("\n\nYour previous plan was rejected. Auditor feedback: %s", feedback)
	}

	raw, err := c.complete(ctx, planSystemPrompt, user, true)
	if err != nil {
		return nil, &GenerationError{Op: "generate_plan", Err: err}
	}

	var plan Plan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return nil, &GenerationError{Op: "generate_plan", Err: fmt.Errorf("parse plan: %w", err)}
	}
	if len(plan.Steps) == 0 {
		return nil, &GenerationError{Op: "generate_plan", Err: fmt.Errorf("plan has no steps")}
	}
	for i, step := range plan.Steps {
		if !step.Tool.Valid() {
			return nil, &GenerationError{
				Op:  "generate_plan",
				Err: fmt.Errorf("step %d: unknown tool kind %q", i, step.Tool),
			}
		}
	}

	return &plan, nil
}

// AuditPlan implements Capability.
func (c *OpenAICapability) AuditPlan(ctx context.Context, plan *Plan) (*Audit, error) {
	planJSON, err := json.Marshal(plan)
	if err != nil {
		return nil, &GenerationError{Op: "audit_plan", Err: err}
	}

	raw, err := c.complete(ctx, auditSystemPrompt, string(planJSON), true)
	if err != nil {
		return nil, &GenerationError{Op: "audit_plan", Err: err}
	}

	var audit Audit
	if err := json.Unmarshal([]byte(raw), &audit); err != nil {
		return nil, &GenerationError{Op: "audit_plan", Err: fmt.Errorf("parse audit: %w", err)}
	}
	if audit.Verdict != VerdictApproved && audit.Verdict != VerdictRejected {
		return nil, &GenerationError{
			Op:  "audit_plan",
			Err: fmt.Errorf("unknown verdict %q", audit.Verdict),
		}
	}

	return &audit, nil
}

// DispatchTool implements Capability. Tool execution is simulated by the
// model; the prompt constrains it to the requested tool's role.
func (c *OpenAICapability) DispatchTool(ctx context.Context, kind ToolKind, input string) (string, error) {
	if !kind.Valid() {
		return "", &ToolError{Kind: kind, Err: fmt.Errorf("unknown tool kind")}
	}

	system := fmt.Sprintf(
		"You simulate the %s tool for a research pipeline. Return the tool's output text only, no commentary.",
		kind)
	out, err := c.complete(ctx, system, input, false)
	if err != nil {
		return "", &ToolError{Kind: kind, Err: err}
	}
	return out, nil
}

// SynthesizeReport implements Capability.
func (c *OpenAICapability) SynthesizeReport(ctx context.Context, plan *Plan) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Objective: %s\n\n", plan.Objective)
	for i, step := range plan.Steps {
		fmt.Fprintf(&b, "Step %d (%s): %s\nResult: %s\n\n", i+1, step.Tool, step.Input, step.Result)
	}

	out, err := c.complete(ctx,
		"You are a research writer. Synthesize the step results below into a concise final report.",
		b.String(), false)
	if err != nil {
		return "", &GenerationError{Op: "synthesize_report", Err: err}
	}
	return out, nil
}

// complete issues one chat completion and returns the first choice's content.
func (c *OpenAICapability) complete(ctx context.Context, system, user string, jsonMode bool) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	}
	if jsonMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
