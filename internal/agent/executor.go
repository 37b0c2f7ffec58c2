package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/weftlabs/weft/pkg/models"
)

const defaultMaxTokens = 8192

// TimeoutPolicy maps a node's side-effect class to a per-task deadline.
// A zero duration means no deadline.
type TimeoutPolicy func(models.SideEffect) time.Duration

// Executor resolves task text through the Anthropic API. It implements
// runtime.Executor: one message exchange per execution state.
type Executor struct {
	client   *Client
	timeouts TimeoutPolicy
	sem      chan struct{}
}

// NewExecutor creates an API-backed executor. timeouts may be nil.
// maxParallel caps concurrent API calls across fan-out branches; zero or
// negative means unlimited.
func NewExecutor(client *Client, timeouts TimeoutPolicy, maxParallel int) *Executor {
	e := &Executor{client: client, timeouts: timeouts}
	if maxParallel > 0 {
		e.sem = make(chan struct{}, maxParallel)
	}
	return e
}

// Execute sends the node's task to the model and returns the assistant's
// text. input carries the upstream result named by the node's input key.
func (e *Executor) Execute(ctx context.Context, node *models.Node, input string) (string, error) {
	if e.sem != nil {
		select {
		case e.sem <- struct{}{}:
			defer func() { <-e.sem }()
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if e.timeouts != nil {
		if d := e.timeouts(node.SideEffect); d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
	}

	model := e.client.Model()
	if pinned := modelForAgent(node.Agent); pinned != "" {
		model = e.client.TranslateModel(pinned)
	}

	resp, err := e.client.sdk().Messages.New(ctx, anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: defaultMaxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt(node)},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt(node, input))),
		},
	})
	if err != nil {
		return "", fmt.Errorf("executing node %s: %w", node.ID, err)
	}

	e.client.Tracker().Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	var out strings.Builder
	for _, block := range resp.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			out.WriteString(text.Text)
		}
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("executing node %s: model returned no text", node.ID)
	}
	return out.String(), nil
}

// systemPrompt frames the task for the agent tag on the node.
func systemPrompt(node *models.Node) string {
	role := node.Agent
	if role == "" {
		role = "worker"
	}
	// Tags carry a version suffix like reviewer@v3; the role is the part
	// before it.
	if at := strings.Index(role, "@"); at >= 0 {
		role = role[:at]
	}
	return fmt.Sprintf("You are the %s agent in an orchestration pipeline. "+
		"Complete the task you are given and reply with the result only.", role)
}

// userPrompt combines the node's task with its upstream input, when any.
func userPrompt(node *models.Node, input string) string {
	if input == "" {
		return node.Task
	}
	return fmt.Sprintf("%s\n\n## Input (%s)\n%s", node.Task, node.InputKey, input)
}

// modelForAgent returns the model pinned by an agent tag, or empty when the
// tag carries none. Tags may pin a model as role@version#model.
func modelForAgent(tag string) anthropic.Model {
	if hash := strings.Index(tag, "#"); hash >= 0 {
		return anthropic.Model(tag[hash+1:])
	}
	return ""
}
