package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/samber/oops"
)

// ArkCompleter runs prompts through an eino chain over an Ark chat model.
type ArkCompleter struct {
	chatModel model.ChatModel
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// NewArkCompleter compiles the system+user chain for chatModel.
func NewArkCompleter(ctx context.Context, chatModel model.ChatModel) (*ArkCompleter, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &ArkCompleter{chatModel: chatModel, chain: runnable}, nil
}

// Complete invokes the chain with the prompt's system and user text.
func (c *ArkCompleter) Complete(ctx context.Context, p Prompt) (string, error) {
	input := map[string]any{
		"system": p.System,
		"query":  p.User,
	}

	var opts []model.Option
	if p.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(p.MaxTokens))
	}
	if p.Temperature > 0 {
		opts = append(opts, model.WithTemperature(p.Temperature))
	}

	response, err := c.chain.Invoke(ctx, input, compose.WithChatModelOption(opts...))
	if err != nil {
		return "", oops.In("ai").With("backend", "ark").Wrapf(err, "failed to run chat chain")
	}
	if response == nil || strings.TrimSpace(response.Content) == "" {
		return "", ErrEmptyCompletion
	}
	return response.Content, nil
}

// Name identifies the backend in logs.
func (c *ArkCompleter) Name() string {
	return "ark"
}
