package inference

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/stacklens/catalog-ingest/internal/resilience"
)

// Options tunes the SDK-backed client.
type Options struct {
	Model          string
	Timeout        time.Duration
	RequestsPerSec float64
	MaxTokens      int64
}

func (o *Options) applyDefaults() {
	if o.Model == "" {
		o.Model = "claude-haiku-4-5-20251001"
	}
	if o.Timeout <= 0 {
		o.Timeout = 20 * time.Second
	}
	if o.RequestsPerSec <= 0 {
		o.RequestsPerSec = 5
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 2048
	}
}

// sdkClient implements Client using the official anthropic-sdk-go.
// Temperature is pinned to 0 on every request. A shared circuit breaker
// covers every outbound call so a degraded service fails callers fast and
// lets them fall back to heuristics.
type sdkClient struct {
	client  sdk.Client
	opts    Options
	limiter *rate.Limiter
	breaker *resilience.Breaker
}

// NewClient creates an inference client backed by the Anthropic SDK.
func NewClient(apiKey string, opts Options) Client {
	opts.applyDefaults()
	return &sdkClient{
		client:  sdk.NewClient(option.WithAPIKey(apiKey)),
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSec), 1),
		breaker: resilience.NewBreaker(0, 0),
	}
}

// send runs one rate-limited, timeout-bounded request through the breaker.
func (c *sdkClient) send(ctx context.Context, params sdk.MessageNewParams) (*sdk.Message, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "inference: rate limit wait")
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	var msg *sdk.Message
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var callErr error
		msg, callErr = c.client.Messages.New(ctx, params)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (c *sdkClient) GuessSchema(ctx context.Context, req SchemaRequest) (*SchemaHypothesis, error) {
	var sb strings.Builder
	sb.WriteString("Infer the column schema of this tabular document sample. ")
	sb.WriteString(`Respond with JSON only: {"columns":[{"name":"...","type":"string|integer|decimal|currency|date|bool|list","confidence":0.0}]}`)
	sb.WriteString("\n\nFilename: " + req.Filename + "\n")
	if len(req.Headers) > 0 {
		sb.WriteString("Headers: " + strings.Join(req.Headers, " | ") + "\n")
	}
	for i, row := range req.Rows {
		if i >= 10 {
			break
		}
		sb.WriteString("Row: " + strings.Join(row, " | ") + "\n")
	}
	if req.Context != "" {
		sb.WriteString("\nSession context:\n" + req.Context + "\n")
	}

	text, err := c.complete(ctx, sb.String())
	if err != nil {
		return nil, err
	}
	var out SchemaHypothesis
	if err := decode("schema", text, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *sdkClient) SuggestMapping(ctx context.Context, req MappingRequest) (*MappingSuggestion, error) {
	var sb strings.Builder
	sb.WriteString("Map this source column to exactly one canonical catalog field, or \"\" if none fits. ")
	sb.WriteString(`Respond with JSON only: {"target_field":"...","confidence":0.0,"reasoning":"..."}`)
	sb.WriteString("\n\nColumn: " + req.Column + "\n")
	sb.WriteString("Sample values: " + strings.Join(req.Samples, " | ") + "\n")
	sb.WriteString("Allowed target fields: " + strings.Join(req.TargetFields, ", ") + "\n")
	if req.Context != "" {
		sb.WriteString("\nSession context:\n" + req.Context + "\n")
	}

	text, err := c.complete(ctx, sb.String())
	if err != nil {
		return nil, err
	}
	var out MappingSuggestion
	if err := decode("mapping", text, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *sdkClient) ConfirmDuplicate(ctx context.Context, req DuplicateRequest) (*DuplicateVerdict, error) {
	a, _ := json.Marshal(req.ItemA)
	b, _ := json.Marshal(req.ItemB)
	prompt := fmt.Sprintf(
		"Are these two catalog items the same real-world item? Algorithmic similarity: %.2f.\n"+
			`Respond with JSON only: {"duplicate":true,"confidence":0.0,"reasoning":"..."}`+
			"\n\nItem A: %s\nItem B: %s\n",
		req.Similarity, a, b,
	)

	text, err := c.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	var out DuplicateVerdict
	if err := decode("duplicate", text, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *sdkClient) RecognizeDocument(ctx context.Context, req VisionRequest) (*RecognizedText, error) {
	imageBlock := sdk.NewImageBlockBase64(req.MediaType, base64.StdEncoding.EncodeToString(req.ImageData))
	textBlock := sdk.NewTextBlock(
		"Transcribe all text from this document page. " +
			`Respond with JSON only: {"text":"...","confidence":0.0}`,
	)

	msg, err := c.send(ctx, sdk.MessageNewParams{
		Model:       sdk.Model(c.opts.Model),
		MaxTokens:   c.opts.MaxTokens,
		Temperature: sdk.Float(0),
		Messages:    []sdk.MessageParam{sdk.NewUserMessage(imageBlock, textBlock)},
	})
	if err != nil {
		return nil, eris.Wrap(err, "inference: recognize document")
	}

	var out RecognizedText
	if err := decode("vision", firstText(msg), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// complete sends one text prompt and returns the first text block of the
// response.
func (c *sdkClient) complete(ctx context.Context, prompt string) (string, error) {
	msg, err := c.send(ctx, sdk.MessageNewParams{
		Model:       sdk.Model(c.opts.Model),
		MaxTokens:   c.opts.MaxTokens,
		Temperature: sdk.Float(0),
		Messages:    []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(prompt))},
	})
	if err != nil {
		return "", eris.Wrap(err, "inference: create message")
	}

	zap.L().Debug("inference: completion",
		zap.Int64("input_tokens", msg.Usage.InputTokens),
		zap.Int64("output_tokens", msg.Usage.OutputTokens),
	)

	return firstText(msg), nil
}

func firstText(msg *sdk.Message) string {
	for _, b := range msg.Content {
		if b.Type == "text" {
			return b.Text
		}
	}
	return ""
}
