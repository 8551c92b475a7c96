package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sashabaranov/go-openai"
	"github.com/shopspring/decimal"
	"github.com/tallyline/backend/internal/domain/conversation"
	"github.com/tallyline/backend/internal/infrastructure/config"
	"github.com/tallyline/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// DefaultModel is used when no model is configured
const DefaultModel = openai.GPT4oMini

// ErrMalformedResponse is returned when the model's answer cannot be used
var ErrMalformedResponse = errors.New("classifier returned a malformed response")

// chatCompleter is the part of the OpenAI client the classifier needs
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIClassifier classifies merchant text with an OpenAI-compatible chat
// completion endpoint in JSON mode.
type OpenAIClassifier struct {
	client   chatCompleter
	model    string
	validate *validator.Validate
	logger   *zap.Logger
}

// NewOpenAIClassifier creates a classifier from configuration. An empty
// BaseURL targets the public OpenAI API.
func NewOpenAIClassifier(cfg config.ClassifierConfig, logger *zap.Logger) *OpenAIClassifier {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	// the router enforces the real deadline; this only guards a hung connection
	clientCfg.HTTPClient = &http.Client{Timeout: 2 * max(cfg.Timeout, 5*time.Second)}

	return newClassifier(openai.NewClientWithConfig(clientCfg), cfg.Model, logger)
}

func newClassifier(client chatCompleter, model string, logger *zap.Logger) *OpenAIClassifier {
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIClassifier{
		client:   client,
		model:    model,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// classifyInput is the user message sent with every request
type classifyInput struct {
	Text           string   `json:"text"`
	MerchantName   string   `json:"merchantName"`
	OpenBalances   []string `json:"openBalances"`
	CurrentFlow    string   `json:"currentFlow,omitempty"`
	CurrentSession string   `json:"currentSession,omitempty"`
}

// intentResponse is the JSON object the model must produce
type intentResponse struct {
	Intent     string        `json:"intent" validate:"required,oneof=create_transaction check_balance update_record support_request chit_chat"`
	Confidence float64       `json:"confidence" validate:"gte=0,lte=1"`
	Slots      slotsResponse `json:"slots"`
}

type slotsResponse struct {
	CounterpartyName string           `json:"counterpartyName" validate:"max=100"`
	Total            *decimal.Decimal `json:"total"`
	AmountPaid       *decimal.Decimal `json:"amountPaid"`
	Item             string           `json:"item" validate:"max=200"`
	DueDate          string           `json:"dueDate"`
	NewName          string           `json:"newName" validate:"max=100"`
	Action           string           `json:"action" validate:"omitempty,oneof=payment rename due_date"`
	CannedReply      string           `json:"cannedReply"`
	// some prompts in the wild spell it this way
	CanedReply string `json:"canedReply"`
}

// Classify implements conversation.Classifier
func (c *OpenAIClassifier) Classify(ctx context.Context, req conversation.ClassifyRequest) (*conversation.Intent, error) {
	ctx, span := telemetry.StartSpan(ctx, "classifier.classify")
	defer span.End()

	input, err := json.Marshal(classifyInput{
		Text:           req.Text,
		MerchantName:   req.MerchantName,
		OpenBalances:   req.OpenBalanceSummaries,
		CurrentFlow:    string(req.CurrentFlow),
		CurrentSession: req.CurrentSession,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode classifier input: %w", err)
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: string(input)},
		},
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}

	intent, err := c.parse(resp.Choices[0].Message.Content)
	if err != nil {
		telemetry.RecordError(span, err)
		c.logger.Warn("Discarding classifier output", zap.String("model", c.model), zap.Error(err))
		return nil, err
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrIntent, string(intent.Type))
	return intent, nil
}

// parse decodes and validates the model output. Out-of-range amounts and
// unreadable dates are dropped rather than failing the whole intent.
func (c *OpenAIClassifier) parse(content string) (*conversation.Intent, error) {
	content = stripCodeFence(content)

	var out intentResponse
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := c.validate.Struct(out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	slots := conversation.Slots{
		CounterpartyName: strings.TrimSpace(out.Slots.CounterpartyName),
		Total:            positive(out.Slots.Total),
		AmountPaid:       positive(out.Slots.AmountPaid),
		Item:             strings.TrimSpace(out.Slots.Item),
		DueDate:          parseDate(out.Slots.DueDate),
		NewName:          strings.TrimSpace(out.Slots.NewName),
		Action:           conversation.UpdateAction(out.Slots.Action),
		CannedReply:      out.Slots.CannedReply,
	}
	if slots.CannedReply == "" {
		slots.CannedReply = out.Slots.CanedReply
	}

	return &conversation.Intent{
		Type:       conversation.IntentType(out.Intent),
		Confidence: out.Confidence,
		Slots:      slots,
	}, nil
}

func positive(d *decimal.Decimal) *decimal.Decimal {
	if d == nil || !d.IsPositive() {
		return nil
	}
	rounded := d.Round(2)
	return &rounded
}

func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// stripCodeFence removes a markdown fence some models wrap JSON in
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

var _ conversation.Classifier = (*OpenAIClassifier)(nil)
