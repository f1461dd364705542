package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const systemPrompt = `You are a clinical information extraction engine. Given a clinical note and the patient's current problem list, respond with a single JSON object of the form
{"mentions": [{"title", "suggestedCode", "suggestedStatus", "confidence", "supportingText", "reasoning", "bodySite", "laterality"}], "orders": [{"orderType", "payload"}]}.
"suggestedStatus" must be one of active, chronic, improved, worsening, resolved. "orderType" must be one of medication, lab, imaging, referral. "confidence" is a number between 0 and 1. Only report what the text supports. Respond with JSON only.`

type openAIExtractor struct {
	client *openai.Client
	cfg    *Config
	logger *zap.SugaredLogger
}

func NewOpenAIExtractor(cfg *Config, logger *zap.SugaredLogger) (Extractor, error) {
	if cfg.ApiKey == "" {
		return nil, fmt.Errorf("extractor api key is not set")
	}
	return &openAIExtractor{
		client: openai.NewClient(cfg.ApiKey),
		cfg:    cfg,
		logger: logger,
	}, nil
}

func (e *openAIExtractor) Extract(ctx context.Context, text string, pc PatientContext) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(e.cfg.TimeoutSeconds)*time.Second)
	defer cancel()

	var content string
	err := retry.Do(
		func() error {
			resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
				Model: e.cfg.Model,
				Messages: []openai.ChatCompletionMessage{
					{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
					{Role: openai.ChatMessageRoleUser, Content: e.buildPrompt(text, pc)},
				},
				ResponseFormat: &openai.ChatCompletionResponseFormat{
					Type: openai.ChatCompletionResponseFormatTypeJSONObject,
				},
			})
			if err != nil {
				return err
			}
			if len(resp.Choices) == 0 {
				return fmt.Errorf("completion returned no choices")
			}
			content = resp.Choices[0].Message.Content
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(e.cfg.MaxAttempts),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		// Extraction is best-effort: a dead or misbehaving model must not fail
		// the whole documentation request.
		e.logger.Warnw("extraction failed, degrading to empty result", "error", err)
		return EmptyResult(fmt.Sprintf("extraction failed: %v", err)), nil
	}

	result := &Result{}
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		e.logger.Warnw("extraction returned malformed JSON", "error", err)
		return EmptyResult("extraction returned malformed response"), nil
	}
	result.Sanitize()
	return result, nil
}

func (e *openAIExtractor) buildPrompt(text string, pc PatientContext) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Patient: age %d, sex %s.\n", pc.Age, pc.Sex)
	if len(pc.ActiveProblems) > 0 {
		sb.WriteString("Current problem list:\n")
		for _, p := range pc.ActiveProblems {
			fmt.Fprintf(&sb, "- %s (%s)\n", p.Title, p.Icd10Code)
		}
	} else {
		sb.WriteString("Current problem list: none on record.\n")
	}
	sb.WriteString("\nClinical text:\n")
	sb.WriteString(text)
	return sb.String()
}
