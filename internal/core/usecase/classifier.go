package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/kirillkom/filemeta-worker/internal/core/domain"
	"github.com/kirillkom/filemeta-worker/internal/core/ports"
)

const (
	maxOutputTokens = 200
	maxTags         = 8
	// DescriptionWordLimit bounds image descriptions and their fallback.
	DescriptionWordLimit = 20
	// DocumentWordLimit bounds document summaries.
	DocumentWordLimit = 40
)

var (
	classificationParams = domain.GenerationParams{MaxTokens: maxOutputTokens, Temperature: 0.0, TopP: 0.9}
	descriptionParams    = domain.GenerationParams{MaxTokens: maxOutputTokens, Temperature: 0.7, TopP: 0.9}

	fencedBlockPattern = regexp.MustCompile("(?s)```.*?```")
	tagCharsPattern    = regexp.MustCompile(`[^a-zA-Z0-9\s]`)
)

// ContentClassifier derives summary, tags and sensitivity flags from text
// using one model invocation per question.
type ContentClassifier struct {
	generator ports.TextGenerator
	logger    *slog.Logger
	recorder  ModelRecorder
}

func NewContentClassifier(generator ports.TextGenerator, logger *slog.Logger, recorder ModelRecorder) *ContentClassifier {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &ContentClassifier{
		generator: generator,
		logger:    logger,
		recorder:  recorder,
	}
}

// AnalyzeContent runs the summary, tags, sensitive and confidential prompts in
// order. Any failure yields the empty fallback result instead of an error.
func (c *ContentClassifier) AnalyzeContent(ctx context.Context, text string, wordLimit int) domain.AnalysisResult {
	result, err := c.analyzeContent(ctx, text, wordLimit)
	if err != nil {
		c.logger.Error("content_analysis_failed", "error", err)
		return domain.AnalysisResult{Tags: []string{}}
	}
	return result
}

func (c *ContentClassifier) analyzeContent(ctx context.Context, text string, wordLimit int) (domain.AnalysisResult, error) {
	summary, err := c.Summarize(ctx, text, wordLimit)
	if err != nil {
		return domain.AnalysisResult{}, err
	}
	tags, err := c.Tag(ctx, text)
	if err != nil {
		return domain.AnalysisResult{}, err
	}
	sensitive, err := c.IsSensitive(ctx, text)
	if err != nil {
		return domain.AnalysisResult{}, err
	}
	confidential, err := c.IsConfidential(ctx, text)
	if err != nil {
		return domain.AnalysisResult{}, err
	}

	return domain.AnalysisResult{
		Summary:      &summary,
		Tags:         tags,
		Sensitive:    sensitive,
		Confidential: confidential,
	}, nil
}

func (c *ContentClassifier) Summarize(ctx context.Context, text string, wordLimit int) (string, error) {
	return c.ask(ctx, "summary", buildSummaryPrompt(text, wordLimit))
}

func (c *ContentClassifier) Tag(ctx context.Context, text string) ([]string, error) {
	raw, err := c.ask(ctx, "tags", buildTagsPrompt(text))
	if err != nil {
		return nil, err
	}
	return ParseTags(raw), nil
}

func (c *ContentClassifier) IsSensitive(ctx context.Context, text string) (bool, error) {
	raw, err := c.ask(ctx, "sensitive", buildSensitivePrompt(text))
	if err != nil {
		return false, err
	}
	return parseFlag(raw), nil
}

func (c *ContentClassifier) IsConfidential(ctx context.Context, text string) (bool, error) {
	raw, err := c.ask(ctx, "confidential", buildConfidentialPrompt(text))
	if err != nil {
		return false, err
	}
	return parseFlag(raw), nil
}

// Describe produces a one-line neutral description. When the model call fails
// the input itself, cut to wordLimit words, stands in for the description.
func (c *ContentClassifier) Describe(ctx context.Context, text string, wordLimit int) string {
	start := time.Now()
	out, err := c.generator.Invoke(ctx, buildDescriptionPrompt(text, wordLimit), descriptionParams)
	c.recorder.ObserveModelCall("description", time.Since(start), err)
	if err != nil {
		c.logger.Error("description_failed", "error", err)
		return truncateWords(text, wordLimit)
	}
	return strings.TrimSpace(out)
}

func (c *ContentClassifier) ask(ctx context.Context, purpose, prompt string) (string, error) {
	start := time.Now()
	out, err := c.generator.Invoke(ctx, prompt, classificationParams)
	c.recorder.ObserveModelCall(purpose, time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("invoke model for %s: %w", purpose, err)
	}
	return sanitizeOutput(out), nil
}

// sanitizeOutput drops fenced code blocks and stray backticks.
func sanitizeOutput(out string) string {
	out = fencedBlockPattern.ReplaceAllString(out, "")
	out = strings.ReplaceAll(out, "`", "")
	return strings.TrimSpace(out)
}

// ParseTags splits a comma separated model answer into at most eight unique
// tags. Punctuation is stripped but case is kept, so "Cats" and "cats" are
// distinct.
func ParseTags(csv string) []string {
	tags := make([]string, 0, maxTags)
	seen := make(map[string]struct{})
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		tag := strings.TrimSpace(tagCharsPattern.ReplaceAllString(part, ""))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
		if len(tags) == maxTags {
			break
		}
	}
	return tags
}

func parseFlag(raw string) bool {
	return strings.EqualFold(strings.TrimSpace(raw), "true")
}

func truncateWords(text string, limit int) string {
	words := strings.Fields(text)
	if len(words) > limit {
		return strings.Join(words[:limit], " ") + "..."
	}
	return strings.TrimSpace(text)
}
