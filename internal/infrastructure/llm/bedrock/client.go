package bedrock

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/kirillkom/filemeta-worker/internal/core/domain"
	"github.com/kirillkom/filemeta-worker/internal/infrastructure/resilience"
)

const DefaultModelID = "amazon.titan-text-express-v1"

// RuntimeAPI is the subset of the Bedrock runtime client used here.
type RuntimeAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Client invokes a Titan text model.
type Client struct {
	runtime RuntimeAPI
	modelID string
	exec    *resilience.Executor
}

func New(runtime RuntimeAPI, modelID string, exec *resilience.Executor) *Client {
	if modelID == "" {
		modelID = DefaultModelID
	}
	if exec == nil {
		exec = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Client{runtime: runtime, modelID: modelID, exec: exec}
}

type titanRequest struct {
	InputText            string               `json:"inputText"`
	TextGenerationConfig textGenerationConfig `json:"textGenerationConfig"`
}

type textGenerationConfig struct {
	MaxTokenCount int     `json:"maxTokenCount"`
	Temperature   float64 `json:"temperature"`
	TopP          float64 `json:"topP"`
}

type titanResponse struct {
	Results []struct {
		OutputText       string `json:"outputText"`
		CompletionReason string `json:"completionReason"`
	} `json:"results"`
}

// Invoke returns the first result's output text exactly as the model wrote it.
func (c *Client) Invoke(ctx context.Context, prompt string, params domain.GenerationParams) (string, error) {
	body, err := json.Marshal(titanRequest{
		InputText: prompt,
		TextGenerationConfig: textGenerationConfig{
			MaxTokenCount: params.MaxTokens,
			Temperature:   params.Temperature,
			TopP:          params.TopP,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal titan request: %w", err)
	}

	output, err := resilience.Do(ctx, c.exec, "bedrock.invoke_model", func(ctx context.Context) (*bedrockruntime.InvokeModelOutput, error) {
		return c.runtime.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     aws.String(c.modelID),
			ContentType: aws.String("application/json"),
			Accept:      aws.String("application/json"),
			Body:        body,
		})
	}, resilience.ClassifyAWSError)
	if err != nil {
		return "", wrapTemporaryIfNeeded(err)
	}

	var response titanResponse
	if err := json.Unmarshal(output.Body, &response); err != nil {
		return "", fmt.Errorf("decode titan response: %w", err)
	}
	if len(response.Results) == 0 {
		return "", fmt.Errorf("titan response for model %s has no results", c.modelID)
	}
	return response.Results[0].OutputText, nil
}

func wrapTemporaryIfNeeded(err error) error {
	if domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if resilience.ClassifyAWSError(err).Retryable || resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, "bedrock invoke model", err)
	}
	return fmt.Errorf("bedrock invoke model: %w", err)
}
