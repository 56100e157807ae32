package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// bedrockClient is the slice of the Bedrock runtime API the invoker needs.
type bedrockClient interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockInvoker is the production Invoker, calling the model through the
// Bedrock runtime.
type BedrockInvoker struct {
	client bedrockClient
}

// NewBedrockInvoker loads the default AWS credential chain for the given
// region and returns a ready invoker.
func NewBedrockInvoker(ctx context.Context, region string) (*BedrockInvoker, error) {
	if strings.TrimSpace(region) == "" {
		return nil, fmt.Errorf("missing region")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &BedrockInvoker{client: bedrockruntime.NewFromConfig(cfg)}, nil
}

// Invoke sends the payload to the model and returns the raw reply body.
func (b *BedrockInvoker) Invoke(ctx context.Context, modelID, contentType string, body []byte) ([]byte, error) {
	out, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelID),
		ContentType: aws.String(contentType),
		Body:        body,
	})
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}
