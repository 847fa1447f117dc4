package embedding

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/fugue-ai/rhema-sub012/rherr"
)

// BedrockEmbedder calls AWS Bedrock's Titan embedding model. This is one
// optional concrete backend behind the Embedder contract; nothing else in
// this kernel depends on Bedrock specifically.
type BedrockEmbedder struct {
	client  *bedrockruntime.Client
	modelID string
	dim     int
}

// BedrockOptions configures a BedrockEmbedder.
type BedrockOptions struct {
	Region  string
	ModelID string // e.g. "amazon.titan-embed-text-v2:0"
	Dim     int

	// AccessKeyID/SecretAccessKey/SessionToken, when set, pin the embedder
	// to explicit static credentials instead of the default chain (env,
	// shared config, instance role).
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

type titanEmbedRequest struct {
	InputText string `json:"inputText"`
}

type titanEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// NewBedrockEmbedder loads default AWS credentials/region (overridden by
// opts.Region) and returns a ready BedrockEmbedder.
func NewBedrockEmbedder(ctx context.Context, opts BedrockOptions) (*BedrockEmbedder, error) {
	if opts.ModelID == "" {
		return nil, ErrUnsupportedBackend
	}
	dim := opts.Dim
	if dim <= 0 {
		dim = 1024 // Titan Embed Text v2 default output dimension
	}

	var cfgOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		cfgOpts = append(cfgOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		cfgOpts = append(cfgOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, opts.SessionToken)))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, cfgOpts...)
	if err != nil {
		return nil, rherr.Wrap("embedding.NewBedrockEmbedder", "embedding", rherr.ErrTransport, err)
	}

	return &BedrockEmbedder{
		client:  bedrockruntime.NewFromConfig(awsCfg),
		modelID: opts.ModelID,
		dim:     dim,
	}, nil
}

func (b *BedrockEmbedder) Dimension() int { return b.dim }

// Embed invokes the configured Bedrock embedding model and returns its
// output vector.
func (b *BedrockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(titanEmbedRequest{InputText: text})
	if err != nil {
		return nil, rherr.Wrap("embedding.Embed", "embedding", rherr.ErrMalformedEntry, err)
	}

	out, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        payload,
	})
	if err != nil {
		return nil, rherr.Wrap("embedding.Embed", "embedding", rherr.ErrTransport, err)
	}

	var resp titanEmbedResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, rherr.Wrap("embedding.Embed", "embedding", rherr.ErrMalformedEntry, err)
	}
	if len(resp.Embedding) == 0 {
		return nil, rherr.New("embedding.Embed", "embedding", rherr.ErrMalformedEntry,
			fmt.Sprintf("empty embedding returned for model %s", b.modelID))
	}
	return resp.Embedding, nil
}
