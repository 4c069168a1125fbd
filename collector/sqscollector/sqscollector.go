// Package sqscollector collects queue depths from AWS SQS or an
// SQS-compatible broker.
package sqscollector

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog/log"

	"github.com/queuewatch/queuewatch/config"
	"github.com/queuewatch/queuewatch/models"
)

type Client struct {
	cfg config.SQSConfig
	sqs *sqs.Client
}

func New(ctx context.Context, cfg config.SQSConfig) (*Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrConnection, err)
	}
	if cfg.Endpoint != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.Endpoint)
	}

	return &Client{
		cfg: cfg,
		sqs: sqs.NewFromConfig(awsCfg),
	}, nil
}

// FetchQueues lists queues (optionally filtered by prefix) and reads each
// queue's approximate depth. Failures wrap models.ErrConnection.
func (c *Client) FetchQueues(ctx context.Context) ([]models.QueueObservation, error) {
	var observations []models.QueueObservation
	var nextToken *string

	for {
		input := &sqs.ListQueuesInput{NextToken: nextToken}
		if c.cfg.QueuePrefix != "" {
			input.QueueNamePrefix = aws.String(c.cfg.QueuePrefix)
		}

		page, err := c.sqs.ListQueues(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrConnection, err)
		}

		for _, queueUrl := range page.QueueUrls {
			obs, err := c.observeQueue(ctx, queueUrl)
			if err != nil {
				return nil, err
			}
			observations = append(observations, obs)
		}

		if page.NextToken == nil {
			break
		}
		nextToken = page.NextToken
	}

	log.Debug().Int("queues", len(observations)).Msg("Fetched queue snapshot")

	return observations, nil
}

func (c *Client) observeQueue(ctx context.Context, queueUrl string) (models.QueueObservation, error) {
	attrs, err := c.sqs.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl: aws.String(queueUrl),
		AttributeNames: []types.QueueAttributeName{
			types.QueueAttributeNameApproximateNumberOfMessages,
		},
	})
	if err != nil {
		return models.QueueObservation{}, fmt.Errorf("%w: %v", models.ErrConnection, err)
	}

	depth, err := strconv.ParseInt(attrs.Attributes[string(types.QueueAttributeNameApproximateNumberOfMessages)], 10, 64)
	if err != nil {
		return models.QueueObservation{}, fmt.Errorf("%w: queue %s: bad depth attribute: %v", models.ErrConnection, queueUrl, err)
	}

	tokens := strings.Split(queueUrl, "/")
	name := tokens[len(tokens)-1]

	return models.QueueObservation{Name: name, Messages: depth}, nil
}
