package sqsapi

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	smithy "github.com/aws/smithy-go"

	"github.com/suredone/qdone/internal/qerrors"
)

// sdkClient is the slice of *sqs.Client this package calls, extracted so
// tests can swap in a stub without standing up a fake HTTP server.
type sdkClient interface {
	GetQueueUrl(ctx context.Context, in *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	CreateQueue(ctx context.Context, in *sqs.CreateQueueInput, optFns ...func(*sqs.Options)) (*sqs.CreateQueueOutput, error)
	GetQueueAttributes(ctx context.Context, in *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
	ListQueues(ctx context.Context, in *sqs.ListQueuesInput, optFns ...func(*sqs.Options)) (*sqs.ListQueuesOutput, error)
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	SendMessageBatch(ctx context.Context, in *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, in *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Client wraps an aws-sdk-go-v2 SQS client and classifies its errors into
// qerrors kinds. Mirrors the Connect-then-wrap shape used elsewhere in the
// retrieved corpus for SQS clients.
type Client struct {
	sdk sdkClient
}

// Connect builds a Client using the default AWS credential chain for the
// given region.
func Connect(ctx context.Context, region string) (*Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Client{sdk: sqs.NewFromConfig(cfg)}, nil
}

// New wraps an already-constructed *sqs.Client - useful for custom
// endpoints (LocalStack, ElasticMQ) or injected credentials.
func New(sdk *sqs.Client) *Client {
	return &Client{sdk: sdk}
}

// ConnectWithEndpoint builds a Client against a custom SQS-compatible
// endpoint (LocalStack, ElasticMQ) with static test credentials, for local
// development against something other than real SQS. The CLI commands do
// not call it; they connect through Connect.
func ConnectWithEndpoint(ctx context.Context, region, endpoint, accessKey, secretKey string) (*Client, error) {
	if accessKey == "" {
		accessKey = "test"
	}
	if secretKey == "" {
		secretKey = "test"
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	sdk := sqs.NewFromConfig(cfg, func(o *sqs.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})
	return &Client{sdk: sdk}, nil
}

var _ API = (*Client)(nil)

func (c *Client) GetQueueURL(ctx context.Context, queueName string) (string, error) {
	out, err := c.sdk.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(queueName)})
	if err != nil {
		return "", classify(err, queueName)
	}
	return aws.ToString(out.QueueUrl), nil
}

func (c *Client) CreateQueue(ctx context.Context, queueName string, attributes map[string]string, tags map[string]string) (string, error) {
	in := &sqs.CreateQueueInput{
		QueueName:  aws.String(queueName),
		Attributes: attributes,
	}
	if len(tags) > 0 {
		in.Tags = tags
	}
	out, err := c.sdk.CreateQueue(ctx, in)
	if err != nil {
		return "", classify(err, queueName)
	}
	return aws.ToString(out.QueueUrl), nil
}

func (c *Client) GetQueueAttributes(ctx context.Context, queueURL string) (map[string]string, error) {
	out, err := c.sdk.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(queueURL),
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameAll},
	})
	if err != nil {
		return nil, classify(err, queueURL)
	}
	return out.Attributes, nil
}

func (c *Client) ListQueues(ctx context.Context, prefix string) ([]string, error) {
	var urls []string
	in := &sqs.ListQueuesInput{}
	if prefix != "" {
		in.QueueNamePrefix = aws.String(prefix)
	}
	for {
		out, err := c.sdk.ListQueues(ctx, in)
		if err != nil {
			return nil, classify(err, prefix)
		}
		urls = append(urls, out.QueueUrls...)
		if out.NextToken == nil {
			break
		}
		in.NextToken = out.NextToken
	}
	return urls, nil
}

func (c *Client) SendMessage(ctx context.Context, req SendMessageInput) (SendMessageOutput, error) {
	in := &sqs.SendMessageInput{
		QueueUrl:    aws.String(req.QueueURL),
		MessageBody: aws.String(req.Body),
	}
	if req.GroupID != "" {
		in.MessageGroupId = aws.String(req.GroupID)
	}
	if req.DeduplicationID != "" {
		in.MessageDeduplicationId = aws.String(req.DeduplicationID)
	}
	if req.DelaySeconds > 0 {
		in.DelaySeconds = req.DelaySeconds
	}
	out, err := c.sdk.SendMessage(ctx, in)
	if err != nil {
		return SendMessageOutput{}, classify(err, req.QueueURL)
	}
	return SendMessageOutput{MessageID: aws.ToString(out.MessageId)}, nil
}

func (c *Client) SendMessageBatch(ctx context.Context, queueURL string, entries []BatchEntry) (BatchResult, error) {
	sdkEntries := make([]types.SendMessageBatchRequestEntry, 0, len(entries))
	for _, e := range entries {
		entry := types.SendMessageBatchRequestEntry{
			Id:          aws.String(e.ID),
			MessageBody: aws.String(e.Body),
		}
		if e.GroupID != "" {
			entry.MessageGroupId = aws.String(e.GroupID)
		}
		if e.DeduplicationID != "" {
			entry.MessageDeduplicationId = aws.String(e.DeduplicationID)
		}
		if e.DelaySeconds > 0 {
			entry.DelaySeconds = e.DelaySeconds
		}
		sdkEntries = append(sdkEntries, entry)
	}

	out, err := c.sdk.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
		QueueUrl: aws.String(queueURL),
		Entries:  sdkEntries,
	})
	if err != nil {
		return BatchResult{}, classify(err, queueURL)
	}

	result := BatchResult{Successful: make([]string, 0, len(out.Successful))}
	for _, s := range out.Successful {
		result.Successful = append(result.Successful, aws.ToString(s.MessageId))
	}
	for _, f := range out.Failed {
		result.Failed = append(result.Failed, qerrors.BatchEntryFailure{
			ID:          aws.ToString(f.Id),
			Code:        aws.ToString(f.Code),
			Message:     aws.ToString(f.Message),
			SenderFault: f.SenderFault,
		})
	}
	return result, nil
}

func (c *Client) ReceiveMessage(ctx context.Context, queueURL string, waitTimeSeconds int32) ([]Message, error) {
	out, err := c.sdk.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(queueURL),
		MaxNumberOfMessages:   1,
		WaitTimeSeconds:       waitTimeSeconds,
		VisibilityTimeout:     30,
		AttributeNames:        []types.QueueAttributeName{types.QueueAttributeNameAll},
		MessageAttributeNames: []string{"All"},
	})
	if err != nil {
		return nil, classify(err, queueURL)
	}

	messages := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		messages = append(messages, Message{
			MessageID:     aws.ToString(m.MessageId),
			Body:          aws.ToString(m.Body),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
		})
	}
	return messages, nil
}

func (c *Client) ChangeMessageVisibility(ctx context.Context, queueURL, receiptHandle string, visibilityTimeout int32) error {
	_, err := c.sdk.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(queueURL),
		ReceiptHandle:     aws.String(receiptHandle),
		VisibilityTimeout: visibilityTimeout,
	})
	if err != nil {
		return classify(err, queueURL)
	}
	return nil
}

func (c *Client) DeleteMessage(ctx context.Context, queueURL, receiptHandle string) error {
	_, err := c.sdk.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return classify(err, queueURL)
	}
	return nil
}

// classify maps an aws-sdk-go-v2 error into the qerrors kinds the rest of
// this module reasons about. Typed SQS errors are checked first; the
// smithy API-error code is the fallback for throttling, which SQS reports
// under several different codes depending on the cause (request rate vs.
// KMS key rate).
func classify(err error, subject string) error {
	if err == nil {
		return nil
	}

	var notExist *types.QueueDoesNotExist
	if errors.As(err, &notExist) {
		return qerrors.NotExist(subject, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AWS.SimpleQueueService.NonExistentQueue":
			return qerrors.NotExist(subject, err)
		case "RequestThrottled", "ThrottlingException", "TooManyRequestsException",
			"KMS.ThrottlingException", "Throttling":
			return qerrors.Throttled(err)
		case "AccessDenied", "AccessDeniedException", "UnauthorizedAccess":
			return qerrors.AccessDenied(err)
		}
	}

	return err
}
