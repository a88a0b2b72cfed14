// Package queue publishes HIGH-risk forecast alerts to SQS for downstream
// notification workers.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"krishisat/internal/config"
	"krishisat/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// AlertPublisher sends RiskAlert messages to the risk alerts queue.
type AlertPublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewAlertPublisher creates a publisher for the queue configured in awsCfg.
func NewAlertPublisher(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *AlertPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &AlertPublisher{
		client:   client,
		queueURL: awsCfg.AlertQueueURL,
		logger:   logger,
	}
}

// Publish serializes alert to JSON and sends it. An empty AlertID is filled
// with a new UUID.
func (p *AlertPublisher) Publish(ctx context.Context, alert types.RiskAlert) error {
	if alert.AlertID == "" {
		alert.AlertID = uuid.NewString()
	}

	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal RiskAlert: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"district_id": {
				DataType:    aws.String("Number"),
				StringValue: aws.String(strconv.Itoa(alert.DistrictID)),
			},
			"vegetation_source": {
				DataType:    aws.String("String"),
				StringValue: aws.String(alert.VegetationSource),
			},
		},
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamQueue,
			fmt.Sprintf("failed to send risk alert to %s", p.queueURL), err)
	}

	p.logger.InfoContext(ctx, "risk alert published",
		"queue_url", p.queueURL,
		"alert_id", alert.AlertID,
		"district_id", alert.DistrictID,
		"max_risk_score", alert.MaxRiskScore,
		"peak_risk_day", alert.PeakRiskDay,
	)
	return nil
}
