// Package courier reports run completion to an SNS topic. Dubbing runs are
// long; the operator should not have to watch a terminal.
package courier

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	log "github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/logger"
)

// RunReport is the notification payload for one finished (or failed) run.
type RunReport struct {
	DatasetName string   `json:"dataset_name"`
	RunId       string   `json:"run_id"`
	Languages   []string `json:"languages"`
	OutputFiles []string `json:"output_files,omitempty"`
	Succeeded   bool     `json:"succeeded"`
	Error       string   `json:"error,omitempty"`
}

func PublishSNSMessage(ctx context.Context, topicArn string, subject string, event any) (string, *log.Status) {
	jsonData, err := json.Marshal(event)
	if err != nil {
		return "", log.Error(ctx, 500, err, "Error Marshalling SNS Message")
	}
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return "", log.Error(ctx, 500, err, "Error loading AWS configuration")
	}
	client := sns.NewFromConfig(cfg)
	input := &sns.PublishInput{
		Message:  aws.String(string(jsonData)),
		TopicArn: aws.String(topicArn),
		Subject:  aws.String(subject),
	}
	result, err := client.Publish(ctx, input)
	if err != nil {
		return "", log.Error(ctx, 500, err, "Error publishing SNS Message")
	}
	log.Info(ctx, "Published: ", subject, *result.MessageId)
	return *result.MessageId, nil
}

// NotifyRun publishes a run report when a topic is configured. An empty topic
// makes notification a no-op, so local runs need no AWS credentials.
func NotifyRun(ctx context.Context, topicArn string, report RunReport) *log.Status {
	if topicArn == "" {
		return nil
	}
	subject := "Dubbing run " + report.DatasetName
	if !report.Succeeded {
		subject += " FAILED"
	}
	_, status := PublishSNSMessage(ctx, topicArn, subject, report)
	return status
}
