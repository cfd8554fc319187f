package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
)

// Report はStep Functionsに返すバッチの実行結果です
type Report struct {
	Job          string `json:"job"`
	Reminders24h int    `json:"reminders_24h"`
	Reminders3h  int    `json:"reminders_3h"`
	NoShows      int    `json:"no_shows"`
}

// SFNClient はタスク結果の通知に使うStep Functions APIです
type SFNClient interface {
	SendTaskSuccess(ctx context.Context, params *sfn.SendTaskSuccessInput, optFns ...func(*sfn.Options)) (*sfn.SendTaskSuccessOutput, error)
	SendTaskFailure(ctx context.Context, params *sfn.SendTaskFailureInput, optFns ...func(*sfn.Options)) (*sfn.SendTaskFailureOutput, error)
}

// TaskReporter はバッチの成功・失敗をStep Functionsに通知します
// ローカル環境またはクライアントがない場合は通知をスキップします
type TaskReporter struct {
	client    SFNClient
	taskToken string
	local     bool
}

func NewTaskReporter(client SFNClient, taskToken string, local bool) *TaskReporter {
	return &TaskReporter{client: client, taskToken: taskToken, local: local}
}

func (r *TaskReporter) skip() bool {
	if r.local || r.client == nil {
		log.Printf("Local environment detected. Skipping Step Functions task notification")
		return true
	}
	return false
}

// ReportSuccess はタスク成功を通知し、結果をOutputとして返却します
func (r *TaskReporter) ReportSuccess(ctx context.Context, report Report) error {
	if r.skip() {
		return nil
	}
	if r.taskToken == "" {
		return fmt.Errorf("SFN task token is not set")
	}

	output, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	_, err = r.client.SendTaskSuccess(ctx, &sfn.SendTaskSuccessInput{
		TaskToken: aws.String(r.taskToken),
		Output:    aws.String(string(output)),
	})
	if err != nil {
		return fmt.Errorf("failed to send task success: %w", err)
	}

	log.Printf("Successfully sent task success: %s", string(output))
	return nil
}

// ReportFailure はタスク失敗を通知します
func (r *TaskReporter) ReportFailure(ctx context.Context, job string, cause error) error {
	if r.skip() {
		return nil
	}

	_, err := r.client.SendTaskFailure(ctx, &sfn.SendTaskFailureInput{
		TaskToken: aws.String(r.taskToken),
		Error:     aws.String("Batch process failed"),
		Cause:     aws.String(fmt.Sprintf("%s: %v", job, cause)),
	})
	if err != nil {
		return fmt.Errorf("failed to send task failure: %w", err)
	}
	return nil
}
