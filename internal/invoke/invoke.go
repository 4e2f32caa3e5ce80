// Package invoke schedules follow-up runs through Step Functions.
package invoke

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
)

type sfnAPI interface {
	StartExecution(ctx context.Context, in *sfn.StartExecutionInput, optFns ...func(*sfn.Options)) (*sfn.StartExecutionOutput, error)
}

// Event is the input of a paged run.
type Event struct {
	Offset int `json:"offset"`
}

// StateMachine starts executions of one state machine.
type StateMachine struct {
	client sfnAPI
	arn    string
	prefix string
	now    func() time.Time
}

// New returns a StateMachine for arn. Execution names start with prefix.
func New(cfg aws.Config, arn, prefix string) *StateMachine {
	return &StateMachine{client: sfn.NewFromConfig(cfg), arn: arn, prefix: prefix, now: time.Now}
}

// Start starts an execution with input marshalled to JSON, or used as is
// when it is already a []byte. It returns the execution ARN.
func (s *StateMachine) Start(ctx context.Context, input any) (string, error) {
	if s.arn == "" {
		return "", errors.New("state machine arn not configured")
	}
	var payload []byte
	switch v := input.(type) {
	case []byte:
		payload = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("marshal state machine input: %w", err)
		}
		payload = b
	}

	name := fmt.Sprintf("%s-%d", s.prefix, s.now().UnixNano())
	out, err := s.client.StartExecution(ctx, &sfn.StartExecutionInput{
		StateMachineArn: aws.String(s.arn),
		Name:            aws.String(name),
		Input:           aws.String(string(payload)),
	})
	if err != nil {
		return "", err
	}
	if out.ExecutionArn == nil {
		return "", fmt.Errorf("missing execution arn in response")
	}
	return *out.ExecutionArn, nil
}

// Continue starts the next page at offset.
func (s *StateMachine) Continue(ctx context.Context, offset int) error {
	_, err := s.Start(ctx, Event{Offset: offset})
	return err
}
