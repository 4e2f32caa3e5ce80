package invoke

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSFN struct {
	inputs []*sfn.StartExecutionInput
	err    error
}

func (f *fakeSFN) StartExecution(_ context.Context, in *sfn.StartExecutionInput, _ ...func(*sfn.Options)) (*sfn.StartExecutionOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, in)
	return &sfn.StartExecutionOutput{ExecutionArn: aws.String("arn:aws:states:eu-west-2:123456789012:execution:imtd:" + aws.ToString(in.Name))}, nil
}

const arn = "arn:aws:states:eu-west-2:123456789012:stateMachine:imtd"

func newMachine(client sfnAPI) *StateMachine {
	return &StateMachine{client: client, arn: arn, prefix: "imtd", now: func() time.Time { return time.Unix(0, 42) }}
}

func TestContinue(t *testing.T) {
	fake := &fakeSFN{}
	require.NoError(t, newMachine(fake).Continue(context.Background(), 500))

	require.Len(t, fake.inputs, 1)
	assert.Equal(t, arn, aws.ToString(fake.inputs[0].StateMachineArn))
	assert.Equal(t, "imtd-42", aws.ToString(fake.inputs[0].Name))
	assert.JSONEq(t, `{"offset":500}`, aws.ToString(fake.inputs[0].Input))
}

func TestStartRawInput(t *testing.T) {
	fake := &fakeSFN{}
	execArn, err := newMachine(fake).Start(context.Background(), []byte(`{"a":1}`))
	require.NoError(t, err)
	assert.Contains(t, execArn, "imtd-42")
	assert.Equal(t, `{"a":1}`, aws.ToString(fake.inputs[0].Input))
}

func TestStartErrors(t *testing.T) {
	boom := errors.New("ExecutionLimitExceeded")
	assert.ErrorIs(t, newMachine(&fakeSFN{err: boom}).Continue(context.Background(), 1), boom)

	m := newMachine(&fakeSFN{})
	m.arn = ""
	assert.Error(t, m.Continue(context.Background(), 1))

	_, err := newMachine(&fakeSFN{}).Start(context.Background(), func() {})
	assert.Error(t, err)
}
