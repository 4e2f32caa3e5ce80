// Package notify publishes run alerts to an SNS topic.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// SNS rejects subjects over 100 characters.
const maxSubject = 100

type snsAPI interface {
	CreateTopic(ctx context.Context, in *sns.CreateTopicInput, optFns ...func(*sns.Options)) (*sns.CreateTopicOutput, error)
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Publisher sends plain-text alerts. A Publisher without a topic name
// drops every alert.
type Publisher struct {
	client    snsAPI
	topicName string

	mu       sync.Mutex
	topicArn string
}

// New returns a Publisher for topicName, or nil when topicName is empty.
func New(cfg aws.Config, topicName string) *Publisher {
	if strings.TrimSpace(topicName) == "" {
		return nil
	}
	return &Publisher{client: sns.NewFromConfig(cfg), topicName: topicName}
}

// topic resolves the topic ARN once. CreateTopic is idempotent and
// returns the existing topic when it is already there.
func (p *Publisher) topic(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.topicArn != "" {
		return p.topicArn, nil
	}
	out, err := p.client.CreateTopic(ctx, &sns.CreateTopicInput{Name: aws.String(p.topicName)})
	if err != nil {
		return "", fmt.Errorf("create topic %s: %w", p.topicName, err)
	}
	p.topicArn = aws.ToString(out.TopicArn)
	return p.topicArn, nil
}

// Publish sends message with an optional subject.
func (p *Publisher) Publish(ctx context.Context, subject, message string) error {
	if p == nil {
		return nil
	}
	arn, err := p.topic(ctx)
	if err != nil {
		return err
	}
	in := &sns.PublishInput{TopicArn: aws.String(arn), Message: aws.String(message)}
	if s := strings.TrimSpace(subject); s != "" {
		in.Subject = aws.String(truncate(s, maxSubject))
	}
	if _, err := p.client.Publish(ctx, in); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topicName, err)
	}
	return nil
}

// RunSummary describes the outcome of one pipeline run.
type RunSummary struct {
	Pipeline string
	Source   string
	Total    int
	Failed   int
	Err      error
}

// Failures publishes an alert for run when any unit failed. Runs without
// failures send nothing.
func (p *Publisher) Failures(ctx context.Context, run RunSummary) error {
	if p == nil || run.Failed == 0 {
		return nil
	}
	subject := fmt.Sprintf("%s: %d of %d failed", run.Pipeline, run.Failed, run.Total)
	var b strings.Builder
	fmt.Fprintf(&b, "Pipeline: %s\n", run.Pipeline)
	if run.Source != "" {
		fmt.Fprintf(&b, "Source: %s\n", run.Source)
	}
	fmt.Fprintf(&b, "Failed: %d of %d\n", run.Failed, run.Total)
	if run.Err != nil {
		fmt.Fprintf(&b, "\n%s\n", run.Err)
	}
	return p.Publish(ctx, subject, b.String())
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
