package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/searchandrescuegg/firstaid/internal/emergency"
	"github.com/slack-go/slack"
)

type MessageSender interface {
	SendMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, string, error)
}

type SlackSink struct {
	sender    MessageSender
	channelID string
	timeout   time.Duration
}

func NewSlackSink(sender MessageSender, channelID string, timeout time.Duration) *SlackSink {
	return &SlackSink{sender: sender, channelID: channelID, timeout: timeout}
}

func (s *SlackSink) Name() string { return "slack" }

func (s *SlackSink) Send(ctx context.Context, event emergency.CallEvent) error {
	var blocks []slack.Block
	switch event.Status {
	case emergency.CallStatusInitiated:
		blocks = BuildCallPlacedBlocks(&event)
	case emergency.CallStatusEnded:
		blocks = BuildCallEndedBlocks(&event)
	default:
		return nil
	}

	err := s.send(ctx, blocks)
	if err == nil {
		return nil
	}

	if retryErr := handleSlackRateLimit(ctx, err, event.CallID); retryErr != nil {
		return retryErr
	}
	return s.send(ctx, blocks)
}

func (s *SlackSink) send(ctx context.Context, blocks []slack.Block) error {
	sendCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, _, _, err := s.sender.SendMessageContext(sendCtx, s.channelID, slack.MsgOptionBlocks(blocks...))
	if err != nil {
		return fmt.Errorf("failed to send slack message: %w", err)
	}
	return nil
}

// handleSlackRateLimit waits out a retryable rate limit and returns nil, or
// returns err unchanged.
func handleSlackRateLimit(ctx context.Context, err error, callID string) error {
	var rateLimited *slack.RateLimitedError
	if errors.As(err, &rateLimited) && rateLimited.Retryable() {
		slog.Warn("slack rate limited, retrying", slog.String("error", err.Error()), slog.String("call_id", callID))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(rateLimited.RetryAfter):
			return nil
		}
	}
	return err
}

func callIDBlock(event *emergency.CallEvent) slack.Block {
	return slack.NewRichTextBlock(
		"",
		slack.NewRichTextSection(
			slack.NewRichTextSectionTextElement("Call ID: ", &slack.RichTextSectionTextStyle{Bold: true}),
			slack.NewRichTextSectionTextElement(event.CallID, nil),
		),
		slack.NewRichTextSection(
			slack.NewRichTextSectionTextElement("Time: ", &slack.RichTextSectionTextStyle{Bold: true}),
			slack.NewRichTextSectionTextElement(event.OccurredAt.Local().Format(time.RFC1123), nil),
		),
	)
}

func BuildCallPlacedBlocks(event *emergency.CallEvent) []slack.Block {
	return []slack.Block{
		slack.NewHeaderBlock(
			slack.NewTextBlockObject(slack.PlainTextType, "Emergency Call Placed :telephone_receiver:", true, false),
		),
		slack.NewDividerBlock(),
		callIDBlock(event),
	}
}

func BuildCallEndedBlocks(event *emergency.CallEvent) []slack.Block {
	transcript := event.Transcript
	if transcript == "" {
		transcript = "No transcript available."
	}

	blocks := []slack.Block{
		slack.NewHeaderBlock(
			slack.NewTextBlockObject(slack.PlainTextType, "Emergency Call Ended :white_check_mark:", true, false),
		),
		slack.NewDividerBlock(),
		callIDBlock(event),
		slack.NewRichTextBlock(
			"",
			&slack.RichTextPreformatted{
				RichTextSection: slack.RichTextSection{
					Type: slack.RTEPreformatted,
					Elements: []slack.RichTextSectionElement{
						slack.NewRichTextSectionTextElement(transcript, nil),
					},
				},
				Border: 0,
			},
		),
	}

	if event.RecordingURL != "" {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, "Call recording:", false, false),
			nil,
			slack.NewAccessory(
				slack.NewButtonBlockElement(
					"recording-button",
					"",
					slack.NewTextBlockObject(slack.PlainTextType, ":headphones: Recording", true, false),
				).WithURL(event.RecordingURL),
			),
		))
	}

	return blocks
}
