package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/suPer8Hu/legalwise/internal/linkyun"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultPollTimeout  = 30 * time.Second
)

// ErrReplyTimeout means no assistant reply appeared before the poll timeout.
var ErrReplyTimeout = errors.New("系统正在忙，请稍后刷新")

// replyFromSend reads the assistant reply straight from a send response.
// baseline is the local message count including the just-sent user message.
func replyFromSend(resp *linkyun.SendResponse, baseline int) (string, bool) {
	if resp == nil {
		return "", false
	}
	switch resp.Kind {
	case linkyun.SendMessageObject:
		if resp.Message.HasAssistantContent() {
			return strings.TrimSpace(resp.Message.Content), true
		}
	case linkyun.SendMessageList:
		return replyFromList(resp.Messages, baseline)
	}
	return "", false
}

// replyFromList accepts the tail message only when the list grew past baseline.
func replyFromList(msgs []linkyun.Message, baseline int) (string, bool) {
	if len(msgs) <= baseline {
		return "", false
	}
	last := msgs[len(msgs)-1]
	if !last.HasAssistantContent() {
		return "", false
	}
	return strings.TrimSpace(last.Content), true
}

// MessageLister fetches the full remote message list of a chat.
type MessageLister interface {
	ListMessages(ctx context.Context, chatID linkyun.ID) ([]linkyun.Message, error)
}

// Poller waits for an asynchronous assistant reply.
type Poller struct {
	Lister   MessageLister
	Interval time.Duration
	Timeout  time.Duration
}

// Wait fetches immediately and then once per interval until a reply shows up
// past baseline or Timeout has elapsed. Fetch errors end the wait.
func (p *Poller) Wait(ctx context.Context, chatID string, baseline int) (string, error) {
	interval, timeout := p.Interval, p.Timeout
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}

	start := time.Now()
	for time.Since(start) < timeout {
		msgs, err := p.Lister.ListMessages(ctx, linkyun.ID(chatID))
		if err != nil {
			return "", err
		}
		if reply, ok := replyFromList(msgs, baseline); ok {
			return reply, nil
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	return "", ErrReplyTimeout
}
