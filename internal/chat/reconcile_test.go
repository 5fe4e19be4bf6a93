package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/legalwise/internal/linkyun"
)

func msg(role, content string) linkyun.Message {
	return linkyun.Message{Role: role, Content: content}
}

func TestReplyFromSend(t *testing.T) {
	two := []linkyun.Message{msg("user", "问"), msg("assistant", " 答 ")}

	cases := []struct {
		name     string
		resp     *linkyun.SendResponse
		baseline int
		want     string
		ok       bool
	}{
		{"nil", nil, 1, "", false},
		{"accepted", &linkyun.SendResponse{Kind: linkyun.SendAccepted}, 1, "", false},
		{"assistant object", &linkyun.SendResponse{Kind: linkyun.SendMessageObject, Message: &linkyun.Message{Role: "assistant", Content: "好的"}}, 1, "好的", true},
		{"user echo object", &linkyun.SendResponse{Kind: linkyun.SendMessageObject, Message: &linkyun.Message{Role: "user", Content: "问"}}, 1, "", false},
		{"blank assistant object", &linkyun.SendResponse{Kind: linkyun.SendMessageObject, Message: &linkyun.Message{Role: "assistant", Content: "  "}}, 1, "", false},
		{"list past baseline", &linkyun.SendResponse{Kind: linkyun.SendMessageList, Messages: two}, 1, "答", true},
		{"list at baseline", &linkyun.SendResponse{Kind: linkyun.SendMessageList, Messages: two}, 2, "", false},
		{"list ending with user", &linkyun.SendResponse{Kind: linkyun.SendMessageList, Messages: []linkyun.Message{msg("assistant", "旧"), msg("user", "新")}}, 1, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := replyFromSend(tc.resp, tc.baseline)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

type listerFunc func(ctx context.Context, chatID linkyun.ID) ([]linkyun.Message, error)

func (f listerFunc) ListMessages(ctx context.Context, chatID linkyun.ID) ([]linkyun.Message, error) {
	return f(ctx, chatID)
}

func TestPoller_ReturnsOnceReplyAppears(t *testing.T) {
	calls := 0
	p := &Poller{
		Lister: listerFunc(func(ctx context.Context, chatID linkyun.ID) ([]linkyun.Message, error) {
			calls++
			assert.Equal(t, linkyun.ID("c1"), chatID)
			if calls < 3 {
				return []linkyun.Message{msg("user", "问")}, nil
			}
			return []linkyun.Message{msg("user", "问"), msg("assistant", "答")}, nil
		}),
		Interval: time.Millisecond,
		Timeout:  time.Second,
	}
	reply, err := p.Wait(context.Background(), "c1", 1)
	require.NoError(t, err)
	assert.Equal(t, "答", reply)
	assert.Equal(t, 3, calls)
}

func TestPoller_TimesOut(t *testing.T) {
	calls := 0
	p := &Poller{
		Lister: listerFunc(func(context.Context, linkyun.ID) ([]linkyun.Message, error) {
			calls++
			return nil, nil
		}),
		Interval: 5 * time.Millisecond,
		Timeout:  30 * time.Millisecond,
	}
	_, err := p.Wait(context.Background(), "c1", 1)
	require.ErrorIs(t, err, ErrReplyTimeout)
	assert.GreaterOrEqual(t, calls, 2)
}

func TestPoller_FetchErrorEndsWait(t *testing.T) {
	p := &Poller{
		Lister: listerFunc(func(context.Context, linkyun.ID) ([]linkyun.Message, error) {
			return nil, errBoom
		}),
		Interval: time.Millisecond,
		Timeout:  time.Second,
	}
	_, err := p.Wait(context.Background(), "c1", 1)
	require.ErrorIs(t, err, errBoom)
}

func TestPoller_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Poller{
		Lister: listerFunc(func(context.Context, linkyun.ID) ([]linkyun.Message, error) {
			cancel()
			return nil, nil
		}),
		Interval: time.Hour,
		Timeout:  2 * time.Hour,
	}
	_, err := p.Wait(ctx, "c1", 1)
	require.True(t, errors.Is(err, context.Canceled))
}
