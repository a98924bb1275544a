package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumire/hiring/internal/domain"
)

type fakeClient struct {
	channel string
	payload []byte
	err     error
}

func (f *fakeClient) Publish(_ context.Context, channel string, message any) *redis.IntCmd {
	f.channel = channel
	f.payload, _ = message.([]byte)
	return redis.NewIntResult(1, f.err)
}

func TestRedisPublisher_Publish(t *testing.T) {
	appID := uuid.New()
	event := domain.Event{
		Type:          domain.EventApplicationStageChanged,
		ApplicationID: &appID,
		JobID:         uuid.New(),
		OldStatus:     "new",
		NewStatus:     "screening",
		StageKey:      "screening",
		Actor:         "user-1",
		Timestamp:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	client := &fakeClient{}
	p := NewRedisPublisher(client, "acme")
	require.NoError(t, p.Publish(context.Background(), event))

	assert.Equal(t, "acme.application.stage_changed", client.channel)
	var got domain.Event
	require.NoError(t, json.Unmarshal(client.payload, &got))
	assert.Equal(t, event, got)
}

func TestRedisPublisher_DefaultPrefix(t *testing.T) {
	p := NewRedisPublisher(&fakeClient{}, "")
	assert.Equal(t, "hiring.job.status_changed", p.Channel(domain.EventJobStatusChanged))
}

func TestRedisPublisher_PublishError(t *testing.T) {
	client := &fakeClient{err: errors.New("connection refused")}
	p := NewRedisPublisher(client, "")

	err := p.Publish(context.Background(), domain.Event{Type: domain.EventJobStatusChanged})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hiring.job.status_changed")
}

func TestLogPublisher_Publish(t *testing.T) {
	assert.NoError(t, LogPublisher{}.Publish(context.Background(), domain.Event{Type: domain.EventJobStatusChanged}))
}
