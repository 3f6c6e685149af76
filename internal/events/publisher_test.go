package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/entityindexer/internal/domain"
)

func sampleEvents() []domain.ChangeEvent {
	req := domain.ChangeRequest{
		EntityType:     domain.EntityTypePlaylist,
		EntityID:       400001,
		ActingUserID:   3000001,
		Action:         domain.ActionCreate,
		BlockNumber:    10,
		BlockTimestamp: time.Unix(1700000000, 0).UTC(),
		TxHash:         "0xabc",
		LogIndex:       2,
	}
	return []domain.ChangeEvent{domain.NewChangeEvent(req)}
}

func TestBusPublisherDeliversEvents(t *testing.T) {
	bus := evbus.New()
	var (
		mu       sync.Mutex
		received []domain.ChangeEvent
	)
	require.NoError(t, bus.Subscribe(TopicEntityChanged, func(event domain.ChangeEvent) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, event)
	}))

	events := sampleEvents()
	require.NoError(t, NewBusPublisher(bus).Publish(context.Background(), events))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, events[0].ID, received[0].ID)
}

type fakeStream struct {
	args []*redis.XAddArgs
	err  error
}

func (f *fakeStream) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.args = append(f.args, a)
	return redis.NewStringResult("1-0", f.err)
}

func TestRedisPublisherWritesStream(t *testing.T) {
	stream := &fakeStream{}
	events := sampleEvents()

	require.NoError(t, NewRedisPublisher(stream, "changes", 1000).Publish(context.Background(), events))
	require.Len(t, stream.args, 1)

	args := stream.args[0]
	assert.Equal(t, "changes", args.Stream)
	assert.Equal(t, int64(1000), args.MaxLen)
	assert.True(t, args.Approx)

	values := args.Values.(map[string]any)
	assert.Equal(t, events[0].ID.String(), values["id"])

	var decoded domain.ChangeEvent
	require.NoError(t, json.Unmarshal([]byte(values["payload"].(string)), &decoded))
	assert.Equal(t, events[0], decoded)
}

func TestRedisPublisherReportsErrors(t *testing.T) {
	stream := &fakeStream{err: errors.New("connection refused")}
	err := NewRedisPublisher(stream, "", 0).Publish(context.Background(), sampleEvents())
	require.Error(t, err)
	assert.Equal(t, "entity-changes", stream.args[0].Stream)
}

type failing struct{ err error }

func (f failing) Publish(ctx context.Context, events []domain.ChangeEvent) error { return f.err }

func TestMultiJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	err := Multi{Nop{}, failing{err: boom}}.Publish(context.Background(), sampleEvents())
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, Multi{Nop{}}.Publish(context.Background(), nil))
}
