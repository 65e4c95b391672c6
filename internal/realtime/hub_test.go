package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guestbook/internal/common"
	"guestbook/internal/config"
	"guestbook/internal/dbsql"
)

func newTestHub(t *testing.T, subscriberBuffer int) *Hub {
	t.Helper()
	hub := NewHub(&config.Config{Realtime: config.RealtimeConfig{
		Workers:           2,
		ChannelBufferSize: 16,
		SubscriberBuffer:  subscriberBuffer,
	}})
	t.Cleanup(hub.Shutdown)
	return hub
}

func insertEvent(t *testing.T, id int64) common.ChangeEvent {
	t.Helper()
	event, err := common.NewChangeEvent(dbsql.TableMessages, common.EventInsert, dbsql.Message{ID: id, UserName: "Ada", Msg: "hi"}, nil)
	require.NoError(t, err)
	return event
}

func receive(t *testing.T, ch <-chan common.ChangeEvent) common.ChangeEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return common.ChangeEvent{}
}

func assertNoEvent(t *testing.T, ch <-chan common.ChangeEvent) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_NotifyFiltersByTableAndMask(t *testing.T) {
	hub := newTestHub(t, 8)

	inserts := hub.Channel(dbsql.TableMessages, common.MaskInsert)
	deletes := hub.Channel(dbsql.TableMessages, common.MaskDelete)
	likes := hub.Channel(dbsql.TableLikes, common.MaskAll)
	defer inserts.Close()
	defer deletes.Close()
	defer likes.Close()

	hub.Notify(insertEvent(t, 1))

	ev := receive(t, inserts.Events())
	assert.Equal(t, common.EventInsert, ev.Type)
	assert.Contains(t, string(ev.New), `"id":1`)
	assertNoEvent(t, deletes.Events())
	assertNoEvent(t, likes.Events())
}

func TestHub_FullSubscriberDropsInsteadOfBlocking(t *testing.T) {
	hub := newTestHub(t, 1)
	slow := hub.Channel(dbsql.TableMessages, common.MaskAll)
	fast := hub.Channel(dbsql.TableMessages, common.MaskAll)
	defer slow.Close()
	defer fast.Close()

	done := make(chan struct{})
	go func() {
		hub.Notify(insertEvent(t, 1))
		hub.Notify(insertEvent(t, 2))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a full subscriber")
	}

	assert.Contains(t, string(receive(t, slow.Events()).New), `"id":1`)
	assertNoEvent(t, slow.Events())
}

func TestHub_NotifyAsync(t *testing.T) {
	hub := newTestHub(t, 8)
	sub := hub.Channel(dbsql.TableMessages, common.MaskAll)
	defer sub.Close()

	hub.NotifyAsync(insertEvent(t, 5))

	assert.Contains(t, string(receive(t, sub.Events()).New), `"id":5`)
}

func TestHub_CloseUnsubscribes(t *testing.T) {
	hub := newTestHub(t, 8)
	sub := hub.Channel(dbsql.TableMessages, common.MaskAll)
	require.Equal(t, 1, hub.SubscriberCount())

	sub.Close()
	sub.Close() // second close is a no-op

	assert.Equal(t, 0, hub.SubscriberCount())
	hub.Notify(insertEvent(t, 1))
	assertNoEvent(t, sub.Events())

	select {
	case <-sub.Done():
	default:
		t.Fatal("Done should be closed")
	}
}

func TestHub_Listen(t *testing.T) {
	hub := newTestHub(t, 8)
	events, cancel := hub.Listen(dbsql.TableMessages, common.MaskInsert)

	hub.Notify(insertEvent(t, 9))
	assert.Contains(t, string(receive(t, events).New), `"id":9`)

	cancel()
	assert.Equal(t, 0, hub.SubscriberCount())
}

func TestHub_ShutdownIsIdempotent(t *testing.T) {
	hub := NewHub(&config.Config{})
	hub.Shutdown()
	hub.Shutdown()

	// publishing after shutdown must not panic
	hub.NotifyAsync(insertEvent(t, 1))
	hub.Notify(insertEvent(t, 1))

	select {
	case <-hub.Done():
	default:
		t.Fatal("Done should be closed after Shutdown")
	}
}
