package guestbook

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guestbook/internal/common"
	"guestbook/internal/dbsql"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []common.ChangeEvent
}

func (p *recordingPublisher) Notify(event common.ChangeEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) Events() []common.ChangeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]common.ChangeEvent(nil), p.events...)
}

func newTestRepository(t *testing.T) (*GuestbookRepository, *recordingPublisher) {
	t.Helper()
	db, err := dbsql.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbsql.Close(db) })

	pub := &recordingPublisher{}
	return NewGuestbookRepository(db, pub), pub
}

func seedMessages(t *testing.T, repo *GuestbookRepository, n int) []dbsql.Message {
	t.Helper()
	out := make([]dbsql.Message, 0, n)
	for i := 0; i < n; i++ {
		m := &dbsql.Message{UserName: "Ada", Msg: "hello " + string(rune('a'+i))}
		require.NoError(t, repo.PostMessage(context.Background(), m))
		out = append(out, *m)
	}
	return out
}

func TestDefaultAvatar(t *testing.T) {
	assert.Equal(t, "https://api.dicebear.com/7.x/avataaars/svg?seed=Ada%20Lovelace", DefaultAvatar("Ada Lovelace"))
	assert.Equal(t, "https://api.dicebear.com/7.x/avataaars/svg?seed=a%26b", DefaultAvatar("a&b"))
}

func TestLikeIdentifier(t *testing.T) {
	assert.Equal(t, "Ada_ada@example.com", LikeIdentifier("Ada", "ada@example.com"))
}

func TestRepository_PostMessageDefaults(t *testing.T) {
	repo, pub := newTestRepository(t)
	ctx := context.Background()

	m := &dbsql.Message{Msg: "hi"}
	require.NoError(t, repo.PostMessage(ctx, m))
	assert.NotZero(t, m.ID)
	assert.Equal(t, AnonymousName, m.UserName)
	assert.Equal(t, AnonymousEmail, m.UserEmail)
	assert.Equal(t, DefaultAvatar(AnonymousName), m.UserImage)
	assert.Nil(t, m.UserID)

	events := pub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, dbsql.TableMessages, events[0].Table)
	assert.Equal(t, common.EventInsert, events[0].Type)

	var decoded dbsql.Message
	require.NoError(t, json.Unmarshal(events[0].New, &decoded))
	assert.Equal(t, m.ID, decoded.ID)
}

func TestRepository_ListMessagesNewestFirst(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()
	seeded := seedMessages(t, repo, 7)

	page, err := repo.ListMessages(ctx, 0, PageSize)
	require.NoError(t, err)
	require.Len(t, page, PageSize)
	assert.Equal(t, seeded[6].ID, page[0].ID)
	assert.Equal(t, seeded[2].ID, page[4].ID)

	rest, err := repo.ListMessages(ctx, PageSize, PageSize)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, seeded[1].ID, rest[0].ID)
	assert.Equal(t, seeded[0].ID, rest[1].ID)

	empty, err := repo.ListMessages(ctx, 50, PageSize)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRepository_ListMessagesBefore(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()
	seeded := seedMessages(t, repo, 6)

	first, err := repo.ListMessagesBefore(ctx, Cursor{}, 4)
	require.NoError(t, err)
	require.Len(t, first, 4)

	last := first[len(first)-1]
	// a new message at the head must not shift the next page
	seedMessages(t, repo, 1)

	second, err := repo.ListMessagesBefore(ctx, Cursor{ID: last.ID, CreatedAt: last.CreatedAt}, 4)
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Equal(t, seeded[1].ID, second[0].ID)
	assert.Equal(t, seeded[0].ID, second[1].ID)
}

func TestRepository_ToggleLike(t *testing.T) {
	repo, pub := newTestRepository(t)
	ctx := context.Background()
	m := seedMessages(t, repo, 1)[0]

	liked, err := repo.ToggleLike(ctx, &dbsql.MessageLike{MessageID: m.ID, UserIdentifier: "github:1"})
	require.NoError(t, err)
	assert.True(t, liked)

	_, err = repo.ToggleLike(ctx, &dbsql.MessageLike{MessageID: m.ID, UserIdentifier: "Bob_bob@x.com"})
	require.NoError(t, err)

	likes, err := repo.GetLikes(ctx, m.ID)
	require.NoError(t, err)
	assert.Len(t, likes, 2)

	liked, err = repo.ToggleLike(ctx, &dbsql.MessageLike{MessageID: m.ID, UserIdentifier: "github:1"})
	require.NoError(t, err)
	assert.False(t, liked)

	likes, err = repo.GetLikes(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, likes, 1)
	assert.Equal(t, "Bob_bob@x.com", likes[0].UserIdentifier)

	events := pub.Events()
	lastEvent := events[len(events)-1]
	assert.Equal(t, dbsql.TableLikes, lastEvent.Table)
	assert.Equal(t, common.EventDelete, lastEvent.Type)
	assert.NotEmpty(t, lastEvent.Old)
}

func TestRepository_Comments(t *testing.T) {
	repo, pub := newTestRepository(t)
	ctx := context.Background()
	m := seedMessages(t, repo, 1)[0]

	owner := "google:5"
	first := &dbsql.MessageComment{MessageID: m.ID, UserID: &owner, UserName: "Grace", Comment: "first"}
	require.NoError(t, repo.PostComment(ctx, first))
	second := &dbsql.MessageComment{MessageID: m.ID, Comment: "second"}
	require.NoError(t, repo.PostComment(ctx, second))
	assert.Equal(t, AnonymousName, second.UserName)

	comments, err := repo.GetComments(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "first", comments[0].Comment)
	assert.Equal(t, "second", comments[1].Comment)

	got, err := repo.GetComment(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, got.UserID)
	assert.Equal(t, owner, *got.UserID)

	require.NoError(t, repo.DeleteComment(ctx, first.ID))
	assert.ErrorIs(t, repo.DeleteComment(ctx, first.ID), common.ErrNotFound)
	_, err = repo.GetComment(ctx, first.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)

	events := pub.Events()
	assert.Equal(t, dbsql.TableComments, events[len(events)-1].Table)
	assert.Equal(t, common.EventDelete, events[len(events)-1].Type)
}

func TestRepository_DeleteMessageCascades(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()
	msgs := seedMessages(t, repo, 2)
	target, other := msgs[0], msgs[1]

	_, err := repo.ToggleLike(ctx, &dbsql.MessageLike{MessageID: target.ID, UserIdentifier: "a"})
	require.NoError(t, err)
	_, err = repo.ToggleLike(ctx, &dbsql.MessageLike{MessageID: other.ID, UserIdentifier: "a"})
	require.NoError(t, err)
	require.NoError(t, repo.PostComment(ctx, &dbsql.MessageComment{MessageID: target.ID, Comment: "c"}))

	require.NoError(t, repo.DeleteMessage(ctx, target.ID))

	_, err = repo.GetMessage(ctx, target.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	likes, err := repo.GetLikes(ctx, target.ID)
	require.NoError(t, err)
	assert.Empty(t, likes)
	comments, err := repo.GetComments(ctx, target.ID)
	require.NoError(t, err)
	assert.Empty(t, comments)

	likes, err = repo.GetLikes(ctx, other.ID)
	require.NoError(t, err)
	assert.Len(t, likes, 1)

	assert.ErrorIs(t, repo.DeleteMessage(ctx, target.ID), common.ErrNotFound)
}

func TestRepository_NilPublisher(t *testing.T) {
	db, err := dbsql.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbsql.Close(db) })

	repo := NewGuestbookRepository(db, nil)
	require.NoError(t, repo.PostMessage(context.Background(), &dbsql.Message{UserName: "Ada", Msg: "hi"}))
}
