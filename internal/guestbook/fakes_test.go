package guestbook

import (
	"context"
	"errors"
	"sync"

	"guestbook/internal/common"
	"guestbook/internal/dbsql"
)

var errStoreDown = errors.New("store unavailable")

// fakeStore keeps messages newest first. pages, when set, overrides
// ListMessages by offset.
type fakeStore struct {
	mu       sync.Mutex
	messages []dbsql.Message
	likes    map[int64][]dbsql.MessageLike
	comments map[int64][]dbsql.MessageComment
	pages    map[int][]dbsql.Message
	nextID   int64

	listErr   error
	listGate  chan struct{}
	listCalls int
	writes    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		likes:    make(map[int64][]dbsql.MessageLike),
		comments: make(map[int64][]dbsql.MessageComment),
		nextID:   100,
	}
}

func msgs(ids ...int64) []dbsql.Message {
	out := make([]dbsql.Message, 0, len(ids))
	for _, id := range ids {
		out = append(out, dbsql.Message{ID: id, UserName: "Ada", Msg: "hello"})
	}
	return out
}

func (s *fakeStore) ListCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls
}

func (s *fakeStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *fakeStore) ListMessages(ctx context.Context, offset, limit int) ([]dbsql.Message, error) {
	s.mu.Lock()
	s.listCalls++
	gate := s.listGate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	if s.pages != nil {
		return append([]dbsql.Message(nil), s.pages[offset]...), nil
	}
	if offset >= len(s.messages) {
		return []dbsql.Message{}, nil
	}
	end := offset + limit
	if end > len(s.messages) {
		end = len(s.messages)
	}
	return append([]dbsql.Message(nil), s.messages[offset:end]...), nil
}

func (s *fakeStore) GetMessage(ctx context.Context, id int64) (*dbsql.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == id {
			found := m
			return &found, nil
		}
	}
	return nil, common.ErrNotFound
}

func (s *fakeStore) PostMessage(ctx context.Context, msg *dbsql.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	s.nextID++
	msg.ID = s.nextID
	s.messages = append([]dbsql.Message{*msg}, s.messages...)
	return nil
}

func (s *fakeStore) DeleteMessage(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	for i, m := range s.messages {
		if m.ID == id {
			s.messages = append(s.messages[:i:i], s.messages[i+1:]...)
			delete(s.likes, id)
			delete(s.comments, id)
			return nil
		}
	}
	return common.ErrNotFound
}

func (s *fakeStore) ToggleLike(ctx context.Context, like *dbsql.MessageLike) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	list := s.likes[like.MessageID]
	for i, l := range list {
		if l.UserIdentifier == like.UserIdentifier {
			s.likes[like.MessageID] = append(list[:i:i], list[i+1:]...)
			return false, nil
		}
	}
	s.nextID++
	like.ID = s.nextID
	s.likes[like.MessageID] = append(list, *like)
	return true, nil
}

func (s *fakeStore) GetLikes(ctx context.Context, messageID int64) ([]dbsql.MessageLike, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]dbsql.MessageLike(nil), s.likes[messageID]...), nil
}

func (s *fakeStore) PostComment(ctx context.Context, comment *dbsql.MessageComment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	s.nextID++
	comment.ID = s.nextID
	s.comments[comment.MessageID] = append(s.comments[comment.MessageID], *comment)
	return nil
}

func (s *fakeStore) GetComment(ctx context.Context, id int64) (*dbsql.MessageComment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, list := range s.comments {
		for _, c := range list {
			if c.ID == id {
				found := c
				return &found, nil
			}
		}
	}
	return nil, common.ErrNotFound
}

func (s *fakeStore) GetComments(ctx context.Context, messageID int64) ([]dbsql.MessageComment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]dbsql.MessageComment(nil), s.comments[messageID]...), nil
}

func (s *fakeStore) DeleteComment(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	for messageID, list := range s.comments {
		for i, c := range list {
			if c.ID == id {
				s.comments[messageID] = append(list[:i:i], list[i+1:]...)
				return nil
			}
		}
	}
	return common.ErrNotFound
}

type fakeFeed struct {
	mu        sync.Mutex
	events    chan common.ChangeEvent
	table     string
	mask      common.EventMask
	cancelled bool
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{events: make(chan common.ChangeEvent, 16)}
}

func (f *fakeFeed) Listen(table string, mask common.EventMask) (<-chan common.ChangeEvent, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.table = table
	f.mask = mask
	return f.events, func() {
		f.mu.Lock()
		f.cancelled = true
		f.mu.Unlock()
	}
}

func (f *fakeFeed) Cancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

func (f *fakeFeed) insert(m dbsql.Message) {
	event, err := common.NewChangeEvent(dbsql.TableMessages, common.EventInsert, m, nil)
	if err != nil {
		panic(err)
	}
	f.events <- event
}

type recordingNotifier struct {
	mu        sync.Mutex
	successes []string
	errors    []string
}

func (n *recordingNotifier) Success(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.successes = append(n.successes, text)
}

func (n *recordingNotifier) Error(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, text)
}

func (n *recordingNotifier) Errors() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.errors...)
}

func (n *recordingNotifier) Successes() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.successes...)
}
