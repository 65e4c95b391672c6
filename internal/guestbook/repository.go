package guestbook

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"guestbook/internal/common"
	"guestbook/internal/dbsql"
	"guestbook/internal/log"
	"guestbook/internal/metrics"
)

const (
	AnonymousName  = "Anonymous"
	AnonymousEmail = "anonymous@guestbook.com"
)

//go:generate mockgen -source=repository.go -destination=mocks/mock_store.go -package=mocks

// Store is the data access the controller needs.
type Store interface {
	ListMessages(ctx context.Context, offset, limit int) ([]dbsql.Message, error)
	GetMessage(ctx context.Context, id int64) (*dbsql.Message, error)
	PostMessage(ctx context.Context, msg *dbsql.Message) error
	DeleteMessage(ctx context.Context, id int64) error

	ToggleLike(ctx context.Context, like *dbsql.MessageLike) (bool, error)
	GetLikes(ctx context.Context, messageID int64) ([]dbsql.MessageLike, error)

	PostComment(ctx context.Context, comment *dbsql.MessageComment) error
	GetComment(ctx context.Context, id int64) (*dbsql.MessageComment, error)
	GetComments(ctx context.Context, messageID int64) ([]dbsql.MessageComment, error)
	DeleteComment(ctx context.Context, id int64) error
}

// Cursor marks the last message of a keyset page.
type Cursor struct {
	CreatedAt time.Time
	ID        int64
}

type GuestbookRepository struct {
	db        *gorm.DB
	publisher common.Publisher
}

// NewGuestbookRepository wires the store to the change feed. publisher may be nil.
func NewGuestbookRepository(db *gorm.DB, publisher common.Publisher) *GuestbookRepository {
	return &GuestbookRepository{db: db, publisher: publisher}
}

// DefaultAvatar is the generated avatar for visitors without a picture.
func DefaultAvatar(name string) string {
	return "https://api.dicebear.com/7.x/avataaars/svg?seed=" + strings.ReplaceAll(url.QueryEscape(name), "+", "%20")
}

// LikeIdentifier is the per-visitor key for likes: "name_email".
func LikeIdentifier(name, email string) string {
	return name + "_" + email
}

func (r *GuestbookRepository) publish(table string, eventType common.EventType, newRow, oldRow interface{}) {
	if r.publisher == nil {
		return
	}
	event, err := common.NewChangeEvent(table, eventType, newRow, oldRow)
	if err != nil {
		log.Error.Printf("failed to build %s event for %s: %v", eventType, table, err)
		return
	}
	r.publisher.Notify(event)
}

func notFound(err error, what string, id int64) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %d: %w", what, id, common.ErrNotFound)
	}
	return fmt.Errorf("failed to get %s %d: %w", what, id, err)
}

// --------- MESSAGES ---------

// ListMessages returns newest first, rows [offset, offset+limit).
func (r *GuestbookRepository) ListMessages(ctx context.Context, offset, limit int) ([]dbsql.Message, error) {
	var messages []dbsql.Message
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// ListMessagesBefore pages by keyset, so inserts at the head do not shift
// later pages. A zero cursor starts from the newest message.
func (r *GuestbookRepository) ListMessagesBefore(ctx context.Context, cursor Cursor, limit int) ([]dbsql.Message, error) {
	query := r.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit)
	if cursor.ID != 0 {
		query = query.Where("created_at < ? OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var messages []dbsql.Message
	if err := query.Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

func (r *GuestbookRepository) GetMessage(ctx context.Context, id int64) (*dbsql.Message, error) {
	var message dbsql.Message
	if err := r.db.WithContext(ctx).First(&message, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "message", id)
	}
	return &message, nil
}

// PostMessage fills in the anonymous fallbacks and the default avatar.
func (r *GuestbookRepository) PostMessage(ctx context.Context, msg *dbsql.Message) error {
	if msg.UserName == "" {
		msg.UserName = AnonymousName
	}
	if msg.UserEmail == "" {
		msg.UserEmail = AnonymousEmail
	}
	if msg.UserImage == "" {
		msg.UserImage = DefaultAvatar(msg.UserName)
	}

	err := r.db.WithContext(ctx).Create(msg).Error
	metrics.Writes.WithLabelValues("post_message", metrics.Outcome(err)).Inc()
	if err != nil {
		return fmt.Errorf("failed to post message: %w", err)
	}

	r.publish(dbsql.TableMessages, common.EventInsert, msg, nil)
	return nil
}

// DeleteMessage removes the message with its likes and comments.
func (r *GuestbookRepository) DeleteMessage(ctx context.Context, id int64) error {
	var removed dbsql.Message
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&removed, "id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Where("message_id = ?", id).Delete(&dbsql.MessageLike{}).Error; err != nil {
			return err
		}
		if err := tx.Where("message_id = ?", id).Delete(&dbsql.MessageComment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&dbsql.Message{}, "id = ?", id).Error
	})
	metrics.Writes.WithLabelValues("delete_message", metrics.Outcome(err)).Inc()
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("message %d: %w", id, common.ErrNotFound)
		}
		return fmt.Errorf("failed to delete message: %w", err)
	}

	r.publish(dbsql.TableMessages, common.EventDelete, nil, removed)
	return nil
}

// --------- LIKES ---------

// ToggleLike removes the like when (message, identifier) already exists and
// creates it otherwise. It returns whether the like exists afterwards.
func (r *GuestbookRepository) ToggleLike(ctx context.Context, like *dbsql.MessageLike) (bool, error) {
	var (
		liked   bool
		changed dbsql.MessageLike
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []dbsql.MessageLike
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("message_id = ? AND user_identifier = ?", like.MessageID, like.UserIdentifier).
			Limit(1).
			Find(&existing).Error
		if err != nil {
			return err
		}

		if len(existing) > 0 {
			changed = existing[0]
			liked = false
			return tx.Delete(&dbsql.MessageLike{}, "id = ?", changed.ID).Error
		}

		changed = *like
		liked = true
		return tx.Create(&changed).Error
	})

	// a concurrent toggle inserted the same pair first; the like exists
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true, nil
	}
	metrics.Writes.WithLabelValues("toggle_like", metrics.Outcome(err)).Inc()
	if err != nil {
		return false, fmt.Errorf("failed to toggle like: %w", err)
	}

	if liked {
		*like = changed
		r.publish(dbsql.TableLikes, common.EventInsert, changed, nil)
	} else {
		r.publish(dbsql.TableLikes, common.EventDelete, nil, changed)
	}
	return liked, nil
}

func (r *GuestbookRepository) GetLikes(ctx context.Context, messageID int64) ([]dbsql.MessageLike, error) {
	var likes []dbsql.MessageLike
	err := r.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("created_at ASC").
		Find(&likes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get likes: %w", err)
	}
	return likes, nil
}

// --------- COMMENTS ---------

func (r *GuestbookRepository) PostComment(ctx context.Context, comment *dbsql.MessageComment) error {
	if comment.UserName == "" {
		comment.UserName = AnonymousName
	}
	if comment.UserEmail == "" {
		comment.UserEmail = AnonymousEmail
	}
	if comment.UserImage == "" {
		comment.UserImage = DefaultAvatar(comment.UserName)
	}

	err := r.db.WithContext(ctx).Create(comment).Error
	metrics.Writes.WithLabelValues("post_comment", metrics.Outcome(err)).Inc()
	if err != nil {
		return fmt.Errorf("failed to post comment: %w", err)
	}

	r.publish(dbsql.TableComments, common.EventInsert, comment, nil)
	return nil
}

func (r *GuestbookRepository) GetComment(ctx context.Context, id int64) (*dbsql.MessageComment, error) {
	var comment dbsql.MessageComment
	if err := r.db.WithContext(ctx).First(&comment, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "comment", id)
	}
	return &comment, nil
}

// GetComments returns oldest first.
func (r *GuestbookRepository) GetComments(ctx context.Context, messageID int64) ([]dbsql.MessageComment, error) {
	var comments []dbsql.MessageComment
	err := r.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&comments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get comments: %w", err)
	}
	return comments, nil
}

func (r *GuestbookRepository) DeleteComment(ctx context.Context, id int64) error {
	var removed dbsql.MessageComment
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&removed, "id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&dbsql.MessageComment{}, "id = ?", id).Error
	})
	metrics.Writes.WithLabelValues("delete_comment", metrics.Outcome(err)).Inc()
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("comment %d: %w", id, common.ErrNotFound)
		}
		return fmt.Errorf("failed to delete comment: %w", err)
	}

	r.publish(dbsql.TableComments, common.EventDelete, nil, removed)
	return nil
}
