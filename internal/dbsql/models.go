package dbsql

import (
	"time"
)

const (
	TableMessages = "messages"
	TableLikes    = "message_likes"
	TableComments = "message_comments"
	TableUsers    = "users"
)

// Message is one guestbook entry. UserID is nil for anonymous posts.
type Message struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserID    *string   `gorm:"column:user_id;size:128;index" json:"user_id"`
	UserImage string    `gorm:"column:user_image;size:512" json:"user_image"`
	UserName  string    `gorm:"column:user_name;size:100;not null" json:"user_name"`
	UserEmail string    `gorm:"column:user_email;size:255" json:"user_email"`
	Msg       string    `gorm:"column:msg;type:text;not null" json:"msg"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
}

func (Message) TableName() string { return TableMessages }

// MessageLike is unique per (message, identifier) so a like can only exist once.
type MessageLike struct {
	ID             int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	MessageID      int64     `gorm:"column:message_id;not null;uniqueIndex:idx_like_message_user" json:"message_id"`
	UserIdentifier string    `gorm:"column:user_identifier;size:255;not null;uniqueIndex:idx_like_message_user" json:"user_identifier"`
	UserID         *string   `gorm:"column:user_id;size:128" json:"user_id"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (MessageLike) TableName() string { return TableLikes }

type MessageComment struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	MessageID int64     `gorm:"column:message_id;not null;index" json:"message_id"`
	UserID    *string   `gorm:"column:user_id;size:128" json:"user_id"`
	UserImage string    `gorm:"column:user_image;size:512" json:"user_image"`
	UserName  string    `gorm:"column:user_name;size:100;not null" json:"user_name"`
	UserEmail string    `gorm:"column:user_email;size:255" json:"user_email"`
	Comment   string    `gorm:"column:comment;type:text;not null" json:"comment"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
}

func (MessageComment) TableName() string { return TableComments }

// User is the profile captured on OAuth sign-in.
type User struct {
	ID        string    `gorm:"column:id;primaryKey;size:128" json:"id"`
	Name      string    `gorm:"column:name;size:255" json:"name"`
	Email     string    `gorm:"column:email;size:255" json:"email"`
	Image     string    `gorm:"column:image;size:512" json:"image"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string { return TableUsers }
