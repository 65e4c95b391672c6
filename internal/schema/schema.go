package schema

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"guestbook/internal/common"
)

const (
	MsgEmptyMessage = "Message cannot be empty"
	MsgEmptyComment = "Comment cannot be empty"
	MsgProfanity    = "Fuck, You can't just hate me here darling!"
)

// Form field names, as the HTML forms post them.
const (
	FieldName    = "name"
	FieldEmail   = "email"
	FieldMessage = "msgbox"
	FieldComment = "comment"
)

// PostInput is the new-message form. Name and Email are optional.
type PostInput struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Msg   string `json:"msgbox"`
}

type CommentInput struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Comment string `json:"comment"`
}

// FieldErrors maps a form field to its first failing rule.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	fields := make([]string, 0, len(fe))
	for field := range fe {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+fe[field])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// First returns one message to show in a toast.
func (fe FieldErrors) First() string {
	for _, field := range []string{FieldName, FieldEmail, FieldMessage, FieldComment} {
		if msg, ok := fe[field]; ok {
			return msg
		}
	}
	return ""
}

func ValidatePost(ctx context.Context, checker ProfanityChecker, in PostInput) error {
	return validate(ctx, checker, in.Name, in.Email, FieldMessage, in.Msg, MsgEmptyMessage)
}

func ValidateComment(ctx context.Context, checker ProfanityChecker, in CommentInput) error {
	return validate(ctx, checker, in.Name, in.Email, FieldComment, in.Comment, MsgEmptyComment)
}

func validate(ctx context.Context, checker ProfanityChecker, name, email, bodyField, body, emptyMsg string) error {
	errs := FieldErrors{}

	// an empty name is treated as not given
	if name != "" {
		if err := common.ValidateName(name); err != nil {
			errs[FieldName] = err.Error()
		}
	}
	if err := common.ValidateEmail(email); err != nil {
		errs[FieldEmail] = err.Error()
	}

	if body == "" {
		errs[bodyField] = emptyMsg
	} else if checker != nil {
		ok, err := checker.Validate(ctx, body)
		if err != nil {
			return fmt.Errorf("profanity check failed: %w", err)
		}
		if !ok {
			errs[bodyField] = MsgProfanity
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
