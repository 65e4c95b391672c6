package guestbook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"guestbook/internal/common"
	"guestbook/internal/dbsql"
	"guestbook/internal/log"
	"guestbook/internal/schema"
)

// PageSize is the number of messages fetched per page.
const PageSize = 5

const DefaultReloadDelay = 500 * time.Millisecond

const (
	msgLoadFailed          = "Failed to load messages. Please check your connection."
	msgNameRequired        = "Please enter your name (at least 2 characters)"
	msgLikeNeedsName       = "Name is required to like messages"
	msgLikeFailed          = "Failed to like message. Please try again."
	msgLikePrompt          = "Please enter your name to like this message:"
	msgSendFailed          = "Failed to send message. Please try again."
	msgSent                = "Message sent successfully!"
	msgCommentFailed       = "Failed to post comment. Please try again."
	msgCommentPosted       = "Comment posted!"
	msgDeleted             = "Message deleted successfully"
	msgDeleteFailed        = "Failed to delete message. Please try again."
	msgCommentDeleted      = "Comment deleted"
	msgCommentDeleteFailed = "Failed to delete comment. Please try again."
	msgNotAllowed          = "You can only delete your own posts"
)

// Feed is the change feed the controller listens to.
type Feed interface {
	Listen(table string, mask common.EventMask) (<-chan common.ChangeEvent, func())
}

// NamePrompter asks an anonymous visitor for a name. ok is false when the
// visitor dismissed the prompt.
type NamePrompter interface {
	PromptName(ctx context.Context, question string) (name string, ok bool)
}

type PromptFunc func(ctx context.Context, question string) (string, bool)

func (f PromptFunc) PromptName(ctx context.Context, question string) (string, bool) {
	return f(ctx, question)
}

// StaticName answers the prompt with a name collected up front.
// An empty name counts as a dismissed prompt.
func StaticName(name string) NamePrompter {
	return PromptFunc(func(context.Context, string) (string, bool) {
		return name, name != ""
	})
}

// Notifier shows transient messages to the visitor.
type Notifier interface {
	Success(text string)
	Error(text string)
}

type nopNotifier struct{}

func (nopNotifier) Success(string) {}
func (nopNotifier) Error(string)   {}

// Actor is who performs an action. Identity is nil for anonymous visitors,
// who supply Name and Email through the form.
type Actor struct {
	Identity *common.Identity
	Name     string
	Email    string
}

func (a Actor) formName() string {
	if a.Identity != nil {
		return a.Identity.Name
	}
	return a.Name
}

func (a Actor) formEmail() string {
	if a.Identity != nil {
		return a.Identity.Email
	}
	return a.Email
}

func (a Actor) displayName() string {
	if a.Identity != nil && a.Identity.Name != "" {
		return a.Identity.Name
	}
	return a.Name
}

func (a Actor) email() string {
	if a.Identity != nil && a.Identity.Email != "" {
		return a.Identity.Email
	}
	return a.Email
}

func (a Actor) avatar() string {
	if a.Identity != nil {
		return a.Identity.AvatarURL
	}
	return ""
}

func (a Actor) userID() *string {
	if a.Identity == nil {
		return nil
	}
	id := a.Identity.ID
	return &id
}

// CanDelete reports whether viewer may delete a row owned by ownerID.
// Owners and the configured admin may; anonymous visitors never can.
func CanDelete(viewer *common.Identity, ownerID *string, adminUserID string) bool {
	if viewer == nil || viewer.ID == "" {
		return false
	}
	if ownerID != nil && *ownerID == viewer.ID {
		return true
	}
	return adminUserID != "" && viewer.ID == adminUserID
}

type Options struct {
	AdminUserID string
	ReloadDelay time.Duration
	Checker     schema.ProfanityChecker
}

// Controller is one visitor's view of the guestbook: the loaded messages,
// per-message likes and comments, and which comment sections are open.
type Controller struct {
	store       Store
	feed        Feed
	notifier    Notifier
	checker     schema.ProfanityChecker
	adminUserID string
	reloadDelay time.Duration
	now         func() time.Time

	mu        sync.Mutex
	messages  []dbsql.Message
	likes     map[int64][]dbsql.MessageLike
	comments  map[int64][]dbsql.MessageComment
	expanded  map[int64]bool
	composers map[int64]bool
	hasMore   bool
	loading   bool
	mounted   bool
	aborted   bool

	// set while the last first-page load failed
	initialFailed bool

	unsubscribe func()
	reloadTimer *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewController(store Store, feed Feed, notifier Notifier, opts Options) *Controller {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if opts.Checker == nil {
		opts.Checker = schema.NewProfanityChecker(schema.DefaultHeat)
	}
	if opts.ReloadDelay <= 0 {
		opts.ReloadDelay = DefaultReloadDelay
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		store:       store,
		feed:        feed,
		notifier:    notifier,
		checker:     opts.Checker,
		adminUserID: opts.AdminUserID,
		reloadDelay: opts.ReloadDelay,
		now:         time.Now,
		likes:       make(map[int64][]dbsql.MessageLike),
		comments:    make(map[int64][]dbsql.MessageComment),
		expanded:    make(map[int64]bool),
		composers:   make(map[int64]bool),
		hasMore:     true,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// --------- LIFECYCLE ---------

// Mount subscribes to new messages and loads the first page. The load
// outlives ctx's cancellation so an abandoned request cannot leave the
// controller empty. Calling it again is a no-op.
func (c *Controller) Mount(ctx context.Context) {
	c.mu.Lock()
	if c.mounted || c.aborted {
		c.mu.Unlock()
		return
	}
	c.mounted = true
	if c.feed != nil {
		events, cancel := c.feed.Listen(dbsql.TableMessages, common.MaskAll)
		c.unsubscribe = cancel
		c.wg.Add(1)
		go c.watch(events)
	}
	c.mu.Unlock()

	loadCtx, cancel := c.detach(ctx)
	defer cancel()
	c.fetchInitial(loadCtx)
}

// RetryInitial reloads the first page when the last attempt failed. It
// reports whether a load ran.
func (c *Controller) RetryInitial(ctx context.Context) bool {
	c.mu.Lock()
	retry := c.mounted && c.initialFailed && !c.aborted
	c.mu.Unlock()
	if !retry {
		return false
	}

	loadCtx, cancel := c.detach(ctx)
	defer cancel()
	return c.fetchInitial(loadCtx)
}

// detach keeps ctx's values but not its cancellation. The result is
// cancelled when the controller closes.
func (c *Controller) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	detached, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(c.ctx, cancel)
	return detached, func() {
		stop()
		cancel()
	}
}

// Close drops the subscription and the pending reload. Results of calls
// still in flight are discarded.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.aborted {
		c.mu.Unlock()
		return
	}
	c.aborted = true
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	if c.reloadTimer != nil && c.reloadTimer.Stop() {
		c.wg.Done()
	}
	c.mu.Unlock()

	c.cancel()
	if unsubscribe != nil {
		unsubscribe()
	}
	c.wg.Wait()
}

func (c *Controller) watch(events <-chan common.ChangeEvent) {
	defer c.wg.Done()
	for {
		select {
		case event := <-events:
			c.applyChange(event)
		case <-c.ctx.Done():
			return
		}
	}
}

// applyChange prepends inserted messages not already shown. Updates and
// deletes from other visitors are not merged.
func (c *Controller) applyChange(event common.ChangeEvent) {
	if event.Type != common.EventInsert || len(event.New) == 0 {
		return
	}
	var message dbsql.Message
	if err := json.Unmarshal(event.New, &message); err != nil || message.ID == 0 {
		log.Warn.Printf("ignoring malformed %s event: %v", event.Table, err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.aborted || c.indexOf(message.ID) >= 0 {
		return
	}
	c.messages = append([]dbsql.Message{message}, c.messages...)
}

// --------- LOADING ---------

// fetchInitial replaces the list with the first page. It returns false
// without touching the store while another load is running.
func (c *Controller) fetchInitial(ctx context.Context) bool {
	c.mu.Lock()
	if c.aborted {
		c.mu.Unlock()
		return true
	}
	if c.loading {
		c.mu.Unlock()
		return false
	}
	c.loading = true
	c.mu.Unlock()
	defer c.setLoading(false)

	rows, err := c.store.ListMessages(ctx, 0, PageSize)
	if err != nil {
		log.Error.Printf("Error loading initial messages: %v", err)
		c.mu.Lock()
		aborted := c.aborted
		if !aborted {
			c.messages = nil
			c.hasMore = false
			c.initialFailed = true
		}
		c.mu.Unlock()
		if !aborted {
			c.notifier.Error(msgLoadFailed)
		}
		return true
	}

	c.mu.Lock()
	if c.aborted {
		c.mu.Unlock()
		return true
	}
	c.messages = dedupe(rows)
	c.initialFailed = false
	c.mu.Unlock()

	for _, m := range rows {
		c.loadInteractions(ctx, m.ID)
	}

	c.mu.Lock()
	if !c.aborted {
		c.hasMore = len(rows) == PageSize
	}
	c.mu.Unlock()
	return true
}

// LoadMore fetches the next page at offset len(messages). It returns false
// without touching the store while a load is running or nothing is left.
func (c *Controller) LoadMore(ctx context.Context) bool {
	c.mu.Lock()
	if c.aborted || c.loading || !c.hasMore {
		c.mu.Unlock()
		return false
	}
	c.loading = true
	offset := len(c.messages)
	c.mu.Unlock()
	defer c.setLoading(false)

	rows, err := c.store.ListMessages(ctx, offset, PageSize)
	if err != nil {
		log.Error.Printf("Error loading messages: %v", err)
		c.mu.Lock()
		aborted := c.aborted
		if !aborted {
			c.hasMore = false
		}
		c.mu.Unlock()
		if !aborted {
			c.notifier.Error(msgLoadFailed)
		}
		return true
	}

	c.mu.Lock()
	if c.aborted {
		c.mu.Unlock()
		return true
	}
	fresh := make([]dbsql.Message, 0, len(rows))
	for _, m := range rows {
		if c.indexOf(m.ID) < 0 {
			fresh = append(fresh, m)
		}
	}
	if len(fresh) > 0 {
		c.messages = dedupe(append(c.messages, fresh...))
	}
	c.mu.Unlock()

	for _, m := range fresh {
		c.loadInteractions(ctx, m.ID)
	}

	c.mu.Lock()
	if !c.aborted {
		c.hasMore = len(fresh) == PageSize
	}
	c.mu.Unlock()
	return true
}

func (c *Controller) setLoading(loading bool) {
	c.mu.Lock()
	c.loading = loading
	c.mu.Unlock()
}

// loadInteractions refreshes likes, then comments. A failed fetch leaves
// that cache entry as it was.
func (c *Controller) loadInteractions(ctx context.Context, messageID int64) {
	c.reloadLikes(ctx, messageID)
	c.reloadComments(ctx, messageID)
}

func (c *Controller) reloadLikes(ctx context.Context, messageID int64) {
	likes, err := c.store.GetLikes(ctx, messageID)
	if err != nil {
		log.Error.Printf("Error loading likes for message %d: %v", messageID, err)
		return
	}
	if likes == nil {
		likes = []dbsql.MessageLike{}
	}
	c.mu.Lock()
	if !c.aborted {
		c.likes[messageID] = likes
	}
	c.mu.Unlock()
}

func (c *Controller) reloadComments(ctx context.Context, messageID int64) {
	comments, err := c.store.GetComments(ctx, messageID)
	if err != nil {
		log.Error.Printf("Error loading comments for message %d: %v", messageID, err)
		return
	}
	if comments == nil {
		comments = []dbsql.MessageComment{}
	}
	c.mu.Lock()
	if !c.aborted {
		c.comments[messageID] = comments
	}
	c.mu.Unlock()
}

// scheduleReload refetches the first page after the reload delay. A newer
// schedule replaces a pending one. While a page load is running the reload
// waits another delay, so a scroll never appends onto a replaced list.
func (c *Controller) scheduleReload() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.aborted {
		return
	}
	if c.reloadTimer != nil && c.reloadTimer.Stop() {
		c.wg.Done()
	}
	c.wg.Add(1)
	c.reloadTimer = time.AfterFunc(c.reloadDelay, func() {
		defer c.wg.Done()
		if !c.fetchInitial(c.ctx) {
			c.scheduleReload()
		}
	})
}

// --------- LIKES ---------

// ToggleLike likes or unlikes a message. Anonymous visitors are asked for a
// name first.
func (c *Controller) ToggleLike(ctx context.Context, messageID int64, actor Actor, prompter NamePrompter) (bool, error) {
	like := &dbsql.MessageLike{MessageID: messageID}

	if actor.Identity != nil {
		like.UserIdentifier = actor.Identity.ID
		like.UserID = actor.userID()
	} else {
		var name string
		var ok bool
		if prompter != nil {
			name, ok = prompter.PromptName(ctx, msgLikePrompt)
		}
		name = strings.TrimSpace(name)
		if !ok || !common.HasPromptName(name) {
			c.notifier.Error(msgLikeNeedsName)
			return false, common.ErrNameRequired
		}
		email := fmt.Sprintf("anonymous_%d@guestbook.com", c.now().UnixMilli())
		like.UserIdentifier = LikeIdentifier(name, email)
	}

	liked, err := c.store.ToggleLike(ctx, like)
	if err != nil {
		log.Error.Printf("Error toggling like on message %d: %v", messageID, err)
		c.notifier.Error(msgLikeFailed)
		return false, err
	}

	c.reloadLikes(ctx, messageID)
	return liked, nil
}

// --------- COMMENTS ---------

func (c *Controller) PostComment(ctx context.Context, messageID int64, actor Actor, text string) (*dbsql.MessageComment, error) {
	if actor.Identity == nil && !common.HasPromptName(actor.Name) {
		c.notifier.Error(msgNameRequired)
		return nil, common.ErrNameRequired
	}

	err := schema.ValidateComment(ctx, c.checker, schema.CommentInput{
		Name:    actor.formName(),
		Email:   actor.formEmail(),
		Comment: text,
	})
	if err != nil {
		c.notifyInvalid(err, msgCommentFailed)
		return nil, err
	}

	comment := &dbsql.MessageComment{
		MessageID: messageID,
		UserID:    actor.userID(),
		UserImage: actor.avatar(),
		UserName:  actor.displayName(),
		UserEmail: actor.email(),
		Comment:   text,
	}
	if err := c.store.PostComment(ctx, comment); err != nil {
		log.Error.Printf("Error posting comment on message %d: %v", messageID, err)
		c.notifier.Error(msgCommentFailed)
		return nil, err
	}

	c.notifier.Success(msgCommentPosted)
	c.loadInteractions(ctx, messageID)

	c.mu.Lock()
	delete(c.composers, messageID)
	c.mu.Unlock()
	return comment, nil
}

func (c *Controller) DeleteComment(ctx context.Context, commentID int64, viewer *common.Identity) error {
	comment, err := c.findComment(ctx, commentID)
	if err != nil {
		c.notifier.Error(msgCommentDeleteFailed)
		return err
	}
	if !CanDelete(viewer, comment.UserID, c.adminUserID) {
		c.notifier.Error(msgNotAllowed)
		return common.ErrForbidden
	}

	if err := c.store.DeleteComment(ctx, commentID); err != nil {
		log.Error.Printf("Error deleting comment %d: %v", commentID, err)
		c.notifier.Error(msgCommentDeleteFailed)
		return err
	}

	c.notifier.Success(msgCommentDeleted)
	c.loadInteractions(ctx, comment.MessageID)
	return nil
}

func (c *Controller) findComment(ctx context.Context, commentID int64) (*dbsql.MessageComment, error) {
	c.mu.Lock()
	for _, list := range c.comments {
		for i := range list {
			if list[i].ID == commentID {
				found := list[i]
				c.mu.Unlock()
				return &found, nil
			}
		}
	}
	c.mu.Unlock()
	return c.store.GetComment(ctx, commentID)
}

// ToggleComments opens or closes a comment section and returns whether it
// is now open. Opening loads the comments when none are cached.
func (c *Controller) ToggleComments(ctx context.Context, messageID int64) bool {
	c.mu.Lock()
	if c.expanded[messageID] {
		delete(c.expanded, messageID)
		c.mu.Unlock()
		return false
	}
	c.expanded[messageID] = true
	_, cached := c.comments[messageID]
	c.mu.Unlock()

	if !cached {
		c.loadInteractions(ctx, messageID)
	}
	return true
}

// ToggleCommentForm flips the comment composer and returns whether it is open.
func (c *Controller) ToggleCommentForm(messageID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	open := !c.composers[messageID]
	if open {
		c.composers[messageID] = true
	} else {
		delete(c.composers, messageID)
	}
	return open
}

// --------- MESSAGES ---------

// PostMessage validates and stores a message, then refetches the first
// page after the reload delay.
func (c *Controller) PostMessage(ctx context.Context, actor Actor, text string) (*dbsql.Message, error) {
	if actor.Identity == nil && !common.HasPromptName(actor.Name) {
		c.notifier.Error(msgNameRequired)
		return nil, common.ErrNameRequired
	}

	err := schema.ValidatePost(ctx, c.checker, schema.PostInput{
		Name:  actor.formName(),
		Email: actor.formEmail(),
		Msg:   text,
	})
	if err != nil {
		c.notifyInvalid(err, msgSendFailed)
		return nil, err
	}

	message := &dbsql.Message{
		UserID:    actor.userID(),
		UserImage: actor.avatar(),
		UserName:  actor.displayName(),
		UserEmail: actor.email(),
		Msg:       text,
	}
	if err := c.store.PostMessage(ctx, message); err != nil {
		log.Error.Printf("Error posting message: %v", err)
		c.notifier.Error(msgSendFailed)
		return nil, err
	}

	c.notifier.Success(msgSent)
	c.scheduleReload()
	return message, nil
}

// DeleteMessage removes a message the viewer owns (or any, for the admin)
// and drops it from the local view.
func (c *Controller) DeleteMessage(ctx context.Context, messageID int64, viewer *common.Identity) error {
	owner, err := c.messageOwner(ctx, messageID)
	if err != nil {
		c.notifier.Error(msgDeleteFailed)
		return err
	}
	if !CanDelete(viewer, owner, c.adminUserID) {
		c.notifier.Error(msgNotAllowed)
		return common.ErrForbidden
	}

	if err := c.store.DeleteMessage(ctx, messageID); err != nil {
		log.Error.Printf("Error deleting message %d: %v", messageID, err)
		c.notifier.Error(msgDeleteFailed)
		return err
	}

	c.mu.Lock()
	if i := c.indexOf(messageID); i >= 0 {
		c.messages = append(c.messages[:i:i], c.messages[i+1:]...)
	}
	delete(c.likes, messageID)
	delete(c.comments, messageID)
	delete(c.expanded, messageID)
	delete(c.composers, messageID)
	c.mu.Unlock()

	c.notifier.Success(msgDeleted)
	return nil
}

func (c *Controller) messageOwner(ctx context.Context, messageID int64) (*string, error) {
	c.mu.Lock()
	if i := c.indexOf(messageID); i >= 0 {
		owner := c.messages[i].UserID
		c.mu.Unlock()
		return owner, nil
	}
	c.mu.Unlock()

	message, err := c.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	return message.UserID, nil
}

func (c *Controller) notifyInvalid(err error, fallback string) {
	var fe schema.FieldErrors
	if errors.As(err, &fe) {
		c.notifier.Error(fe.First())
		return
	}
	log.Error.Printf("validation error: %v", err)
	c.notifier.Error(fallback)
}

// --------- STATE ---------

// indexOf must be called with mu held.
func (c *Controller) indexOf(id int64) int {
	for i := range c.messages {
		if c.messages[i].ID == id {
			return i
		}
	}
	return -1
}

// dedupe keeps the first occurrence of each id, in order.
func dedupe(messages []dbsql.Message) []dbsql.Message {
	seen := make(map[int64]bool, len(messages))
	out := make([]dbsql.Message, 0, len(messages))
	for _, m := range messages {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		out = append(out, m)
	}
	return out
}

func (c *Controller) Messages() []dbsql.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]dbsql.Message(nil), c.messages...)
}

func (c *Controller) HasMore() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasMore
}

func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// Likes returns the cached likes and whether they were loaded.
func (c *Controller) Likes(messageID int64) ([]dbsql.MessageLike, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	likes, ok := c.likes[messageID]
	return append([]dbsql.MessageLike(nil), likes...), ok
}

func (c *Controller) Comments(messageID int64) ([]dbsql.MessageComment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	comments, ok := c.comments[messageID]
	return append([]dbsql.MessageComment(nil), comments...), ok
}

func (c *Controller) CommentsOpen(messageID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expanded[messageID]
}

func (c *Controller) ComposerOpen(messageID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.composers[messageID]
}

type MessageView struct {
	dbsql.Message
	LikeCount     int                    `json:"like_count"`
	Liked         bool                   `json:"liked"`
	CommentCount  int                    `json:"comment_count"`
	Comments      []dbsql.MessageComment `json:"comments,omitempty"`
	CommentsOpen  bool                   `json:"comments_open"`
	ComposerOpen  bool                   `json:"composer_open"`
	CanDelete     bool                   `json:"can_delete"`
	CommentRights map[int64]bool         `json:"comment_can_delete,omitempty"`
}

type Snapshot struct {
	Messages []MessageView `json:"messages"`
	HasMore  bool          `json:"has_more"`
	Loading  bool          `json:"loading"`
}

// Snapshot renders the state as seen by viewer (nil for anonymous).
func (c *Controller) Snapshot(viewer *common.Identity) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	views := make([]MessageView, 0, len(c.messages))
	for _, m := range c.messages {
		likes := c.likes[m.ID]
		comments := c.comments[m.ID]
		view := MessageView{
			Message:      m,
			LikeCount:    len(likes),
			Liked:        likedBy(likes, viewer),
			CommentCount: len(comments),
			CommentsOpen: c.expanded[m.ID],
			ComposerOpen: c.composers[m.ID],
			CanDelete:    CanDelete(viewer, m.UserID, c.adminUserID),
		}
		if view.CommentsOpen {
			view.Comments = append([]dbsql.MessageComment(nil), comments...)
			for _, comment := range comments {
				if CanDelete(viewer, comment.UserID, c.adminUserID) {
					if view.CommentRights == nil {
						view.CommentRights = make(map[int64]bool)
					}
					view.CommentRights[comment.ID] = true
				}
			}
		}
		views = append(views, view)
	}

	return Snapshot{Messages: views, HasMore: c.hasMore, Loading: c.loading}
}

func likedBy(likes []dbsql.MessageLike, viewer *common.Identity) bool {
	if viewer == nil {
		return false
	}
	for _, like := range likes {
		if (like.UserID != nil && *like.UserID == viewer.ID) || like.UserIdentifier == viewer.ID {
			return true
		}
	}
	return false
}
