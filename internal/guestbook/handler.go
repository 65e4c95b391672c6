package guestbook

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"

	"guestbook/internal/common"
	"guestbook/internal/dbsql"
	"guestbook/internal/log"
	"guestbook/internal/metrics"
	"guestbook/internal/schema"
)

// SessionCookieName carries the guestbook session id.
const SessionCookieName = "guestbook-session"

const sessionIDKey = "sid"

const (
	ErrCodeBadRequest   = "BAD_REQUEST"
	ErrCodeValidation   = "VALIDATION_FAILED"
	ErrCodeNameRequired = "NAME_REQUIRED"
	ErrCodeForbidden    = "FORBIDDEN"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

type HTTPError struct {
	IError    error             `json:"-"`
	Status    int               `json:"status"`
	Error     string            `json:"error"`
	ErrorCode string            `json:"error_code"`
	Fields    map[string]string `json:"fields,omitempty"`
	Notices   []common.Notice   `json:"notices,omitempty"`
}

// handlerFunc returns an optional result to send along with the state.
type handlerFunc func(r *http.Request, s *Session) (interface{}, *HTTPError)

// StateResponse is returned by every guestbook route.
type StateResponse struct {
	Snapshot
	Notices []common.Notice `json:"notices"`
	Result  interface{}     `json:"result,omitempty"`
}

type messageRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Msg   string `json:"msgbox"`
}

type commentRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Comment string `json:"comment"`
}

// likeRequest answers the name prompt for anonymous visitors.
type likeRequest struct {
	Name string `json:"name"`
}

type Handler struct {
	registry *Registry
	repo     *GuestbookRepository
	sessions sessions.Store
	limiter  *common.LimiterPool
}

func NewHandler(registry *Registry, repo *GuestbookRepository, store sessions.Store, limiter *common.LimiterPool) *Handler {
	return &Handler{
		registry: registry,
		repo:     repo,
		sessions: store,
		limiter:  limiter,
	}
}

func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/guestbook", h.handle(h.getState)).Methods(http.MethodGet)
	r.HandleFunc("/guestbook/more", h.handle(h.loadMore)).Methods(http.MethodPost)
	r.HandleFunc("/guestbook/messages", h.handle(h.limited(h.postMessage))).Methods(http.MethodPost)
	r.HandleFunc("/guestbook/messages/{id:[0-9]+}", h.handle(h.deleteMessage)).Methods(http.MethodDelete)
	r.HandleFunc("/guestbook/messages/{id:[0-9]+}/like", h.handle(h.limited(h.toggleLike))).Methods(http.MethodPost)
	r.HandleFunc("/guestbook/messages/{id:[0-9]+}/comments", h.handle(h.limited(h.postComment))).Methods(http.MethodPost)
	r.HandleFunc("/guestbook/messages/{id:[0-9]+}/comments/toggle", h.handle(h.toggleComments)).Methods(http.MethodPost)
	r.HandleFunc("/guestbook/messages/{id:[0-9]+}/composer/toggle", h.handle(h.toggleComposer)).Methods(http.MethodPost)
	r.HandleFunc("/guestbook/comments/{id:[0-9]+}", h.handle(h.deleteComment)).Methods(http.MethodDelete)

	// stateless read for API clients
	r.HandleFunc("/messages", h.listMessages).Methods(http.MethodGet)
}

// handle resolves the visitor's session, runs fn and writes either the
// error or the session state, with pending notices in both cases.
func (h *Handler) handle(fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, e := h.session(w, r)
		if e != nil {
			if e.Status >= http.StatusInternalServerError {
				log.Error.Printf("%s %s: %v", r.Method, r.URL.Path, e.IError)
			}
			writeError(w, e)
			return
		}

		result, e := fn(r, session)
		if e != nil {
			if e.Status >= http.StatusInternalServerError {
				log.Error.Printf("%s %s: %v", r.Method, r.URL.Path, e.IError)
			}
			e.Notices = session.Inbox.Drain()
			writeError(w, e)
			return
		}

		respondJSON(w, http.StatusOK, StateResponse{
			Snapshot: session.Controller.Snapshot(common.IdentityFromContext(r.Context())),
			Notices:  session.Inbox.Drain(),
			Result:   result,
		})
	}
}

// session resolves the visitor's session. Creating one goes through the
// client's own rate limit bucket, separate from writes.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*Session, *HTTPError) {
	cookie, _ := h.sessions.Get(r, SessionCookieName)
	id, _ := cookie.Values[sessionIDKey].(string)

	if _, ok := h.registry.Get(id); !ok && !h.limiter.Allow("session:"+h.limiter.Key(r)) {
		metrics.RateLimited.Inc()
		return nil, errRateLimited()
	}

	session, created := h.registry.Acquire(r.Context(), id)
	if created {
		cookie.Values[sessionIDKey] = session.ID
		if err := cookie.Save(r, w); err != nil {
			return nil, &HTTPError{IError: err, Status: http.StatusInternalServerError, Error: "session unavailable", ErrorCode: ErrCodeInternal}
		}
	}
	return session, nil
}

// limited applies the per-client write limit.
func (h *Handler) limited(fn handlerFunc) handlerFunc {
	return func(r *http.Request, s *Session) (interface{}, *HTTPError) {
		if !h.limiter.Allow(h.limiter.Key(r)) {
			metrics.RateLimited.Inc()
			return nil, errRateLimited()
		}
		return fn(r, s)
	}
}

func errRateLimited() *HTTPError {
	return &HTTPError{IError: common.ErrRateLimited, Status: http.StatusTooManyRequests, Error: "Too many requests. Slow down a little.", ErrorCode: ErrCodeRateLimited}
}

// getState reloads the first page when the last attempt failed, as a page
// refresh would.
func (h *Handler) getState(r *http.Request, s *Session) (interface{}, *HTTPError) {
	s.Controller.RetryInitial(r.Context())
	return nil, nil
}

func (h *Handler) loadMore(r *http.Request, s *Session) (interface{}, *HTTPError) {
	return map[string]bool{"fetched": s.Controller.LoadMore(r.Context())}, nil
}

func (h *Handler) postMessage(r *http.Request, s *Session) (interface{}, *HTTPError) {
	var req messageRequest
	if e := decode(r, &req); e != nil {
		return nil, e
	}

	actor := Actor{Identity: common.IdentityFromContext(r.Context()), Name: req.Name, Email: req.Email}
	msg, err := s.Controller.PostMessage(r.Context(), actor, req.Msg)
	if err != nil {
		return nil, toHTTPError(err)
	}
	return msg, nil
}

func (h *Handler) deleteMessage(r *http.Request, s *Session) (interface{}, *HTTPError) {
	id, e := pathID(r)
	if e != nil {
		return nil, e
	}
	if err := s.Controller.DeleteMessage(r.Context(), id, common.IdentityFromContext(r.Context())); err != nil {
		return nil, toHTTPError(err)
	}
	return nil, nil
}

func (h *Handler) toggleLike(r *http.Request, s *Session) (interface{}, *HTTPError) {
	id, e := pathID(r)
	if e != nil {
		return nil, e
	}
	var req likeRequest
	if r.ContentLength != 0 {
		if e := decode(r, &req); e != nil {
			return nil, e
		}
	}

	actor := Actor{Identity: common.IdentityFromContext(r.Context())}
	liked, err := s.Controller.ToggleLike(r.Context(), id, actor, StaticName(req.Name))
	if err != nil {
		e := toHTTPError(err)
		if errors.Is(err, common.ErrNameRequired) {
			e.Error = msgLikeNeedsName
		}
		return nil, e
	}
	return map[string]bool{"liked": liked}, nil
}

func (h *Handler) postComment(r *http.Request, s *Session) (interface{}, *HTTPError) {
	id, e := pathID(r)
	if e != nil {
		return nil, e
	}
	var req commentRequest
	if e := decode(r, &req); e != nil {
		return nil, e
	}

	actor := Actor{Identity: common.IdentityFromContext(r.Context()), Name: req.Name, Email: req.Email}
	comment, err := s.Controller.PostComment(r.Context(), id, actor, req.Comment)
	if err != nil {
		return nil, toHTTPError(err)
	}
	return comment, nil
}

func (h *Handler) deleteComment(r *http.Request, s *Session) (interface{}, *HTTPError) {
	id, e := pathID(r)
	if e != nil {
		return nil, e
	}
	if err := s.Controller.DeleteComment(r.Context(), id, common.IdentityFromContext(r.Context())); err != nil {
		return nil, toHTTPError(err)
	}
	return nil, nil
}

func (h *Handler) toggleComments(r *http.Request, s *Session) (interface{}, *HTTPError) {
	id, e := pathID(r)
	if e != nil {
		return nil, e
	}
	return map[string]bool{"open": s.Controller.ToggleComments(r.Context(), id)}, nil
}

func (h *Handler) toggleComposer(r *http.Request, s *Session) (interface{}, *HTTPError) {
	id, e := pathID(r)
	if e != nil {
		return nil, e
	}
	return map[string]bool{"open": s.Controller.ToggleCommentForm(id)}, nil
}

// listMessages pages by keyset: ?before_id=&before=<RFC3339Nano>&limit=
func (h *Handler) listMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := PageSize
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 50 {
			writeError(w, &HTTPError{Status: http.StatusBadRequest, Error: "limit must be between 1 and 50", ErrorCode: ErrCodeBadRequest})
			return
		}
		limit = n
	}

	var cursor Cursor
	if v := q.Get("before_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, &HTTPError{Status: http.StatusBadRequest, Error: "invalid before_id", ErrorCode: ErrCodeBadRequest})
			return
		}
		at, err := time.Parse(time.RFC3339Nano, q.Get("before"))
		if err != nil {
			writeError(w, &HTTPError{Status: http.StatusBadRequest, Error: "before must be an RFC3339 timestamp", ErrorCode: ErrCodeBadRequest})
			return
		}
		cursor = Cursor{ID: id, CreatedAt: at}
	}

	messages, err := h.repo.ListMessagesBefore(r.Context(), cursor, limit)
	if err != nil {
		log.Error.Printf("list messages: %v", err)
		writeError(w, &HTTPError{IError: err, Status: http.StatusInternalServerError, Error: "failed to list messages", ErrorCode: ErrCodeInternal})
		return
	}
	if messages == nil {
		messages = []dbsql.Message{}
	}

	resp := map[string]interface{}{"messages": messages}
	if len(messages) == limit {
		last := messages[len(messages)-1]
		resp["next"] = map[string]interface{}{"before_id": last.ID, "before": last.CreatedAt.Format(time.RFC3339Nano)}
	}
	respondJSON(w, http.StatusOK, resp)
}

func toHTTPError(err error) *HTTPError {
	var fe schema.FieldErrors
	switch {
	case errors.As(err, &fe):
		return &HTTPError{IError: err, Status: http.StatusUnprocessableEntity, Error: fe.First(), ErrorCode: ErrCodeValidation, Fields: fe}
	case errors.Is(err, common.ErrNameRequired):
		return &HTTPError{IError: err, Status: http.StatusBadRequest, Error: "Please enter your name (at least 2 characters)", ErrorCode: ErrCodeNameRequired}
	case errors.Is(err, common.ErrForbidden):
		return &HTTPError{IError: err, Status: http.StatusForbidden, Error: msgNotAllowed, ErrorCode: ErrCodeForbidden}
	case errors.Is(err, common.ErrNotFound):
		return &HTTPError{IError: err, Status: http.StatusNotFound, Error: "not found", ErrorCode: ErrCodeNotFound}
	default:
		return &HTTPError{IError: err, Status: http.StatusInternalServerError, Error: "something went wrong", ErrorCode: ErrCodeInternal}
	}
}

func pathID(r *http.Request) (int64, *HTTPError) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, &HTTPError{IError: err, Status: http.StatusBadRequest, Error: "invalid id", ErrorCode: ErrCodeBadRequest}
	}
	return id, nil
}

func decode(r *http.Request, v interface{}) *HTTPError {
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(v); err != nil {
		return &HTTPError{IError: err, Status: http.StatusBadRequest, Error: "invalid JSON body", ErrorCode: ErrCodeBadRequest}
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error.Printf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, e *HTTPError) {
	if e.Error == "" {
		e.Error = http.StatusText(e.Status)
	}
	if e.Status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "1")
	}
	respondJSON(w, e.Status, e)
}
