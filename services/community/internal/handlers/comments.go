package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/likelion/yourside/internal/platform/api"
	"github.com/likelion/yourside/internal/platform/auth"
	"github.com/likelion/yourside/internal/platform/httpserver"
	"github.com/likelion/yourside/services/community/internal/coordinator"
	"github.com/likelion/yourside/services/community/internal/idempotency"
	"github.com/likelion/yourside/services/community/internal/store"
)

const maxBodyBytes = 1 << 20

// CommentService is the coordinator surface the handlers drive.
type CommentService interface {
	CreateComment(ctx context.Context, postingID int64, req coordinator.CreateCommentRequest) (store.Comment, error)
	ListComments(ctx context.Context, postingID int64, viewerID *int64) (coordinator.CommentList, error)
	AddLike(ctx context.Context, req coordinator.LikeRequest) error
	RemoveLike(ctx context.Context, req coordinator.LikeRequest) error
	RecountLikes(ctx context.Context, commentID int64) (coordinator.Recount, error)
}

type createCommentResponse struct {
	Message string        `json:"message"`
	Comment store.Comment `json:"comment"`
}

type listCommentsResponse struct {
	Message  string                       `json:"message"`
	Comments []coordinator.CommentSummary `json:"comments"`
}

var errUserMismatch = errors.New("user_id does not match the authenticated user")

// CreateComment handles POST /api/comment/{posting_id}
func CreateComment(cs CommentService, idem idempotency.Store, log *zap.Logger) http.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		postingID, ok := pathID(w, r, "posting_id")
		if !ok {
			return
		}

		var req coordinator.CreateCommentRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON", rid, nil)
			return
		}
		uid, err := actingUser(r, req.UserID)
		if err != nil {
			api.Forbidden(w, "USER_MISMATCH", err.Error(), rid)
			return
		}
		req.UserID = uid

		idemKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
		if uid == nil {
			// rejected by validation below; nothing to deduplicate
			idemKey = ""
		}
		if idemKey != "" && idem != nil {
			idemKey = "comment:" + strconv.FormatInt(*uid, 10) + ":" + strconv.FormatInt(postingID, 10) + ":" + idemKey
			dup, err := idem.Check(r.Context(), idemKey)
			if err != nil {
				log.Error("idempotency check", zap.String("request_id", rid), zap.Error(err))
				api.Internal(w, rid)
				return
			}
			if dup {
				api.Conflict(w, "DUPLICATE_REQUEST", "request with this Idempotency-Key was already processed", rid, nil)
				return
			}
		}

		created, err := cs.CreateComment(r.Context(), postingID, req)
		if err != nil {
			if idemKey != "" && idem != nil {
				if rerr := idem.Release(r.Context(), idemKey); rerr != nil {
					log.Warn("idempotency release", zap.String("request_id", rid), zap.Error(rerr))
				}
			}
			writeError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusCreated, createCommentResponse{Message: "comment created", Comment: created})
	}
}

// ListComments handles GET /api/comment/{posting_id}/list. The viewer_id
// query parameter is honoured only when trustQueryViewer is set, which
// Register does when bearer auth is off.
func ListComments(cs CommentService, trustQueryViewer bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		postingID, ok := pathID(w, r, "posting_id")
		if !ok {
			return
		}

		viewer, err := viewerID(r, trustQueryViewer)
		if err != nil {
			api.BadRequest(w, "INVALID_ID", "viewer_id must be a positive integer", rid, nil)
			return
		}

		list, err := cs.ListComments(r.Context(), postingID, viewer)
		if err != nil {
			writeError(w, rid, err)
			return
		}
		msg := "comments loaded"
		if list.Empty {
			msg = "no comments yet"
		}
		api.WriteJSON(w, http.StatusOK, listCommentsResponse{Message: msg, Comments: list.Comments})
	}
}

// AddLike handles POST /api/comment/likes
func AddLike(cs CommentService) http.HandlerFunc {
	return likeHandler(func(ctx context.Context, req coordinator.LikeRequest) error {
		return cs.AddLike(ctx, req)
	}, http.StatusCreated, "comment liked")
}

// RemoveLike handles DELETE /api/comment/likes
func RemoveLike(cs CommentService) http.HandlerFunc {
	return likeHandler(func(ctx context.Context, req coordinator.LikeRequest) error {
		return cs.RemoveLike(ctx, req)
	}, http.StatusOK, "like removed")
}

func likeHandler(op func(context.Context, coordinator.LikeRequest) error, status int, msg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		var req coordinator.LikeRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON", rid, nil)
			return
		}
		uid, err := actingUser(r, req.UserID)
		if err != nil {
			api.Forbidden(w, "USER_MISMATCH", err.Error(), rid)
			return
		}
		req.UserID = uid

		if err := op(r.Context(), req); err != nil {
			writeError(w, rid, err)
			return
		}
		api.WriteMessage(w, status, msg)
	}
}

// RecountLikes handles POST /api/comment/likes/{comment_id}/recount
func RecountLikes(cs CommentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		commentID, ok := pathID(w, r, "comment_id")
		if !ok {
			return
		}
		rc, err := cs.RecountLikes(r.Context(), commentID)
		if err != nil {
			writeError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, rc)
	}
}

func writeError(w http.ResponseWriter, rid string, err error) {
	var ce *coordinator.Error
	if !errors.As(err, &ce) {
		api.Internal(w, rid)
		return
	}
	switch ce.Kind {
	case coordinator.KindBadRequest:
		api.BadRequest(w, ce.Code, ce.Message, rid, nil)
	case coordinator.KindNotFound:
		api.NotFound(w, ce.Code, ce.Message, rid)
	case coordinator.KindConflict:
		api.Conflict(w, ce.Code, ce.Message, rid, nil)
	default:
		api.Internal(w, rid)
	}
}

// pathID parses a positive int64 URL parameter, writing a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := parseID(chi.URLParam(r, name))
	if err != nil {
		api.BadRequest(w, "INVALID_ID", name+" must be a positive integer", httpserver.RequestIDFromContext(r.Context()), nil)
		return 0, false
	}
	return id, true
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, errors.New("id must be positive")
	}
	return id, nil
}

// actingUser resolves who performs a write. An authenticated subject wins
// and must agree with a user_id in the body; anonymous requests (auth
// disabled) use the body value as is.
func actingUser(r *http.Request, bodyID *int64) (*int64, error) {
	sub, ok := auth.UserIDFromContext(r.Context())
	if !ok || sub == "" {
		return bodyID, nil
	}
	uid, err := parseID(sub)
	if err != nil {
		return nil, errUserMismatch
	}
	if bodyID != nil && *bodyID != uid {
		return nil, errUserMismatch
	}
	return &uid, nil
}

// viewerID prefers the authenticated subject and, when trustQuery is set,
// falls back to the viewer_id query parameter. No viewer yields nil.
func viewerID(r *http.Request, trustQuery bool) (*int64, error) {
	if sub, ok := auth.UserIDFromContext(r.Context()); ok && sub != "" {
		uid, err := parseID(sub)
		if err != nil {
			return nil, err
		}
		return &uid, nil
	}
	raw := strings.TrimSpace(r.URL.Query().Get("viewer_id"))
	if !trustQuery || raw == "" {
		return nil, nil
	}
	uid, err := parseID(raw)
	if err != nil {
		return nil, err
	}
	return &uid, nil
}
