package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/likelion/yourside/internal/platform/auth"
	"github.com/likelion/yourside/services/community/internal/idempotency"
)

// RouteOptions wires the optional collaborators of the comment routes.
type RouteOptions struct {
	// Verifier enables bearer auth; nil leaves every route open and takes
	// user ids from request bodies (development only).
	Verifier *auth.JWTVerifier
	// Idempotency backs the Idempotency-Key header on comment creation.
	Idempotency idempotency.Store
	// LikeLimiter wraps the like/unlike routes, typically a rate limiter.
	LikeLimiter func(http.Handler) http.Handler
	Logger      *zap.Logger
}

// Register mounts the comment API on r.
func Register(r chi.Router, cs CommentService, opts RouteOptions) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	pass := func(next http.Handler) http.Handler { return next }
	read, write, admin := pass, pass, pass
	if opts.Verifier != nil {
		read = auth.OptionalUser(*opts.Verifier)
		write = auth.RequireUser(*opts.Verifier)
		admin = func(next http.Handler) http.Handler { return write(auth.RequireAdmin(next)) }
	}
	limit := opts.LikeLimiter
	if limit == nil {
		limit = pass
	}

	r.Route("/api/comment", func(r chi.Router) {
		r.With(read).Get("/{posting_id}/list", ListComments(cs, opts.Verifier == nil))
		r.With(write).Post("/{posting_id}", CreateComment(cs, opts.Idempotency, log))
		r.With(write, limit).Post("/likes", AddLike(cs))
		r.With(write, limit).Delete("/likes", RemoveLike(cs))
		r.With(admin).Post("/likes/{comment_id}/recount", RecountLikes(cs))
	})
}
