package services

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/example/pointpay/internal/ledger"
	"github.com/example/pointpay/internal/models"
)

// PrincipalResolver decides which user a request acts for.
type PrincipalResolver interface {
	Resolve(ctx context.Context) (*models.User, error)
}

// DefaultUserResolver maps every request to one shared account, created on
// first use. It stands in until callers authenticate.
type DefaultUserResolver struct {
	store    *ledger.Store
	username string
	email    string
}

func NewDefaultUserResolver(store *ledger.Store, username, email string) *DefaultUserResolver {
	return &DefaultUserResolver{store: store, username: username, email: email}
}

func (r *DefaultUserResolver) Resolve(ctx context.Context) (*models.User, error) {
	user, err := r.store.EnsureUser(ctx, r.username, r.email)
	if err != nil {
		return nil, transientError("failed to resolve user", err)
	}
	return user, nil
}

type principalKey struct{}

// WithPrincipal attaches an authenticated user ID to ctx.
func WithPrincipal(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, principalKey{}, userID)
}

// PrincipalFromContext returns the user ID attached by WithPrincipal.
func PrincipalFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(principalKey{}).(uuid.UUID)
	return id, ok
}

// ContextUserResolver resolves the user authenticated upstream, typically by
// the bearer-token middleware.
type ContextUserResolver struct {
	store *ledger.Store
}

func NewContextUserResolver(store *ledger.Store) *ContextUserResolver {
	return &ContextUserResolver{store: store}
}

func (r *ContextUserResolver) Resolve(ctx context.Context) (*models.User, error) {
	id, ok := PrincipalFromContext(ctx)
	if !ok {
		return nil, &Error{Kind: ErrAuthenticity, Message: "authentication required"}
	}
	user, err := r.store.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, ledger.ErrUserNotFound) {
			return nil, &Error{Kind: ErrAuthenticity, Message: "unknown user", Err: err}
		}
		return nil, transientError("failed to resolve user", err)
	}
	if user.Status != models.UserStatusActive {
		return nil, &Error{Kind: ErrAuthenticity, Message: "user is inactive"}
	}
	return user, nil
}
