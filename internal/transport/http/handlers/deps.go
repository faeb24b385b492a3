package http_handlers

import (
	"context"

	"github.com/baechuer/medimg-identity/internal/application/reconcile"
	"github.com/baechuer/medimg-identity/internal/application/webhook"
	"github.com/baechuer/medimg-identity/internal/domain"
)

// Reconciler is the slice of reconcile.Service the public auth routes use.
type Reconciler interface {
	Sync(ctx context.Context, in reconcile.SyncInput) (reconcile.SyncResult, error)
	CompleteSignIn(ctx context.Context, in reconcile.SignInInput) (reconcile.Outcome, error)
	VerifySecondFactor(ctx context.Context, token, code string) (reconcile.Outcome, error)
}

// UserAdmin backs the admin and internal routes.
type UserAdmin interface {
	ListUsers(ctx context.Context, limit, offset int) ([]domain.User, error)
	SetRole(ctx context.Context, in reconcile.SetRoleInput) (domain.User, error)
	Lookup(ctx context.Context, subjectID string) (domain.User, error)
}

type EventHandler interface {
	Handle(ctx context.Context, ev webhook.Event) (webhook.Result, error)
}

var (
	_ Reconciler   = (*reconcile.Service)(nil)
	_ UserAdmin    = (*reconcile.Service)(nil)
	_ EventHandler = (*webhook.Processor)(nil)
)
