package port

import (
	"context"

	"github.com/arklim/auction-registry/internal/core/domain"
)

// NotificationDispatcher delivers change request notifications.
type NotificationDispatcher interface {
	DispatchChangeRequest(ctx context.Context, event domain.ChangeRequestEvent) error
}

// SecurityEventPublisher publishes account security events.
type SecurityEventPublisher interface {
	PublishAccountLocked(ctx context.Context, event domain.AccountLockedEvent) error
	PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error
}
