package audit

import (
	"context"

	"github.com/nerrad567/gray-logic-registry/internal/events"
)

// Subscriber returns an event handler that records each registration.
// The device id is the entity and the owner is the user.
func Subscriber(repo Repository) events.Handler {
	return func(ctx context.Context, ev events.DeviceRegistered) error {
		return repo.Create(ctx, &Entry{
			Action:     ActionRegister,
			EntityType: EntityTypeDevice,
			EntityID:   ev.ID.String(),
			UserID:     string(ev.Owner),
			Source:     SourceRegistry,
			CreatedAt:  ev.RegisteredAt,
		})
	}
}
