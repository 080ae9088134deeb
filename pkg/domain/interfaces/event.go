package interfaces

import "github.com/secmon-lab/anemone/pkg/domain/model"

// EventPublisher receives lifecycle events. Publish must not block the caller.
type EventPublisher interface {
	Publish(ev model.Event)
}
