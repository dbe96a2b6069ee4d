package interfaces

import (
	"context"

	"quietlink/pkg/types"
)

// Emitter publishes outbound deliveries to whichever instance holds the target
type Emitter interface {
	Publish(ctx context.Context, delivery *types.Delivery) error
}
