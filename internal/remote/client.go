// Package remote defines the session client the scanner drives and an
// HTTP/JSON adapter for it.
package remote

import (
	"context"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/geoscan/model"
)

// Client is a session with the remote game service. A Client is used from a
// single goroutine; implementations need not serialise calls beyond that.
type Client interface {
	// Login authenticates with the given provider. It returns false when
	// the service rejected the credentials.
	Login(ctx context.Context, authService, username, password string) (bool, error)

	// SetPosition moves the session's reported player position.
	SetPosition(lat, lng, alt float64)

	// GetMapObjects issues one map-objects request and waits for the response.
	GetMapObjects(ctx context.Context, req model.MapRequest) (*structpb.Struct, error)

	// TicketExpiry reports when the current auth ticket expires. The second
	// result is false when no ticket is held.
	TicketExpiry() (time.Time, bool)
}
