package route

import (
	"errors"
	"fmt"
)

// ErrUnregisteredRoute is returned when a flight route is not in the catalog
// and the operator declined to register it.
var ErrUnregisteredRoute = errors.New("unregistered flight route")

// UnregisteredRouteError names the route that could not be resolved.
type UnregisteredRouteError struct {
	RouteID string
}

func (e *UnregisteredRouteError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUnregisteredRoute.Error(), e.RouteID)
}

func (e *UnregisteredRouteError) Is(target error) bool {
	return target == ErrUnregisteredRoute
}
