package order

import "parcel-dispatch/internal/models"

// edge is one directed transition in the order lifecycle.
type edge struct {
	from, to models.OrderStatus
}

// transitionRoles is the single source of truth for legal status changes and
// who may request them. Anything not in this table is an invalid transition;
// admin overrides bypass it through a separate, audited path.
var transitionRoles = map[edge][]models.Role{
	{models.StatusPending, models.StatusAssigned}:    {models.RoleAdmin},
	{models.StatusPending, models.StatusCancelled}:   {models.RoleCustomer, models.RoleAdmin},
	{models.StatusAssigned, models.StatusPickedUp}:   {models.RoleCourier},
	{models.StatusAssigned, models.StatusCancelled}:  {models.RoleCustomer, models.RoleAdmin},
	{models.StatusPickedUp, models.StatusInTransit}:  {models.RoleCourier},
	{models.StatusPickedUp, models.StatusCancelled}:  {models.RoleCustomer, models.RoleAdmin},
	{models.StatusInTransit, models.StatusDelivered}: {models.RoleCourier},
}

// AllowedNext returns the statuses reachable from the given one, in lifecycle
// order so error messages are stable.
func AllowedNext(from models.OrderStatus) []models.OrderStatus {
	var out []models.OrderStatus
	for _, to := range []models.OrderStatus{
		models.StatusAssigned,
		models.StatusPickedUp,
		models.StatusInTransit,
		models.StatusDelivered,
		models.StatusCancelled,
	} {
		if _, ok := transitionRoles[edge{from, to}]; ok {
			out = append(out, to)
		}
	}
	return out
}

// CanTransition reports whether the edge from -> to exists, ignoring roles.
func CanTransition(from, to models.OrderStatus) bool {
	_, ok := transitionRoles[edge{from, to}]
	return ok
}

// Transition validates the requested status change against the edge table and
// the actor's role, then applies it to the order in memory. The order is left
// untouched on any failure; persisting the change (under the compare-and-swap
// guard) is the caller's job.
func Transition(o *models.Order, to models.OrderStatus, actor models.Role) error {
	roles, ok := transitionRoles[edge{o.Status, to}]
	if !ok {
		return &models.TransitionError{
			Current:   o.Status,
			Requested: to,
			Allowed:   AllowedNext(o.Status),
		}
	}
	if !roleAllowed(actor, roles) {
		return models.ErrForbidden
	}
	// Assignment is a status change only; the courier must already be set by
	// the orchestrator before the order may become ASSIGNED.
	if to == models.StatusAssigned && o.CourierID == nil {
		return models.ErrPreconditionFailed
	}
	o.Status = to
	return nil
}

func roleAllowed(actor models.Role, roles []models.Role) bool {
	for _, r := range roles {
		if r == actor {
			return true
		}
	}
	return false
}
