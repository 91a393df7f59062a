package order

import (
	"errors"
	"testing"

	"parcel-dispatch/internal/models"
)

func strPtr(s string) *string { return &s }

func TestTransitionLegalEdges(t *testing.T) {
	cases := []struct {
		from, to models.OrderStatus
		actor    models.Role
	}{
		{models.StatusPending, models.StatusAssigned, models.RoleAdmin},
		{models.StatusPending, models.StatusCancelled, models.RoleCustomer},
		{models.StatusPending, models.StatusCancelled, models.RoleAdmin},
		{models.StatusAssigned, models.StatusPickedUp, models.RoleCourier},
		{models.StatusAssigned, models.StatusCancelled, models.RoleCustomer},
		{models.StatusPickedUp, models.StatusInTransit, models.RoleCourier},
		{models.StatusPickedUp, models.StatusCancelled, models.RoleAdmin},
		{models.StatusInTransit, models.StatusDelivered, models.RoleCourier},
	}
	for _, c := range cases {
		o := &models.Order{Status: c.from, CourierID: strPtr("courier-1")}
		if err := Transition(o, c.to, c.actor); err != nil {
			t.Errorf("%s -> %s as %s: unexpected error %v", c.from, c.to, c.actor, err)
		}
		if o.Status != c.to {
			t.Errorf("%s -> %s: status not applied, got %s", c.from, c.to, o.Status)
		}
	}
}

func TestTransitionRejectsIllegalEdges(t *testing.T) {
	statuses := []models.OrderStatus{
		models.StatusPending, models.StatusAssigned, models.StatusPickedUp,
		models.StatusInTransit, models.StatusDelivered, models.StatusCancelled,
	}
	// Every (from, to) pair outside the edge table must fail with
	// ErrInvalidTransition and leave the order untouched.
	for _, from := range statuses {
		for _, to := range statuses {
			if CanTransition(from, to) || from == to {
				continue
			}
			o := &models.Order{Status: from, CourierID: strPtr("courier-1")}
			err := Transition(o, to, models.RoleAdmin)
			if !errors.Is(err, models.ErrInvalidTransition) {
				t.Errorf("%s -> %s: got %v, want ErrInvalidTransition", from, to, err)
			}
			if o.Status != from {
				t.Errorf("%s -> %s: order mutated on failure", from, to)
			}
		}
	}
}

func TestTransitionTerminalStates(t *testing.T) {
	// DELIVERED and CANCELLED have no outgoing edges at all.
	for _, from := range []models.OrderStatus{models.StatusDelivered, models.StatusCancelled} {
		if next := AllowedNext(from); len(next) != 0 {
			t.Errorf("%s should be terminal, allows %v", from, next)
		}
	}
	o := &models.Order{Status: models.StatusDelivered}
	err := Transition(o, models.StatusCancelled, models.RoleAdmin)
	var te *models.TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("delivered -> cancelled: got %v, want TransitionError", err)
	}
	if te.Current != models.StatusDelivered || te.Requested != models.StatusCancelled {
		t.Errorf("TransitionError fields = %+v", te)
	}
}

func TestTransitionForbiddenActor(t *testing.T) {
	cases := []struct {
		from, to models.OrderStatus
		actor    models.Role
	}{
		{models.StatusPending, models.StatusAssigned, models.RoleCustomer},
		{models.StatusPending, models.StatusAssigned, models.RoleCourier},
		{models.StatusAssigned, models.StatusPickedUp, models.RoleCustomer},
		{models.StatusAssigned, models.StatusPickedUp, models.RoleAdmin},
		{models.StatusInTransit, models.StatusDelivered, models.RoleCustomer},
		{models.StatusPickedUp, models.StatusCancelled, models.RoleCourier},
	}
	for _, c := range cases {
		o := &models.Order{Status: c.from, CourierID: strPtr("courier-1")}
		if err := Transition(o, c.to, c.actor); !errors.Is(err, models.ErrForbidden) {
			t.Errorf("%s -> %s as %s: got %v, want ErrForbidden", c.from, c.to, c.actor, err)
		}
		if o.Status != c.from {
			t.Errorf("%s -> %s: order mutated on forbidden actor", c.from, c.to)
		}
	}
}

func TestTransitionAssignedRequiresCourier(t *testing.T) {
	o := &models.Order{Status: models.StatusPending}
	if err := Transition(o, models.StatusAssigned, models.RoleAdmin); !errors.Is(err, models.ErrPreconditionFailed) {
		t.Fatalf("assign without courier: got %v, want ErrPreconditionFailed", err)
	}
	if o.Status != models.StatusPending {
		t.Error("order mutated on failed precondition")
	}
}
