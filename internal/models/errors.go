package models

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("requested resource not found")
var ErrForbidden = errors.New("user does not have permission to perform this action")
var ErrConflict = errors.New("resource conflict, item already exists")
var ErrInvalidCredentials = errors.New("invalid credentials") // email or password provided does not match database record
var ErrEmailTaken = errors.New("email already registered")

// ErrValidation indicates the request payload failed shape or range checks
// before reaching any business rule.
var ErrValidation = errors.New("invalid input")

// ErrPackageTooLarge indicates that the weight of the requested
// delivery exceeds what our couriers can handle.
var ErrPackageTooLarge = errors.New("package exceeds allowed weight")

// Lifecycle rule violations.
var ErrInvalidTransition = errors.New("status transition not allowed")
var ErrPreconditionFailed = errors.New("precondition for transition not met")
var ErrDestinationLocked = errors.New("destination can only be changed while order is pending")

// Payment precondition violations.
var ErrAlreadyPaid = errors.New("order already has a successful payment")
var ErrOrderCancelled = errors.New("order is cancelled and cannot be paid")
var ErrOrderDelivered = errors.New("order is delivered and cannot be paid")
var ErrPaymentRequired = errors.New("order has no successful payment")

// ErrUnknownPayment means a gateway callback referenced a checkout id we have
// no record of. The callback handler still acknowledges it so the gateway does
// not retry forever.
var ErrUnknownPayment = errors.New("no payment record for checkout id")

// External dependency failures, transient from the caller's point of view.
var ErrGatewayUnavailable = errors.New("payment gateway unreachable")
var ErrProviderUnavailable = errors.New("distance provider unreachable")

// ErrConcurrentModification is returned when a conditional write lost the
// race: the row's status changed between read and write. Callers should
// re-read and retry once.
var ErrConcurrentModification = errors.New("record was modified concurrently")

var ErrNoCourierAvailable = errors.New("no available courier within range")

// TransitionError reports an illegal order-status transition along with the
// set of statuses that would have been legal from the current one.
type TransitionError struct {
	Current   OrderStatus
	Requested OrderStatus
	Allowed   []OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot transition order from %s to %s (allowed: %v)", e.Current, e.Requested, e.Allowed)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
