package sponsorship

import (
	"errors"
	"strings"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrMissingFields    = errors.New("missing required fields")
	ErrInvalidEmail     = errors.New("invalid email address")
	ErrFieldTooLong     = errors.New("field too long")
	ErrInvalidSelection = errors.New("invalid selection")
	ErrPartnerNotFound  = errors.New("no active partner manages this area")
	ErrPartnerAmbiguous = errors.New("more than one active partner manages this area")
	ErrProcessor        = errors.New("payment processor error")
	ErrInvalidCheckout  = errors.New("invalid checkout data")
	ErrDuplicateSession = errors.New("checkout session already fulfilled")
	ErrConflict         = errors.New("conflict")
	ErrInvalidPartner   = errors.New("invalid partner")
	ErrDelivery         = errors.New("certificate delivery failed")
)

// MissingFieldsError lists the absent checkout fields. It matches ErrMissingFields.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return ErrMissingFields.Error() + ": " + strings.Join(e.Fields, ", ")
}

func (e *MissingFieldsError) Is(target error) bool { return target == ErrMissingFields }

// PartnerUnavailable reports whether err means the area cannot be sponsored
// right now because its partner routing is not usable.
func PartnerUnavailable(err error) bool {
	return errors.Is(err, ErrPartnerNotFound) || errors.Is(err, ErrPartnerAmbiguous)
}
