package circulation

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultLoanDuration      = 21 * 24 * time.Hour
	DefaultReservationPeriod = 3 * 24 * time.Hour
)

var validate = validator.New()

// CollectionSettings configures circulation rules for one distributor collection.
// LoanLimit nil or 0 means unlimited loans. HoldLimit nil means unlimited holds, 0 disables holds.
type CollectionSettings struct {
	LibraryShortName  string        `validate:"required"`
	LoanLimit         *int          `validate:"omitempty,gte=0"`
	HoldLimit         *int          `validate:"omitempty,gte=0"`
	LoanDuration      time.Duration `validate:"gt=0"`
	ReservationPeriod time.Duration `validate:"gt=0"`
	PassphraseHint    string
	PassphraseHintURL string `validate:"omitempty,url"`
	NotificationURL   string `validate:"omitempty,url"`
}

// DefaultCollectionSettings returns settings with unlimited loans and holds and the default periods.
func DefaultCollectionSettings(libraryShortName string) CollectionSettings {
	return CollectionSettings{
		LibraryShortName:  libraryShortName,
		LoanDuration:      DefaultLoanDuration,
		ReservationPeriod: DefaultReservationPeriod,
	}
}

// Validate checks the settings with their struct tags.
func (s CollectionSettings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return errors.Join(ErrInvalidCollectionConfig, err)
	}

	return nil
}

// LoanLimitReached reports whether a patron holding loanCount loans may not borrow another title.
func (s CollectionSettings) LoanLimitReached(loanCount int) bool {
	return s.LoanLimit != nil && *s.LoanLimit > 0 && loanCount >= *s.LoanLimit
}

// HoldsPermitted is false when the hold limit is zero.
func (s CollectionSettings) HoldsPermitted() bool {
	return s.HoldLimit == nil || *s.HoldLimit > 0
}

// HoldLimitReached reports whether a patron holding holdCount holds may not place another.
func (s CollectionSettings) HoldLimitReached(holdCount int) bool {
	return s.HoldLimit != nil && holdCount >= *s.HoldLimit
}
