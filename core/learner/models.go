package learner

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/admissions/core"
)

// Status is the enrollment status of a Learner.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed from s.
func (s Status) IsTerminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// Address is the contact record of a Learner.
type Address struct {
	Email   string `json:"email" db:"email"`
	Phone   string `json:"phone" db:"phone"`
	Line1   string `json:"line1" db:"line1"`
	Line2   string `json:"line2" db:"line2"`
	City    string `json:"city" db:"city"`
	Country string `json:"country" db:"country"`
}

// Learner is a person who submitted an enrollment record.
// LinkedAccountID is empty until an account is provisioned for them.
type Learner struct {
	ID              string    `json:"id"`
	FirstName       string    `json:"first_name"`
	LastName        string    `json:"last_name"`
	Program         string    `json:"program"`
	Address         *Address  `json:"address"`
	Status          Status    `json:"enrollment_status"`
	LinkedAccountID string    `json:"linked_account_id,omitempty"`
	DecidedAt       time.Time `json:"decided_at,omitempty"` // UTC
	CreatedAt       time.Time `json:"created_at"`           // UTC
	UpdatedAt       time.Time `json:"updated_at"`           // UTC
}

func (l Learner) FullName() string {
	return core.CleanString(l.FirstName + " " + l.LastName)
}

// ContactEmail returns the cleaned email of the learner's address, "" when there is none.
func (l Learner) ContactEmail() string {
	if l.Address == nil {
		return ""
	}
	return core.CleanString(l.Address.Email, true /* lower */)
}

func (l Learner) IsLinked() bool { return l.LinkedAccountID != "" }

// NewLearner contains the self-registration form.
type NewLearner struct {
	FirstName string `json:"first_name" validate:"required,notblank,max=255"`
	LastName  string `json:"last_name" validate:"required,notblank,max=255"`
	Program   string `json:"program" validate:"required,notblank,max=255"`
	Email     string `json:"email" validate:"required,email,max=255"`
	Phone     string `json:"phone" validate:"omitempty,phone"`
	Line1     string `json:"line1" validate:"max=255"`
	Line2     string `json:"line2" validate:"max=255"`
	City      string `json:"city" validate:"max=128"`
	Country   string `json:"country" validate:"max=128"`
}

func (nl *NewLearner) Validate(validate *validator.Validate) error {
	nl.FirstName = core.CleanString(nl.FirstName)
	nl.LastName = core.CleanString(nl.LastName)
	nl.Program = core.CleanString(nl.Program)
	nl.Email = core.CleanString(nl.Email, true /* lower */)
	nl.Phone = core.CleanString(nl.Phone)
	nl.Line1 = core.CleanString(nl.Line1)
	nl.Line2 = core.CleanString(nl.Line2)
	nl.City = core.CleanString(nl.City)
	nl.Country = core.CleanString(nl.Country)

	return validate.Struct(nl)
}
