package user

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/admissions/core"
)

// Roles
const (
	// Admin
	RoleAdmin      = "admin:"
	RoleAdminOwner = "admin:owner"

	// Staff
	RoleStaff          = "staff:"
	RoleStaffRegistrar = "staff:registrar"

	// Learner
	RoleLearner = "learner:"
)

var (
	AdminRoles   = []string{RoleAdmin, RoleAdminOwner}
	StaffRoles   = []string{RoleStaff, RoleStaffRegistrar}
	LearnerRoles = []string{RoleLearner}
	AllRoles     = getAllRoles()
)

func getAllRoles() []string {
	all := make([]string, 0, len(AdminRoles)+len(StaffRoles)+len(LearnerRoles))
	all = append(all, AdminRoles...)
	all = append(all, StaffRoles...)
	all = append(all, LearnerRoles...)
	return all
}

// User is a login account. Learner accounts are provisioned by the enrollment workflow.
type User struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Username           string    `json:"username"`
	Email              string    `json:"email"`
	IsActive           bool      `json:"is_active"`
	MustChangePassword bool      `json:"must_change_password"`
	Roles              []string  `json:"roles"`
	PasswordHash       []byte    `json:"-"`
	CreatedAt          time.Time `json:"created_at"` // UTC
	UpdatedAt          time.Time `json:"updated_at"` // UTC
	LastLogin          time.Time `json:"last_login"` // UTC
}

// SetPassword stores a bcrypt hash of pwd, the plaintext is never kept.
// cost is clamped to bcrypt's bounds; bcrypt.DefaultCost is used when omitted or zero.
func (u *User) SetPassword(pwd string, cost ...int) error {
	c := bcrypt.DefaultCost
	if len(cost) > 0 && cost[0] != 0 {
		c = cost[0]
	}
	if c < bcrypt.MinCost {
		c = bcrypt.MinCost
	} else if c > bcrypt.MaxCost {
		c = bcrypt.MaxCost
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), c)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) RoleStartsWith(prefix string) bool {
	for _, role := range u.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (u *User) IsAdmin() bool   { return u.RoleStartsWith(RoleAdmin) }
func (u *User) IsStaff() bool   { return u.RoleStartsWith(RoleStaff) }
func (u *User) IsLearner() bool { return u.RoleStartsWith(RoleLearner) }

// NewUser contains information needed to create a new staff or admin User.
type NewUser struct {
	Name            string   `json:"name" validate:"required,notblank"`
	Username        string   `json:"username" validate:"required,min=3,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"password_confirm" validate:"required,eqfield=Password"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
}

type uniquenessChecker interface {
	CheckUniqueness(ctx context.Context, username, email string) error
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc uniquenessChecker) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Username, nu.Email)
}

// ChangePassword contains the password change form of a logged in User.
type ChangePassword struct {
	OldPassword        string `json:"old_password" validate:"required"`
	NewPassword        string `json:"new_password" validate:"required"`
	NewPasswordConfirm string `json:"new_password_confirm" validate:"required,eqfield=NewPassword"`
}

func (cp *ChangePassword) Validate(validate *validator.Validate, usr User) error {
	if err := validate.Struct(cp); err != nil {
		return err
	}
	if usr.CheckPassword(cp.OldPassword) != nil {
		return core.NewFieldValidationError("old_password", ErrWrongPassword)
	}
	if err := CheckPasswordPolicy(cp.NewPassword, usr.Name, usr.Username, usr.Email); err != nil {
		return core.NewFieldValidationError("new_password", err)
	}
	return nil
}

// ResetUserPassword confirms a password reset requested by email.
type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp *ResetUserPassword) Validate(validate *validator.Validate) error {
	rp.Token = core.CleanString(rp.Token)
	rp.UID = core.CleanString(rp.UID)
	return validate.Struct(rp)
}

// GetFilter selects a single User; the first non-empty field wins.
type GetFilter struct {
	ID              string
	Username        string
	Email           string
	UsernameOrEmail string
}
