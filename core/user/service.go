package user

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/admissions/core"
)

var (
	// errors
	ErrNotFound       = errors.New("user not found")
	ErrEmailExists    = errors.New("a user with this email already exists")
	ErrUsernameExists = errors.New("a user with this username already exists")
	ErrWrongPassword  = errors.New("incorrect password")
	errInvalidValue   = errors.New("invalid value")

	nowFunc = time.Now // mockable
)

type (
	// Repository persists accounts. Every method runs on exec[0] when given (eg: a transaction).
	Repository interface {
		// CheckUniqueness returns ErrUsernameExists or ErrEmailExists if either is already taken.
		CheckUniqueness(ctx context.Context, username, email string, exec ...core.DBExecutor) error
		// CreateUser assigns a new ID; unique violations are reported as ErrUsernameExists or ErrEmailExists.
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		GetUser(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (User, error)
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
	}

	Service struct {
		repo    Repository
		mailSvc core.EmailService
		conf    *core.Config
	}
)

const passwordResetTemplate = "password_reset"

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) *Service {
	return &Service{repo: repo, mailSvc: mailSvc, conf: conf}
}

func (svc *Service) CheckUniqueness(ctx context.Context, uname, email string) error {
	if err := svc.repo.CheckUniqueness(ctx, uname, email); err != nil {
		var field string
		switch err {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return errors.Wrap(err, "checking user uniqueness")
		}
		return core.NewFieldValidationError(field, err)
	}
	return nil
}

// Create adds a staff or admin account from validated input.
func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := nowFunc().UTC()
	usr := User{
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		IsActive:  true,
		Roles:     nu.Roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: core.CleanString(uname, true /* lower */)})
}

func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = nowFunc().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

// ResetPassword replaces the password of the user matching uname (username or email).
func (svc *Service) ResetPassword(ctx context.Context, uname, pwd string) (User, error) {
	usr, err := svc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return User{}, err
	}
	return svc.SetPassword(ctx, usr, pwd)
}

// SetPassword stores a new password for usr and lifts the must-change flag set at provisioning.
func (svc *Service) SetPassword(ctx context.Context, usr User, pwd string) (User, error) {
	if err := usr.SetPassword(pwd); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	usr.MustChangePassword = false
	usr.UpdatedAt = nowFunc().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

type passwordResetData struct {
	Name     string
	Username string
	ResetURL string
}

// RequestPasswordReset emails a reset link to the active user owning email.
// It is also the way back in for a learner whose credentials email never arrived.
func (svc *Service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return ErrNotFound
	}

	token, err := MakeToken(svc.conf, usr)
	if err != nil {
		return errors.Wrap(err, "making password reset token")
	}
	err = svc.mailSvc.SendMessage(ctx, &core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      fmt.Sprintf("Reset your %s password", svc.conf.AppName),
		TemplateName: passwordResetTemplate,
		TemplateData: passwordResetData{
			Name:     usr.Name,
			Username: usr.Username,
			ResetURL: svc.conf.PasswordResetURL(EncodeUID(usr), token),
		},
	})
	return errors.Wrap(err, "sending password reset email")
}

// ConfirmPasswordReset sets the new password once the uid and token of a reset link check out.
// Field errors are reported as *core.ValidationError.
func (svc *Service) ConfirmPasswordReset(ctx context.Context, data ResetUserPassword) (User, error) {
	id, err := decodeUID(data.UID)
	if err != nil {
		return User{}, core.NewFieldValidationError("uid", errInvalidValue)
	}
	if _, err = uuid.Parse(id); err != nil {
		return User{}, core.NewFieldValidationError("uid", errInvalidValue)
	}
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: id})
	if err != nil {
		if err == ErrNotFound {
			return User{}, core.NewFieldValidationError("uid", errInvalidValue)
		}
		return User{}, errors.Wrap(err, "getting user")
	}
	if !usr.IsActive {
		return User{}, core.NewFieldValidationError("uid", errInvalidValue)
	}

	if err = verifyToken(svc.conf, usr, data.Token); err != nil {
		if err == errInvalidToken || err == errTokenExpired {
			return User{}, core.NewFieldValidationError("token", errInvalidValue)
		}
		return User{}, errors.Wrap(err, "verifying token")
	}
	if err = CheckPasswordPolicy(data.Password, usr.Name, usr.Username, usr.Email); err != nil {
		return User{}, core.NewFieldValidationError("password", err)
	}
	return svc.SetPassword(ctx, usr, data.Password)
}
