package admin

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicapi/clinic/internal/platform/apperr"
	"github.com/clinicapi/clinic/internal/platform/auth"
	"github.com/clinicapi/clinic/internal/platform/guard"
	"github.com/clinicapi/clinic/internal/platform/policy"
)

// errInvalidLogin is returned for every failed login so callers cannot
// tell which accounts exist.
var errInvalidLogin = apperr.New(apperr.CodeUnauthenticated, "invalid email or password")

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	IssueToken(id auth.Identity) (string, time.Time, error)
}

// Sessions configures login and self-registration.
type Sessions struct {
	Tokens   TokenIssuer
	Throttle auth.LoginThrottle
	// RegistrationRoles are the roles a new account may pick for itself.
	RegistrationRoles []policy.Role
}

type Service struct {
	users     UserRepository
	depts     DepartmentRepository
	policy    *policy.Engine
	integrity *guard.Integrity
	tokens    TokenIssuer
	throttle  auth.LoginThrottle
	openRoles map[policy.Role]bool
	logger    zerolog.Logger
}

func NewService(users UserRepository, depts DepartmentRepository, engine *policy.Engine, integrity *guard.Integrity, sessions Sessions, logger zerolog.Logger) *Service {
	open := make(map[policy.Role]bool, len(sessions.RegistrationRoles))
	for _, r := range sessions.RegistrationRoles {
		open[r] = true
	}
	return &Service{
		users:     users,
		depts:     depts,
		policy:    engine,
		integrity: integrity,
		tokens:    sessions.Tokens,
		throttle:  sessions.Throttle,
		openRoles: open,
		logger:    logger.With().Str("service", "admin").Logger(),
	}
}

// -- Sessions --

// Register creates an account with the requested role, provided that role
// is open for self-registration.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	role, ok := policy.ParseRole(req.Role)
	if !ok || !s.openRoles[role] {
		return nil, apperr.Invalid("role", "registration is not open for this role")
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	u := &User{
		FullName:     strings.TrimSpace(req.FullName),
		Username:     strings.TrimSpace(req.Username),
		Email:        normalizeEmail(req.Email),
		PasswordHash: hash,
		Roles:        []policy.Role{role},
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", u.ID.String()).Str("role", string(role)).Msg("user registered")
	return u, nil
}

// Login verifies credentials and issues a session token. Unknown accounts,
// wrong passwords and locked-out accounts all fail the same way.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	email := normalizeEmail(req.Email)

	allowed, err := s.throttle.Allowed(ctx, email)
	if err != nil {
		// Fail open when the throttle store is unreachable.
		s.logger.Warn().Err(err).Msg("login throttle unavailable")
		allowed = true
	}
	if !allowed {
		s.logger.Info().Msg("login refused: account locked out")
		return nil, errInvalidLogin
	}

	u, err := s.users.GetByEmail(ctx, email)
	if apperr.CodeOf(err) == apperr.CodeNotFound {
		s.loginFailed(ctx, email)
		return nil, errInvalidLogin
	}
	if err != nil {
		return nil, err
	}

	ok, err := auth.CheckPassword(u.PasswordHash, req.Password)
	if err != nil {
		return nil, err
	}
	if !ok || len(u.Roles) == 0 {
		s.loginFailed(ctx, email)
		return nil, errInvalidLogin
	}

	if err := s.throttle.Reset(ctx, email); err != nil {
		s.logger.Warn().Err(err).Msg("reset login throttle")
	}

	token, expires, err := s.tokens.IssueToken(auth.Identity{
		SubjectID: u.ID,
		Email:     u.Email,
		Username:  u.Username,
		Roles:     u.Roles,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", u.ID.String()).Msg("session issued")
	return &Session{Token: token, TokenType: "Bearer", ExpiresAt: expires, User: u}, nil
}

func (s *Service) loginFailed(ctx context.Context, email string) {
	if err := s.throttle.Failed(ctx, email); err != nil {
		s.logger.Warn().Err(err).Msg("record login failure")
	}
}

// -- Users --

func (s *Service) GetUser(ctx context.Context, caller policy.Caller, id uuid.UUID) (*User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, s.policy.Conceal(caller, policy.OpRead, policy.ResUser, err)
	}
	if err := s.policy.Check(ctx, caller, policy.OpRead, policy.ResUser, u.Ownership()); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) ListUsers(ctx context.Context, caller policy.Caller, limit, offset int) ([]*User, int, error) {
	scope, err := s.policy.Scope(ctx, caller, policy.ResUser)
	if err != nil {
		return nil, 0, err
	}
	if !scope.Allowed {
		return nil, 0, scope.Err()
	}
	return s.users.List(ctx, scope, limit, offset)
}

// UpdateUser applies the fields present in req. Only an Admin may change
// roles.
func (s *Service) UpdateUser(ctx context.Context, caller policy.Caller, id uuid.UUID, req UpdateUserRequest) (*User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, s.policy.Conceal(caller, policy.OpUpdate, policy.ResUser, err)
	}
	if err := s.policy.Check(ctx, caller, policy.OpUpdate, policy.ResUser, u.Ownership()); err != nil {
		return nil, err
	}

	if req.Roles != nil {
		if !caller.Has(policy.RoleAdmin) {
			return nil, apperr.Forbidden("only an administrator may change roles")
		}
		u.Roles = parseRoles(req.Roles)
	}
	if req.FullName != nil {
		u.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.Username != nil {
		u.Username = strings.TrimSpace(*req.Username)
	}
	if req.Email != nil {
		u.Email = normalizeEmail(*req.Email)
	}
	if req.Password != nil {
		hash, err := auth.HashPassword(*req.Password)
		if err != nil {
			return nil, err
		}
		u.PasswordHash = hash
	}

	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// DeleteUser removes an account. Accounts still bound to a doctor or
// patient profile cannot be deleted.
func (s *Service) DeleteUser(ctx context.Context, caller policy.Caller, id uuid.UUID) error {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return s.policy.Conceal(caller, policy.OpDelete, policy.ResUser, err)
	}
	if err := s.policy.Check(ctx, caller, policy.OpDelete, policy.ResUser, u.Ownership()); err != nil {
		return err
	}

	outcome, err := s.integrity.Delete(ctx, guard.KindUser, id, func(ctx context.Context) error {
		return s.users.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	return outcome.Err()
}

// -- Departments --

func (s *Service) CreateDepartment(ctx context.Context, caller policy.Caller, req DepartmentRequest) (*Department, error) {
	if err := s.policy.Check(ctx, caller, policy.OpCreate, policy.ResDepartment, policy.Ownership{}); err != nil {
		return nil, err
	}
	d := &Department{Name: strings.TrimSpace(req.Name)}
	if err := s.depts.Create(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) GetDepartment(ctx context.Context, caller policy.Caller, id uuid.UUID) (*Department, error) {
	d, err := s.depts.GetByID(ctx, id)
	if err != nil {
		return nil, s.policy.Conceal(caller, policy.OpRead, policy.ResDepartment, err)
	}
	if err := s.policy.Check(ctx, caller, policy.OpRead, policy.ResDepartment, policy.Ownership{}); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) ListDepartments(ctx context.Context, caller policy.Caller, limit, offset int) ([]*Department, int, error) {
	scope, err := s.policy.Scope(ctx, caller, policy.ResDepartment)
	if err != nil {
		return nil, 0, err
	}
	if !scope.Allowed {
		return nil, 0, scope.Err()
	}
	return s.depts.List(ctx, scope, limit, offset)
}

func (s *Service) UpdateDepartment(ctx context.Context, caller policy.Caller, id uuid.UUID, req DepartmentRequest) (*Department, error) {
	d, err := s.depts.GetByID(ctx, id)
	if err != nil {
		return nil, s.policy.Conceal(caller, policy.OpUpdate, policy.ResDepartment, err)
	}
	if err := s.policy.Check(ctx, caller, policy.OpUpdate, policy.ResDepartment, policy.Ownership{}); err != nil {
		return nil, err
	}
	d.Name = strings.TrimSpace(req.Name)
	if err := s.depts.Update(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// DeleteDepartment removes a department that no doctor belongs to.
func (s *Service) DeleteDepartment(ctx context.Context, caller policy.Caller, id uuid.UUID) error {
	if err := s.policy.Check(ctx, caller, policy.OpDelete, policy.ResDepartment, policy.Ownership{}); err != nil {
		return err
	}
	outcome, err := s.integrity.Delete(ctx, guard.KindDepartment, id, func(ctx context.Context) error {
		return s.depts.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	return outcome.Err()
}
