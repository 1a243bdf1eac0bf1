package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"ccsa/internal/authz"
	"ccsa/internal/clock"
	"ccsa/internal/kernel"
	"ccsa/internal/model"
	"ccsa/internal/repo"
	"ccsa/internal/validate"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRegistrationClosed = errors.New("registration closed")
	ErrUserNotFound       = errors.New("user not found")
	ErrForbidden          = errors.New("forbidden")
	// ErrProtectedUser — нельзя менять чужую учётную запись суперпользователя.
	ErrProtectedUser = errors.New("cannot modify another superuser")
	ErrSelfDelete    = errors.New("cannot delete own account")
	ErrCapability    = errors.New("invalid capability")
)

// PasswordError — пароль отклонён политикой; Problems — тексты для пользователя.
type PasswordError struct {
	Problems []string
}

func (e *PasswordError) Error() string {
	return strings.Join(e.Problems, " ")
}

// UserService — учётные записи back-office: регистрация, вход, права.
type UserService struct {
	repo  repo.UserRepository
	clock clock.Clock
}

func NewUserService(r repo.UserRepository, clk clock.Clock) *UserService {
	if clk == nil {
		clk = clock.System{}
	}
	return &UserService{repo: r, clock: clk}
}

// Register создаёт первого пользователя сайта; он становится
// суперпользователем. Когда пользователи уже есть, регистрация закрыта.
func (s *UserService) Register(ctx context.Context, email, username, password string) (*model.User, error) {
	n, err := s.repo.CountUsers(ctx)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, ErrRegistrationClosed
	}
	return s.create(ctx, email, username, password, true, true)
}

// CreateUser — создание учётной записи суперпользователем.
func (s *UserService) CreateUser(ctx context.Context, actor authz.Principal, email, username, password string, staff bool) (*model.User, error) {
	if !actor.Authenticated || !actor.Superuser {
		return nil, ErrForbidden
	}
	return s.create(ctx, email, username, password, staff, false)
}

// CreateSuperuser — для CLI; проверка прав не нужна.
func (s *UserService) CreateSuperuser(ctx context.Context, email, username, password string) (*model.User, error) {
	return s.create(ctx, email, username, password, true, true)
}

func (s *UserService) create(ctx context.Context, email, username, password string, staff, superuser bool) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	username = strings.TrimSpace(username)
	if err := validate.Email(email); err != nil {
		return nil, &kernel.ValidationError{Fields: map[string]string{"email": err.Error()}}
	}
	if username == "" {
		username = strings.SplitN(email, "@", 2)[0]
	}
	if err := checkPassword(password, email, username); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil && !repo.IsNotFound(err) {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &model.User{
		Email:       email,
		Username:    username,
		Password:    string(hash),
		IsStaff:     staff,
		IsSuperuser: superuser,
		IsActive:    true,
	}
	return s.repo.CreateUser(ctx, u)
}

func checkPassword(password string, attrs ...string) error {
	problems := validate.Password(password, attrs...)
	if len(problems) == 0 {
		return nil
	}
	pe := &PasswordError{}
	for _, p := range problems {
		pe.Problems = append(pe.Problems, p.Error())
	}
	return pe
}

// Login проверяет e-mail и пароль. Неактивные учётные записи не входят.
func (s *UserService) Login(ctx context.Context, email, password string) (*model.User, error) {
	u, err := s.repo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if u == nil || !u.IsActive {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	now := s.clock.Now().UTC()
	u.LastLogin = &now
	if err := s.repo.SaveUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Principal строит принципала по id из сессии.
func (s *UserService) Principal(ctx context.Context, id int64) (authz.Principal, error) {
	u, err := s.get(ctx, id)
	if err != nil {
		return authz.Anonymous, err
	}
	if !u.IsActive {
		return authz.Anonymous, ErrInvalidCredentials
	}
	return PrincipalOf(u), nil
}

// PrincipalOf переводит учётную запись в принципала.
func PrincipalOf(u *model.User) authz.Principal {
	return authz.Principal{
		UserID:        u.ID,
		Email:         u.Email,
		Authenticated: true,
		Staff:         u.IsStaff,
		Superuser:     u.IsSuperuser,
		Capabilities:  append([]string(nil), u.Capabilities...),
	}
}

func (s *UserService) get(ctx context.Context, id int64) (*model.User, error) {
	u, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

// ListUsers: суперпользователи, затем staff, затем по имени.
func (s *UserService) ListUsers(ctx context.Context, actor authz.Principal) ([]model.User, error) {
	if !actor.Authenticated || !actor.Superuser {
		return nil, ErrForbidden
	}
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(users, func(i, j int) bool {
		a, b := users[i], users[j]
		if a.IsSuperuser != b.IsSuperuser {
			return a.IsSuperuser
		}
		if a.IsStaff != b.IsStaff {
			return a.IsStaff
		}
		return a.Username < b.Username
	})
	return users, nil
}

// target загружает учётную запись, которую actor собирается менять.
func (s *UserService) target(ctx context.Context, actor authz.Principal, id int64) (*model.User, error) {
	if !actor.Authenticated || !actor.Superuser {
		return nil, ErrForbidden
	}
	u, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.IsSuperuser && u.ID != actor.UserID {
		return nil, ErrProtectedUser
	}
	return u, nil
}

// SetActive включает или отключает учётную запись.
func (s *UserService) SetActive(ctx context.Context, actor authz.Principal, id int64, active bool) (*model.User, error) {
	u, err := s.target(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	u.IsActive = active
	if err := s.repo.SaveUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// DeleteUser удаляет чужую учётную запись.
func (s *UserService) DeleteUser(ctx context.Context, actor authz.Principal, id int64) error {
	if actor.UserID == id {
		return ErrSelfDelete
	}
	u, err := s.target(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteUser(ctx, u.ID); err != nil {
		if repo.IsNotFound(err) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}

// Grant выдаёт права вида "<тип>.<действие>". Повторная выдача ничего не меняет.
func (s *UserService) Grant(ctx context.Context, email string, caps ...string) (*model.User, error) {
	u, err := s.byEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	have := map[string]bool{}
	for _, c := range u.Capabilities {
		have[c] = true
	}
	for _, c := range caps {
		if !authz.ValidCapability(c) {
			return nil, fmt.Errorf("%w: %s", ErrCapability, c)
		}
		if !have[c] {
			have[c] = true
			u.Capabilities = append(u.Capabilities, c)
		}
	}
	u.IsStaff = true
	if err := s.repo.SaveUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Revoke забирает права.
func (s *UserService) Revoke(ctx context.Context, email string, caps ...string) (*model.User, error) {
	u, err := s.byEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	drop := map[string]bool{}
	for _, c := range caps {
		drop[c] = true
	}
	kept := u.Capabilities[:0:0]
	for _, c := range u.Capabilities {
		if !drop[c] {
			kept = append(kept, c)
		}
	}
	u.Capabilities = kept
	if err := s.repo.SaveUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *UserService) byEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := s.repo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}
