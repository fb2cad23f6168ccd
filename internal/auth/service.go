// Package auth manages storefront accounts: signup, password login, signed access
// tokens carried in a cookie, and the middleware that gates cart and checkout routes.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/go-playground/validator/v10"
	"github.com/lestrrat-go/jwx/v2/jwa"

	"github.com/noah-isme/storefront/internal/common"
)

const (
	defaultAccessTTL = 14 * 24 * time.Hour
	defaultIssuer    = "storefront"
	defaultAudience  = "storefront-web"
)

// ErrUnauthenticated marks a request without a valid identity.
var ErrUnauthenticated = errors.New("auth: unauthenticated")

var (
	errInvalidCredentials = common.NewAppError("INVALID_CREDENTIALS", "invalid username or password", http.StatusUnauthorized, nil)
	usernamePattern       = regexp.MustCompile(`^[\w.@+-]+$`)
)

// Config configures the auth service.
type Config struct {
	Store          Store
	Secret         string
	AccessTokenTTL time.Duration
	Issuer         string
	Audience       string
	ClockSkew      time.Duration
	HashParams     *argon2id.Params
}

// Service coordinates registration, login and token verification.
type Service struct {
	store     Store
	secret    []byte
	accessTTL time.Duration
	validator TokenValidator
	params    *argon2id.Params
	validate  *validator.Validate
	now       func() time.Time
}

// SignupInput is the signup form.
type SignupInput struct {
	Username        string `json:"username" validate:"required,max=150,username"`
	Email           string `json:"email" validate:"omitempty,email,max=254"`
	Password        string `json:"password" validate:"required,min=8,max=128"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

// LoginInput is the login form.
type LoginInput struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResult carries the issued access token.
type LoginResult struct {
	User        User      `json:"user"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// NewService constructs a Service with defaults for unset options.
func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("auth: store is required")
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	ttl := cfg.AccessTokenTTL
	if ttl <= 0 {
		ttl = defaultAccessTTL
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = defaultIssuer
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = defaultAudience
	}
	skew := cfg.ClockSkew
	if skew < 0 {
		skew = 0
	}
	params := cfg.HashParams
	if params == nil {
		params = argon2id.DefaultParams
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	}); err != nil {
		return nil, fmt.Errorf("auth: register validation: %w", err)
	}
	return &Service{
		store:     cfg.Store,
		secret:    []byte(secret),
		accessTTL: ttl,
		validator: TokenValidator{Issuer: issuer, Audience: audience, ClockSkew: skew, Algorithm: jwa.HS256},
		params:    params,
		validate:  v,
		now:       time.Now,
	}, nil
}

// WithNow allows tests to override the time provider.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Register validates the signup form and creates the account.
func (s *Service) Register(ctx context.Context, in SignupInput) (User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := s.validate.Struct(in); err != nil {
		return User{}, validationError(err)
	}
	hash, err := argon2id.CreateHash(in.Password, s.params)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	u, err := s.store.CreateUser(ctx, in.Username, in.Email, hash)
	if err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return User{}, common.NewAppError("USERNAME_TAKEN", "a user with that username already exists", http.StatusConflict, err)
		}
		return User{}, err
	}
	return u, nil
}

// Login verifies credentials and issues an access token.
func (s *Service) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	if err := s.validate.Struct(in); err != nil {
		return LoginResult{}, errInvalidCredentials
	}
	u, hash, err := s.store.UserByUsername(ctx, in.Username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return LoginResult{}, errInvalidCredentials
		}
		return LoginResult{}, err
	}
	ok, err := argon2id.ComparePasswordAndHash(in.Password, hash)
	if err != nil || !ok {
		return LoginResult{}, errInvalidCredentials
	}
	return s.Issue(u)
}

// Issue signs an access token for an already authenticated user.
func (s *Service) Issue(u User) (LoginResult, error) {
	token, exp, err := s.signAccessToken(u)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{User: u, AccessToken: token, ExpiresAt: exp}, nil
}

// Me returns the account for id.
func (s *Service) Me(ctx context.Context, id int64) (User, error) {
	return s.store.UserByID(ctx, id)
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return common.NewAppError("VALIDATION_ERROR", "invalid input", http.StatusBadRequest, err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fieldMessage(fe)
	}
	return common.NewAppError("VALIDATION_ERROR", "invalid input", http.StatusBadRequest, err).WithDetails(fields)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "eqfield":
		return "the two password fields didn't match"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "email":
		return "enter a valid email address"
	case "username":
		return "letters, digits and @/./+/-/_ only"
	default:
		return "invalid value"
	}
}
