package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/salon-pos/internal/common"
	"github.com/noah-isme/salon-pos/internal/directory"
)

const (
	defaultAccessTTL = 12 * time.Hour

	claimName             = "name"
	claimCanReassignStaff = "can_reassign_staff"
)

// Credentials verifies a staff login.
type Credentials interface {
	Authenticate(ctx context.Context, staffID, password string) (directory.StaffMember, error)
}

// Service issues and verifies operator access tokens.
type Service struct {
	staff     Credentials
	secret    []byte
	accessTTL time.Duration
	now       func() time.Time
	signer    jwa.SignatureAlgorithm
	validator TokenValidator
	issuer    string
	audience  string
	clockSkew time.Duration
}

// Config configures the auth service.
type Config struct {
	Staff          Credentials
	Secret         string
	AccessTokenTTL time.Duration
	Issuer         string
	Audience       string
	ClockSkew      time.Duration
}

// LoginResult bundles the operator and token returned after a successful login.
type LoginResult struct {
	Operator     common.Operator `json:"operator"`
	AccessToken  string          `json:"access_token"`
	AccessExpiry time.Time       `json:"access_expires_at"`
}

// NewService constructs a Service instance with sane defaults.
func NewService(cfg Config) (*Service, error) {
	if cfg.Staff == nil {
		return nil, errors.New("auth: staff directory is required")
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	accessTTL := cfg.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = "salon-pos"
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = "salon-till"
	}
	clockSkew := cfg.ClockSkew
	if clockSkew < 0 {
		clockSkew = 0
	}

	return &Service{
		staff:     cfg.Staff,
		secret:    []byte(secret),
		accessTTL: accessTTL,
		now:       time.Now,
		signer:    jwa.HS256,
		validator: TokenValidator{
			Issuer:    issuer,
			Audience:  audience,
			ClockSkew: clockSkew,
		},
		issuer:    issuer,
		audience:  audience,
		clockSkew: clockSkew,
	}, nil
}

// WithNow allows tests to override the time provider.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Login verifies staff credentials and issues an access token. The reassign
// capability is derived from the privilege level here and nowhere else.
func (s *Service) Login(ctx context.Context, staffID, password string) (LoginResult, error) {
	staffID = strings.TrimSpace(staffID)
	if staffID == "" || password == "" {
		return LoginResult{}, invalidCredentials(nil)
	}
	member, err := s.staff.Authenticate(ctx, staffID, password)
	if err != nil {
		return LoginResult{}, invalidCredentials(err)
	}
	op := common.Operator{ID: member.ID, Name: member.Name, CanReassignStaff: member.CanReassignStaff()}
	token, expiry, err := s.signAccessToken(op)
	if err != nil {
		return LoginResult{}, fmt.Errorf("sign access token: %w", err)
	}
	return LoginResult{Operator: op, AccessToken: token, AccessExpiry: expiry}, nil
}

// ParseAccessToken validates an access token and returns the operator it was
// issued to.
func (s *Service) ParseAccessToken(token string) (common.Operator, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return common.Operator{}, common.NewAppError("UNAUTHORIZED", "missing token", httpStatusUnauthorized, nil)
	}
	algorithm, err := extractTokenAlgorithm(trimmed)
	if err != nil {
		return common.Operator{}, common.NewAppError("UNAUTHORIZED", "invalid token", httpStatusUnauthorized, err)
	}
	if algorithm != s.signer {
		return common.Operator{}, common.NewAppError("UNAUTHORIZED", "invalid token", httpStatusUnauthorized, fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, s.secret), jwt.WithValidate(false))
	if err != nil {
		return common.Operator{}, common.NewAppError("UNAUTHORIZED", "invalid token", httpStatusUnauthorized, err)
	}
	if err := s.validator.Validate(parsed, algorithm, s.now()); err != nil {
		return common.Operator{}, common.NewAppError("UNAUTHORIZED", "invalid token", httpStatusUnauthorized, err)
	}
	op := common.Operator{ID: parsed.Subject()}
	if v, ok := parsed.Get(claimName); ok {
		op.Name, _ = v.(string)
	}
	if v, ok := parsed.Get(claimCanReassignStaff); ok {
		op.CanReassignStaff, _ = v.(bool)
	}
	return op, nil
}

func extractTokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("auth: token contains no signatures")
	}
	var algorithm jwa.SignatureAlgorithm
	for _, sig := range signatures {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return "", errors.New("auth: token missing protected headers")
		}
		alg := headers.Algorithm()
		if alg == "" {
			return "", errors.New("auth: token missing algorithm")
		}
		if alg == jwa.NoSignature {
			return "", errors.New("auth: token uses none algorithm")
		}
		if algorithm == "" {
			algorithm = alg
		} else if algorithm != alg {
			return "", fmt.Errorf("auth: mixed token algorithms detected")
		}
	}
	return algorithm, nil
}

func (s *Service) signAccessToken(op common.Operator) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.accessTTL)
	token, err := jwt.NewBuilder().
		Subject(op.ID).
		Issuer(s.issuer).
		Audience([]string{s.audience}).
		IssuedAt(now).
		NotBefore(now.Add(-s.clockSkew)).
		Expiration(expiresAt).
		Claim(claimName, op.Name).
		Claim(claimCanReassignStaff, op.CanReassignStaff).
		Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(s.signer, s.secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return string(signed), expiresAt, nil
}

func invalidCredentials(err error) error {
	return common.NewAppError("INVALID_CREDENTIALS", "invalid staff id or password", httpStatusUnauthorized, err)
}

const httpStatusUnauthorized = 401
