package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/assistly/gatekeeper/internal/config"
	"github.com/assistly/gatekeeper/internal/model"
)

const (
	jwtIssuer       = "gatekeeper"
	audienceSession = "admin-session"
	audienceGate    = "admin-gate"
)

// Default lifetimes; the server overrides them from configuration.
const (
	DefaultSessionTTL = 12 * time.Hour
	DefaultGateTTL    = 10 * time.Minute
)

// dummyHash is compared against when the email is unknown so that login
// timing does not reveal which accounts exist.
const dummyHash = "$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z2bMHZ1NHEV3ANLQ7jt8Ho2W"

type JWTPrincipal struct {
	AdminID int64
	Email   string
}

// Session is the result of a successful login.
type Session struct {
	Token     string       `json:"session_token"`
	ExpiresAt time.Time    `json:"expires_at"`
	Admin     *model.Admin `json:"admin"`
}

// Gate is proof that the caller presented the current secret path and key.
type Gate struct {
	Token     string    `json:"gate_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type AuthService struct {
	store      *config.Store
	jwtSecret  []byte
	clock      Clock
	sessionTTL time.Duration
	gateTTL    time.Duration
}

func NewAuthService(store *config.Store, jwtSecret string, clock Clock) *AuthService {
	if clock == nil {
		clock = SystemClock{}
	}
	return &AuthService{
		store:      store,
		jwtSecret:  []byte(jwtSecret),
		clock:      clock,
		sessionTTL: DefaultSessionTTL,
		gateTTL:    DefaultGateTTL,
	}
}

// SetTTLs overrides the session and gate token lifetimes. Zero values keep
// the current setting.
func (s *AuthService) SetTTLs(session, gate time.Duration) {
	if session > 0 {
		s.sessionTTL = session
	}
	if gate > 0 {
		s.gateTTL = gate
	}
}

// Login verifies credentials and issues a session token. Unknown emails,
// wrong passwords, inactive accounts and accounts without a password all
// yield ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	admin, err := s.store.GetAdminByEmail(ctx, email)
	if errors.Is(err, config.ErrNotFound) {
		CheckPassword(dummyHash, password)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !admin.IsActive || !admin.HasPassword() || !CheckPassword(admin.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	if err := s.store.UpdateAdminLastLogin(ctx, admin.ID); err != nil {
		return nil, err
	}

	expiresAt := s.clock.Now().Add(s.sessionTTL)
	token, err := s.IssueJWT(ctx, admin.ID, admin.Email, s.sessionTTL)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: expiresAt, Admin: admin}, nil
}

// ValidateJWT verifies a JWT bearer token and returns the associated admin identity.
func (s *AuthService) ValidateJWT(ctx context.Context, tokenStr string) (*JWTPrincipal, error) {
	claims := &jwtClaims{}
	if err := s.parse(tokenStr, claims, audienceSession); err != nil {
		return nil, err
	}
	return &JWTPrincipal{
		AdminID: claims.AdminID,
		Email:   claims.Email,
	}, nil
}

// IssueJWT creates a new signed session JWT for the given admin.
func (s *AuthService) IssueJWT(ctx context.Context, adminID int64, email string, ttl time.Duration) (string, error) {
	now := s.clock.Now()
	claims := jwtClaims{
		AdminID: adminID,
		Email:   email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    jwtIssuer,
			Audience:  jwt.ClaimStrings{audienceSession},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// IssueGateToken creates a short-lived token bound to the access token the
// caller just proved knowledge of.
func (s *AuthService) IssueGateToken(ctx context.Context, accessTokenID int64) (*Gate, error) {
	now := s.clock.Now()
	expiresAt := now.Add(s.gateTTL)
	claims := gateClaims{
		AccessTokenID: accessTokenID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    jwtIssuer,
			Audience:  jwt.ClaimStrings{audienceGate},
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return nil, err
	}
	return &Gate{Token: signed, ExpiresAt: expiresAt}, nil
}

// ValidateGateToken verifies a gate token. It is rejected once the access
// token it was issued for has been rotated out.
func (s *AuthService) ValidateGateToken(ctx context.Context, tokenStr string) error {
	claims := &gateClaims{}
	if err := s.parse(tokenStr, claims, audienceGate); err != nil {
		return ErrAccessDenied
	}

	active, err := s.store.GetActiveAccessToken(ctx)
	if errors.Is(err, config.ErrNotFound) {
		return ErrAccessDenied
	}
	if err != nil {
		return err
	}
	if active.ID != claims.AccessTokenID || active.Expired(s.clock.Now()) {
		return ErrAccessDenied
	}
	return nil
}

func (s *AuthService) parse(tokenStr string, claims jwt.Claims, audience string) error {
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	},
		jwt.WithAudience(audience),
		jwt.WithIssuer(jwtIssuer),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		return ErrInvalidCredentials
	}
	if !token.Valid {
		return ErrInvalidCredentials
	}
	return nil
}

type jwtClaims struct {
	AdminID int64  `json:"admin_id"`
	Email   string `json:"email"`
	jwt.RegisteredClaims
}

type gateClaims struct {
	AccessTokenID int64 `json:"atid"`
	jwt.RegisteredClaims
}
