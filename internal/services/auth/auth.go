package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/IlyasAtabaev731/credx-wallet/internal/config"
	"github.com/IlyasAtabaev731/credx-wallet/internal/domain/models"
	"github.com/IlyasAtabaev731/credx-wallet/internal/lib/jwt"
	"github.com/IlyasAtabaev731/credx-wallet/internal/storage"
	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidEmail       = fmt.Errorf("%w: email address is not accepted", ErrInvalidInput)
	ErrUserExists         = errors.New("username or email already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid or expired token")

	// ErrRevocationUnavailable means the token is signed and unexpired but
	// its revocation status could not be read. Verify still returns the identity.
	ErrRevocationUnavailable = errors.New("token revocation status unavailable")
)

type UserSaver interface {
	SaveUser(ctx context.Context, username, email string, passHash []byte) (models.User, error)
}

type UserProvider interface {
	User(ctx context.Context, username string) (models.User, error)
}

type TokenRevoker interface {
	RevokeToken(ctx context.Context, jti string, userID int64, expiresAt time.Time) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

type Storage interface {
	UserSaver
	UserProvider
	TokenRevoker
}

// Identity is what a verified token proves about the caller.
type Identity struct {
	UserID    int64
	Username  string
	TokenID   string
	ExpiresAt time.Time
}

type Auth struct {
	log          *slog.Logger
	storage      Storage
	validate     *validator.Validate
	secret       string
	tokenTTL     time.Duration
	bcryptCost   int
	emailDomains []string
	// dummyHash is compared against when the user does not exist, so both
	// failure paths cost one bcrypt comparison.
	dummyHash []byte
}

func New(log *slog.Logger, storage Storage, cfg config.Auth) *Auth {
	cost := cfg.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}

	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}

	domains := make([]string, 0, len(cfg.EmailDomains))
	for _, d := range cfg.EmailDomains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			domains = append(domains, d)
		}
	}

	dummyHash, err := bcrypt.GenerateFromPassword([]byte("credx-dummy-password"), cost)
	if err != nil {
		panic("failed to generate dummy hash: " + err.Error())
	}

	return &Auth{
		log:          log,
		storage:      storage,
		validate:     validator.New(),
		secret:       cfg.JWTSecret,
		tokenTTL:     ttl,
		bcryptCost:   cost,
		emailDomains: domains,
		dummyHash:    dummyHash,
	}
}

// Register stores a new user with a bcrypt hash of password and returns a fresh token.
func (a *Auth) Register(ctx context.Context, username, email, password string) (models.User, string, error) {
	const op = "auth.Register"

	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	log := a.log.With(slog.String("op", op), slog.String("username", username))

	if username == "" || email == "" || password == "" {
		return models.User{}, "", ErrInvalidInput
	}
	if err := a.checkEmail(email); err != nil {
		return models.User{}, "", err
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(password), a.bcryptCost)
	if err != nil {
		log.Error("failed to hash password", slog.String("error", err.Error()))
		return models.User{}, "", fmt.Errorf("%s: %w", op, err)
	}

	user, err := a.storage.SaveUser(ctx, username, email, passHash)
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			log.Info("user already exists")
			return models.User{}, "", ErrUserExists
		}
		log.Error("failed to save user", slog.String("error", err.Error()))
		return models.User{}, "", fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user registered", slog.Int64("uid", user.ID))

	token, err := a.IssueToken(user)
	if err != nil {
		return models.User{}, "", fmt.Errorf("%s: %w", op, err)
	}

	return user, token, nil
}

// Login checks the credentials and returns a fresh token. A missing user and a
// wrong password both yield ErrInvalidCredentials.
func (a *Auth) Login(ctx context.Context, username, password string) (models.User, string, error) {
	const op = "auth.Login"

	username = strings.TrimSpace(username)

	log := a.log.With(slog.String("op", op), slog.String("username", username))

	if username == "" || password == "" {
		return models.User{}, "", ErrInvalidInput
	}

	user, err := a.Authenticate(ctx, username, password)
	if err != nil {
		if !errors.Is(err, ErrInvalidCredentials) {
			log.Error("failed to authenticate", slog.String("error", err.Error()))
		}
		return models.User{}, "", err
	}

	token, err := a.IssueToken(user)
	if err != nil {
		return models.User{}, "", fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user logged in", slog.Int64("uid", user.ID))

	return user, token, nil
}

func (a *Auth) Authenticate(ctx context.Context, username, password string) (models.User, error) {
	const op = "auth.Authenticate"

	user, err := a.storage.User(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			_ = bcrypt.CompareHashAndPassword(a.dummyHash, []byte(password))
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return models.User{}, ErrInvalidCredentials
	}

	return user, nil
}

func (a *Auth) IssueToken(user models.User) (string, error) {
	return jwt.NewToken(user, a.secret, a.tokenTTL)
}

// Verify returns the identity carried by a valid, unexpired and unrevoked token.
// When the revocation lookup fails the identity is returned together with an
// error wrapping ErrRevocationUnavailable.
func (a *Auth) Verify(ctx context.Context, token string) (Identity, error) {
	const op = "auth.Verify"

	claims, err := jwt.ParseToken(token, a.secret)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}

	id := Identity{
		UserID:    claims.UID,
		Username:  claims.Username,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}

	if claims.ID != "" {
		revoked, err := a.storage.IsTokenRevoked(ctx, claims.ID)
		if err != nil {
			return id, fmt.Errorf("%s: %w: %w", op, ErrRevocationUnavailable, err)
		}
		if revoked {
			return Identity{}, ErrInvalidToken
		}
	}

	return id, nil
}

// Logout revokes the token behind id until it would have expired anyway.
func (a *Auth) Logout(ctx context.Context, id Identity) error {
	const op = "auth.Logout"

	if id.TokenID == "" {
		return nil
	}

	if err := a.storage.RevokeToken(ctx, id.TokenID, id.UserID, id.ExpiresAt); err != nil {
		a.log.Error("failed to revoke token", slog.String("op", op), slog.String("error", err.Error()))
		return fmt.Errorf("%s: %w", op, err)
	}

	a.log.Info("token revoked", slog.Int64("uid", id.UserID))

	return nil
}

func (a *Auth) checkEmail(email string) error {
	if err := a.validate.Var(email, "required,email"); err != nil {
		return ErrInvalidEmail
	}
	if len(a.emailDomains) == 0 {
		return nil
	}

	at := strings.LastIndexByte(email, '@')
	domain := strings.ToLower(email[at+1:])
	for _, d := range a.emailDomains {
		if domain == d {
			return nil
		}
	}

	return ErrInvalidEmail
}
