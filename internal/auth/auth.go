// Package auth authenticates bearer tokens and answers what an authenticated user may do.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/imrishuroy/go-checkout-orderflow/internal/store"
)

const userKey = "auth_user"

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

// CanCheckout reports whether u may place orders.
func CanCheckout(u *store.User) bool {
	return u != nil && u.IsActive && u.IsMobileVerified
}

func IsStaff(u *store.User) bool {
	return u != nil && u.IsActive && u.IsStaff
}

type UserLookup interface {
	GetUser(ctx context.Context, userID int64) (*store.User, error)
}

// StoreUsers reads users through a short transaction.
type StoreUsers struct {
	Store store.Store
}

func (s StoreUsers) GetUser(ctx context.Context, userID int64) (*store.User, error) {
	var u *store.User
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		u, err = tx.GetUser(ctx, userID)
		return err
	})
	return u, err
}

type Authenticator struct {
	secret []byte
	users  UserLookup
}

func NewAuthenticator(secret string, users UserLookup) *Authenticator {
	return &Authenticator{secret: []byte(secret), users: users}
}

// Issue signs an access token for userID. Token issuance proper lives elsewhere; this is used
// by local tooling and tests.
func (a *Authenticator) Issue(userID int64, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Authenticate resolves a raw bearer token to an active user.
func (a *Authenticator) Authenticate(ctx context.Context, raw string) (*store.User, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad subject", ErrUnauthenticated)
	}
	u, err := a.users.GetUser(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown user", ErrUnauthenticated)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !u.IsActive {
		return nil, fmt.Errorf("%w: inactive user", ErrUnauthenticated)
	}
	return u, nil
}

// Middleware rejects requests without a valid "Authorization: Bearer" token.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthenticated",
				"message": "missing bearer token",
			})
			return
		}
		u, err := a.Authenticate(c.Request.Context(), raw)
		if err != nil {
			status, code := http.StatusUnauthorized, "unauthenticated"
			if !errors.Is(err, ErrUnauthenticated) {
				status, code = http.StatusInternalServerError, "internal_error"
			}
			_ = c.Error(err)
			c.AbortWithStatusJSON(status, gin.H{"error": code, "message": http.StatusText(status)})
			return
		}
		c.Set(userKey, u)
		c.Next()
	}
}

// User returns the user set by Middleware.
func User(c *gin.Context) *store.User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	u, _ := v.(*store.User)
	return u
}

// SetUser is used by tests that bypass token parsing.
func SetUser(c *gin.Context, u *store.User) {
	c.Set(userKey, u)
}
