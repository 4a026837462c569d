package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-checkout-orderflow/internal/store"
	"github.com/imrishuroy/go-checkout-orderflow/internal/store/memory"
)

func TestPredicates(t *testing.T) {
	require.False(t, CanCheckout(nil))
	require.False(t, CanCheckout(&store.User{IsActive: true}))
	require.True(t, CanCheckout(&store.User{IsActive: true, IsMobileVerified: true}))
	require.False(t, CanCheckout(&store.User{IsActive: false, IsMobileVerified: true}))

	require.True(t, IsStaff(&store.User{IsActive: true, IsStaff: true}))
	require.False(t, IsStaff(&store.User{IsActive: false, IsStaff: true}))
}

func newAuth(t *testing.T) *Authenticator {
	t.Helper()
	m := memory.New()
	m.PutUser(store.User{ID: 1, IsActive: true, IsMobileVerified: true})
	m.PutUser(store.User{ID: 2, IsActive: false})
	return NewAuthenticator("test-secret", StoreUsers{Store: m})
}

func TestAuthenticate(t *testing.T) {
	a := newAuth(t)
	ctx := context.Background()

	tok, err := a.Issue(1, time.Hour)
	require.NoError(t, err)
	u, err := a.Authenticate(ctx, tok)
	require.NoError(t, err)
	require.EqualValues(t, 1, u.ID)

	tok, _ = a.Issue(2, time.Hour)
	_, err = a.Authenticate(ctx, tok)
	require.ErrorIs(t, err, ErrUnauthenticated)

	tok, _ = a.Issue(99, time.Hour)
	_, err = a.Authenticate(ctx, tok)
	require.ErrorIs(t, err, ErrUnauthenticated)

	tok, _ = a.Issue(1, -time.Minute)
	_, err = a.Authenticate(ctx, tok)
	require.ErrorIs(t, err, ErrUnauthenticated)

	other := NewAuthenticator("other-secret", nil)
	tok, _ = other.Issue(1, time.Hour)
	_, err = a.Authenticate(ctx, tok)
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestAuthenticate_RejectsNoneAlg(t *testing.T) {
	a := newAuth(t)
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = a.Authenticate(context.Background(), tok)
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	a := newAuth(t)

	r := gin.New()
	r.GET("/me", a.Middleware(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": User(c).ID})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	tok, _ := a.Issue(1, time.Hour)
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"id":1}`, w.Body.String())
}
