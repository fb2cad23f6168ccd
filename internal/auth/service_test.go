package auth_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront/internal/auth"
	"github.com/noah-isme/storefront/internal/common"
)

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, newMemStore())

	user, err := svc.Register(ctx, auth.SignupInput{
		Username: " alice ", Email: "Alice@Example.com", Password: "crystal-pass", PasswordConfirm: "crystal-pass",
	})
	require.NoError(t, err)
	require.Equal(t, "alice", user.Username)
	require.Equal(t, "alice@example.com", user.Email)

	result, err := svc.Login(ctx, auth.LoginInput{Username: "alice", Password: "crystal-pass"})
	require.NoError(t, err)
	require.NotEmpty(t, result.AccessToken)

	claims, err := svc.ParseAccessToken(result.AccessToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.UserID)
	require.Equal(t, "alice", claims.Username)
}

func TestRegisterValidation(t *testing.T) {
	svc := newService(t, newMemStore())
	cases := map[string]auth.SignupInput{
		"mismatch":     {Username: "bob", Password: "password1", PasswordConfirm: "password2"},
		"short":        {Username: "bob", Password: "short", PasswordConfirm: "short"},
		"bad username": {Username: "bob smith", Password: "password1", PasswordConfirm: "password1"},
		"bad email":    {Username: "bob", Email: "nope", Password: "password1", PasswordConfirm: "password1"},
		"missing":      {},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), in)
			var appErr *common.AppError
			require.True(t, errors.As(err, &appErr))
			require.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
			require.Equal(t, "VALIDATION_ERROR", appErr.Code)
		})
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	svc := newService(t, newMemStore())
	in := auth.SignupInput{Username: "carol", Password: "password1", PasswordConfirm: "password1"}
	_, err := svc.Register(context.Background(), in)
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), in)
	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, http.StatusConflict, appErr.HTTPStatus)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc := newService(t, newMemStore())
	_, err := svc.Register(context.Background(), auth.SignupInput{Username: "dave", Password: "password1", PasswordConfirm: "password1"})
	require.NoError(t, err)

	for _, in := range []auth.LoginInput{
		{Username: "dave", Password: "wrong-password"},
		{Username: "nobody", Password: "password1"},
		{},
	} {
		_, err := svc.Login(context.Background(), in)
		var appErr *common.AppError
		require.True(t, errors.As(err, &appErr))
		require.Equal(t, http.StatusUnauthorized, appErr.HTTPStatus)
	}
}

func TestParseAccessTokenRejectsExpired(t *testing.T) {
	svc := newService(t, newMemStore())
	issued := time.Now()
	svc.WithNow(func() time.Time { return issued })
	result, err := svc.Issue(auth.User{ID: 9, Username: "eve"})
	require.NoError(t, err)

	svc.WithNow(func() time.Time { return issued.Add(2 * time.Hour) })
	_, err = svc.ParseAccessToken(result.AccessToken)
	require.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestParseAccessTokenRejectsAlgorithmMismatch(t *testing.T) {
	svc := newService(t, newMemStore())
	now := time.Now()
	tok, err := jwt.NewBuilder().
		Subject("9").
		Issuer("storefront").
		Audience([]string{"storefront-web"}).
		IssuedAt(now).
		Expiration(now.Add(time.Minute)).
		Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS384, []byte("test-secret")))
	require.NoError(t, err)

	_, err = svc.ParseAccessToken(string(signed))
	require.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestParseAccessTokenRejectsForeignSecret(t *testing.T) {
	other, err := auth.NewService(auth.Config{Store: newMemStore(), Secret: "other-secret", HashParams: cheapParams})
	require.NoError(t, err)
	result, err := other.Issue(auth.User{ID: 3, Username: "mallory"})
	require.NoError(t, err)

	_, err = newService(t, newMemStore()).ParseAccessToken(result.AccessToken)
	require.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestTokenValidator(t *testing.T) {
	now := time.Now()
	build := func(issuer string, exp time.Time) jwt.Token {
		tok, err := jwt.NewBuilder().Issuer(issuer).Audience([]string{"aud"}).Subject("1").IssuedAt(now).Expiration(exp).Build()
		require.NoError(t, err)
		return tok
	}
	v := auth.TokenValidator{Issuer: "issuer", Audience: "aud", Algorithm: jwa.HS256}

	require.NoError(t, v.Validate(build("issuer", now.Add(time.Minute)), jwa.HS256, now))
	require.Error(t, v.Validate(build("other", now.Add(time.Minute)), jwa.HS256, now))
	require.Error(t, v.Validate(build("issuer", now.Add(-time.Minute)), jwa.HS256, now))
	require.Error(t, v.Validate(build("issuer", now.Add(time.Minute)), jwa.HS512, now))
}
