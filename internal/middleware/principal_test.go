package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/minipay/internal/auth"
	"github.com/congo-pay/minipay/internal/identity"
	"github.com/congo-pay/minipay/internal/logging"
	"github.com/congo-pay/minipay/internal/response"
)

type oneAccount identity.Account

func (a oneAccount) FindByID(context.Context, string) (identity.Account, error) {
	return identity.Account(a), nil
}

func TestRequirePrincipal(t *testing.T) {
	account := identity.Account{ID: "0b7f6a3e-3c1d-4f7e-9a2b-8c5d6e7f8a9b", Username: "alice1"}
	tokens := auth.NewService("secret", time.Hour, time.Hour, oneAccount(account))
	pair, err := tokens.Issue(account)
	require.NoError(t, err)

	app := fiber.New(fiber.Config{ErrorHandler: response.ErrorHandler(logging.Discard())})
	app.Get("/me", RequirePrincipal(tokens), func(c *fiber.Ctx) error {
		p, err := MustPrincipal(c)
		if err != nil {
			return err
		}
		return c.SendString(p.Username)
	})

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + pair.AccessToken, http.StatusOK},
		{"lowercase scheme", "bearer " + pair.AccessToken, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
		{"refresh token", "Bearer " + pair.RefreshToken, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set(fiber.HeaderAuthorization, tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", bearerToken("Bearer abc"))
	assert.Equal(t, "abc", bearerToken("  BEARER   abc "))
	assert.Equal(t, "", bearerToken("Basic abc"))
	assert.Equal(t, "", bearerToken("Bearer"))
}
