package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/congo-pay/minipay/internal/apperr"
	"github.com/congo-pay/minipay/internal/identity"
)

const (
	issuer = "minipay"

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Principal is the authenticated caller of a wallet operation.
type Principal struct {
	UserID   string
	Username string
}

// Claims are the JWT claims carried by access and refresh tokens.
type Claims struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenPair is issued when an account is created.
type TokenPair struct {
	AccessToken           string    `json:"accessToken"`
	AccessTokenExpiresAt  time.Time `json:"accessTokenExpiresAt"`
	AccessTokenExpiresIn  int64     `json:"accessTokenExpiresIn"`
	RefreshToken          string    `json:"refreshToken"`
	RefreshTokenExpiresAt time.Time `json:"refreshTokenExpiresAt"`
	RefreshTokenExpiresIn int64     `json:"refreshTokenExpiresIn"`
}

// AccessToken is issued on refresh.
type AccessToken struct {
	AccessToken          string    `json:"accessToken"`
	AccessTokenExpiresAt time.Time `json:"accessTokenExpiresAt"`
	AccessTokenExpiresIn int64     `json:"accessTokenExpiresIn"`
}

// AccountFinder looks accounts up by id.
type AccountFinder interface {
	FindByID(ctx context.Context, id string) (identity.Account, error)
}

// Service issues and verifies HS256 tokens.
type Service struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	accounts   AccountFinder
	now        func() time.Time
}

// NewService constructs a token service.
func NewService(secret string, accessTTL, refreshTTL time.Duration, accounts AccountFinder) *Service {
	return &Service{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		accounts:   accounts,
		now:        time.Now,
	}
}

// Issue signs an access and a refresh token for account.
func (s *Service) Issue(account identity.Account) (TokenPair, error) {
	access, accessExp, err := s.sign(account.ID, account.Username, tokenTypeAccess, s.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := s.sign(account.ID, account.Username, tokenTypeRefresh, s.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:           access,
		AccessTokenExpiresAt:  accessExp,
		AccessTokenExpiresIn:  int64(s.accessTTL.Seconds()),
		RefreshToken:          refresh,
		RefreshTokenExpiresAt: refreshExp,
		RefreshTokenExpiresIn: int64(s.refreshTTL.Seconds()),
	}, nil
}

// Resolve verifies an access token and returns its principal. An empty token
// yields apperr.ErrUnauthenticated, any verification failure
// apperr.ErrInvalidToken.
func (s *Service) Resolve(token string) (Principal, error) {
	if token == "" {
		return Principal{}, apperr.New(apperr.ErrUnauthenticated, "access token is required")
	}
	claims, err := s.parse(token, tokenTypeAccess)
	if err != nil {
		return Principal{}, err
	}
	return Principal{UserID: claims.UserID, Username: claims.Username}, nil
}

// Refresh exchanges a refresh token for a new access token. The account must
// still exist.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (AccessToken, error) {
	if refreshToken == "" {
		return AccessToken{}, apperr.New(apperr.ErrUnauthenticated, "refresh token is required")
	}
	claims, err := s.parse(refreshToken, tokenTypeRefresh)
	if err != nil {
		return AccessToken{}, err
	}
	account, err := s.accounts.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return AccessToken{}, apperr.New(apperr.ErrInvalidToken, "token is invalid")
		}
		return AccessToken{}, err
	}
	token, exp, err := s.sign(account.ID, account.Username, tokenTypeAccess, s.accessTTL)
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{
		AccessToken:          token,
		AccessTokenExpiresAt: exp,
		AccessTokenExpiresIn: int64(s.accessTTL.Seconds()),
	}, nil
}

func (s *Service) sign(userID, username, tokenType string, ttl time.Duration) (string, time.Time, error) {
	now := s.now().UTC()
	exp := now.Add(ttl).Truncate(time.Second)
	claims := Claims{
		UserID:    userID,
		Username:  username,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (s *Service) parse(token, tokenType string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return nil, apperr.Wrap(apperr.ErrInvalidToken, "token is invalid", err)
	}
	if claims.TokenType != tokenType || claims.UserID == "" {
		return nil, apperr.New(apperr.ErrInvalidToken, "token is invalid")
	}
	return claims, nil
}
