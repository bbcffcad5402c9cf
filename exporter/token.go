package exporter

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
	"go.uber.org/zap"
)

// ErrAuth is returned when no bearer token could be obtained.
var ErrAuth = errors.New("unable to obtain an auth token")

// TokenSource hands out a bearer token for the orders api. Every call
// signs in again.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type Cookie struct {
	Name  string
	Value string
}

// Page is the signed in backstage page tokens are read from.
type Page interface {
	// value of key in "localStorage" or "sessionStorage", "" if unset
	StorageItem(ctx context.Context, storage string, key string) (string, error)
	Cookies(ctx context.Context) ([]Cookie, error)
	HTML(ctx context.Context) (string, error)
}

// a single place a token may be found. Extract returns "" when there is
// none there.
type TokenStrategy struct {
	Name    string
	Extract func(ctx context.Context, p Page) (string, error)
}

// tried in order, first token wins
var TokenStrategies = []TokenStrategy{
	{Name: "localStorage", Extract: storageToken("localStorage")},
	{Name: "sessionStorage", Extract: storageToken("sessionStorage")},
	{Name: "cookie", Extract: cookieToken},
	{Name: "page source", Extract: pageToken},
}

// DiscoverToken runs TokenStrategies against p and returns the first token
// found and the name of the strategy that found it.
func DiscoverToken(ctx context.Context, p Page, logger *zap.SugaredLogger) (string, string, bool) {
	for _, s := range TokenStrategies {
		token, err := s.Extract(ctx, p)
		if err != nil {
			logger.Warnf("token : failed to read token from %s, %v", s.Name, err)
			continue
		}
		if token != "" {
			return token, s.Name, true
		}
	}
	return "", "", false
}

func storageToken(storage string) func(context.Context, Page) (string, error) {
	return func(ctx context.Context, p Page) (string, error) {
		raw, err := p.StorageItem(ctx, storage, "token")
		if err != nil {
			return "", err
		}
		return jwtFromJSON(raw), nil
	}
}

func cookieToken(ctx context.Context, p Page) (string, error) {
	cookies, err := p.Cookies(ctx)
	if err != nil {
		return "", err
	}
	for _, c := range cookies {
		if !strings.Contains(strings.ToLower(c.Name), "token") {
			continue
		}
		value := c.Value
		if unescaped, err := url.QueryUnescape(value); err == nil {
			value = unescaped
		}
		if token := acceptToken(value); token != "" {
			return token, nil
		}
	}
	return "", nil
}

var pageTokenPattern = regexp.MustCompile(`token["']:\s*["']([^"']+)["']`)

func pageToken(ctx context.Context, p Page) (string, error) {
	html, err := p.HTML(ctx)
	if err != nil {
		return "", err
	}
	if !strings.Contains(html, "token") {
		return "", nil
	}
	match := pageTokenPattern.FindStringSubmatch(html)
	if match == nil {
		return "", nil
	}
	return acceptToken(match[1]), nil
}

// a token stored as {"jwt": "..."} or as a bare jwt
func acceptToken(raw string) string {
	if token := jwtFromJSON(raw); token != "" {
		return token
	}
	if validJWT(raw) {
		return raw
	}
	return ""
}

// the jwt field of a {"jwt": "..."} value, if it holds a usable token
func jwtFromJSON(raw string) string {
	if raw == "" {
		return ""
	}
	var stored struct {
		JWT string `json:"jwt"`
	}
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return ""
	}
	if !validJWT(stored.JWT) {
		return ""
	}
	return stored.JWT
}

// true if token is a well formed jwt that hasn't expired. The signature
// can't be checked here, the orders api does that.
func validJWT(token string) bool {
	if strings.Count(token, ".") != 2 {
		return false
	}
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return false
	}
	return claims.VerifyExpiresAt(time.Now().Unix(), false)
}

// expiry of a jwt, zero if it has none or doesn't parse
func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, ok := claims["exp"].(float64)
	if !ok {
		return time.Time{}
	}
	return time.Unix(int64(exp), 0)
}

// first n chars of a token, for logs
func tokenPrefix(token string, n int) string {
	if len(token) <= n {
		return token
	}
	return token[:n] + "..."
}
