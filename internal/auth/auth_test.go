package auth_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/salon-pos/internal/auth"
	"github.com/noah-isme/salon-pos/internal/common"
	"github.com/noah-isme/salon-pos/internal/directory"
)

type stubStaff map[string]directory.StaffMember

func (s stubStaff) Authenticate(_ context.Context, id, password string) (directory.StaffMember, error) {
	m, ok := s[id]
	if !ok || password != "pw-"+id {
		return directory.StaffMember{}, directory.ErrInvalidCredentials
	}
	return m, nil
}

var staff = stubStaff{
	"amy": {ID: "amy", Name: "Amy", PrivilegeLevel: directory.PrivilegeManager},
	"ben": {ID: "ben", Name: "Ben", PrivilegeLevel: directory.PrivilegeStaff},
}

func newService(t *testing.T, now time.Time) *auth.Service {
	t.Helper()
	svc, err := auth.NewService(auth.Config{Staff: staff, Secret: "test-secret", AccessTokenTTL: time.Hour})
	require.NoError(t, err)
	svc.WithNow(func() time.Time { return now })
	return svc
}

func TestTokenValidator(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	build := func(issuer string, nbf, exp time.Time) jwt.Token {
		tok, err := jwt.NewBuilder().
			Issuer(issuer).
			Audience([]string{"salon-till"}).
			Subject("amy").
			IssuedAt(now).
			NotBefore(nbf).
			Expiration(exp).
			Claim("name", "Amy").
			Build()
		require.NoError(t, err)
		return tok
	}
	anonymous, err := jwt.NewBuilder().
		Issuer("salon-pos").
		Audience([]string{"salon-till"}).
		Expiration(now.Add(time.Minute)).
		Claim("name", "Amy").
		Build()
	require.NoError(t, err)
	unnamed, err := jwt.NewBuilder().
		Issuer("salon-pos").
		Audience([]string{"salon-till"}).
		Subject("amy").
		Expiration(now.Add(time.Minute)).
		Build()
	require.NoError(t, err)
	v := auth.TokenValidator{Issuer: "salon-pos", Audience: "salon-till", ClockSkew: time.Second}

	cases := []struct {
		name    string
		tok     jwt.Token
		alg     jwa.SignatureAlgorithm
		wantErr bool
	}{
		{"valid", build("salon-pos", now, now.Add(time.Minute)), jwa.HS256, false},
		{"issuer mismatch", build("other", now, now.Add(time.Minute)), jwa.HS256, true},
		{"expired", build("salon-pos", now.Add(-time.Hour), now.Add(-time.Minute)), jwa.HS256, true},
		{"not yet valid", build("salon-pos", now.Add(5*time.Minute), now.Add(10*time.Minute)), jwa.HS256, true},
		{"algorithm mismatch", build("salon-pos", now, now.Add(time.Minute)), jwa.RS256, true},
		{"missing algorithm", build("salon-pos", now, now.Add(time.Minute)), "", true},
		{"missing subject", anonymous, jwa.HS256, true},
		{"missing name", unnamed, jwa.HS256, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Validate(tc.tok, tc.alg, now)
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
	require.Error(t, v.Validate(nil, jwa.HS256, now))
}

func TestLoginCarriesCapability(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	svc := newService(t, now)

	res, err := svc.Login(context.Background(), "amy", "pw-amy")
	require.NoError(t, err)
	require.Equal(t, now.Add(time.Hour), res.AccessExpiry)
	op, err := svc.ParseAccessToken(res.AccessToken)
	require.NoError(t, err)
	require.Equal(t, common.Operator{ID: "amy", Name: "Amy", CanReassignStaff: true}, op)

	res, err = svc.Login(context.Background(), "ben", "pw-ben")
	require.NoError(t, err)
	op, err = svc.ParseAccessToken(res.AccessToken)
	require.NoError(t, err)
	require.False(t, op.CanReassignStaff)
	require.Equal(t, "Ben", op.Name)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc := newService(t, time.Now())
	for _, tc := range [][2]string{{"amy", "nope"}, {"", "pw-"}, {"ghost", "pw-ghost"}, {"ben", ""}} {
		_, err := svc.Login(context.Background(), tc[0], tc[1])
		var appErr *common.AppError
		require.True(t, errors.As(err, &appErr))
		require.Equal(t, "INVALID_CREDENTIALS", appErr.Code)
		require.Equal(t, http.StatusUnauthorized, appErr.HTTPStatus)
	}
}

func TestParseAccessTokenRejectsExpiredAndForeignTokens(t *testing.T) {
	issued := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	svc := newService(t, issued)
	res, err := svc.Login(context.Background(), "amy", "pw-amy")
	require.NoError(t, err)

	svc.WithNow(func() time.Time { return issued.Add(2 * time.Hour) })
	_, err = svc.ParseAccessToken(res.AccessToken)
	require.Error(t, err)

	other, err := auth.NewService(auth.Config{Staff: staff, Secret: "another-secret"})
	require.NoError(t, err)
	other.WithNow(func() time.Time { return issued })
	_, err = other.ParseAccessToken(res.AccessToken)
	require.Error(t, err)

	_, err = svc.ParseAccessToken("not-a-token")
	require.Error(t, err)
}

func TestNewServiceRequiresSecretAndStaff(t *testing.T) {
	_, err := auth.NewService(auth.Config{Staff: staff})
	require.Error(t, err)
	_, err = auth.NewService(auth.Config{Secret: "x"})
	require.Error(t, err)
}

func TestMiddlewareAndHandlers(t *testing.T) {
	svc := newService(t, time.Now())
	h := &auth.Handler{Service: svc}
	mw := auth.Middleware{Service: svc}

	rec := httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"staffId":"ben","password":"pw-ben"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data struct {
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Data.AccessToken)

	me := mw.RequireAuth(http.HandlerFunc(h.Me))

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+body.Data.AccessToken)
	me.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"id":"ben"`)

	rec = httptest.NewRecorder()
	me.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/me", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"staffId":"ben"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"staffId":"ben","password":"bad"}`)))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireManagerAndCookieToken(t *testing.T) {
	svc := newService(t, time.Now())
	mw := auth.Middleware{Service: svc, AccessCookie: "till_session"}
	guarded := mw.RequireAuth(auth.RequireManager(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	login := func(id string) string {
		res, err := svc.Login(context.Background(), id, "pw-"+id)
		require.NoError(t, err)
		return res.AccessToken
	}

	req := httptest.NewRequest(http.MethodGet, "/audit", nil)
	req.AddCookie(&http.Cookie{Name: "till_session", Value: login("amy")})
	rec := httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/audit", nil)
	req.Header.Set("Authorization", "bearer "+login("ben"))
	rec = httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	auth.RequireManager(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
