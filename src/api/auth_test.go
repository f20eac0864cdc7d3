package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// issueToken signs an HS256 token for userID that expires after ttl.
func issueToken(a *Authenticator, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	return token.SignedString(a.secret)
}

func TestAuthenticatorVerify(t *testing.T) {
	auth := NewAuthenticator("secret")

	token, err := issueToken(auth, "u-1", time.Hour)
	require.NoError(t, err)

	sub, err := auth.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", sub)
}

func TestAuthenticatorVerifyRejects(t *testing.T) {
	auth := NewAuthenticator("secret")

	expired, err := issueToken(auth, "u-1", -time.Minute)
	require.NoError(t, err)
	_, err = auth.Verify(expired)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	otherSecret, err := issueToken(NewAuthenticator("other"), "u-1", time.Hour)
	require.NoError(t, err)
	_, err = auth.Verify(otherSecret)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{Subject: "u-1"}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = auth.Verify(hs512)
	assert.Error(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = auth.Verify(noSubject)
	assert.Error(t, err)

	_, err = auth.Verify("not-a-jwt")
	assert.Error(t, err)
}

func TestAuthenticatorRequire(t *testing.T) {
	auth := NewAuthenticator("secret")
	var gotUser string
	handler := auth.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	valid, err := issueToken(auth, "u-1", time.Hour)
	require.NoError(t, err)
	expired, err := issueToken(auth, "u-1", -time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name        string
		header      string
		wantStatus  int
		wantCode    string
		wantMessage string
	}{
		{name: "missing header", header: "", wantStatus: http.StatusUnauthorized, wantCode: "missing_token"},
		{name: "wrong scheme", header: "Basic abc", wantStatus: http.StatusUnauthorized, wantCode: "missing_token"},
		{name: "garbage token", header: "Bearer abc.def.ghi", wantStatus: http.StatusUnauthorized, wantCode: "invalid_token", wantMessage: "invalid token"},
		{name: "expired token", header: "Bearer " + expired, wantStatus: http.StatusUnauthorized, wantCode: "invalid_token", wantMessage: "token expired"},
		{name: "valid token", header: "bearer " + valid, wantStatus: http.StatusNoContent},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gotUser = ""
			req := httptest.NewRequest(http.MethodGet, "/api/gang", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tc.wantStatus, rec.Code)
			if tc.wantCode == "" {
				assert.Equal(t, "u-1", gotUser)
				return
			}
			var env Envelope
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
			require.NotNil(t, env.Error)
			assert.Equal(t, tc.wantCode, env.Error.Code)
			if tc.wantMessage != "" {
				assert.Equal(t, tc.wantMessage, env.Message)
			}
			assert.Empty(t, gotUser)
		})
	}
}
