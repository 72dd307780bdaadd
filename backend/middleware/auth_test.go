// Copyright (C) 2026 quietwire.dev <relay@quietwire.dev>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const (
	testSecret = "test-secret"
	testIssuer = "quietwire"
)

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()

	header, _ := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}

	message := base64.RawURLEncoding.EncodeToString(header) + "." +
		base64.RawURLEncoding.EncodeToString(payload)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return message + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func validClaims() Claims {
	now := time.Now()
	return Claims{
		Number:    "+14151111111",
		DeviceID:  2,
		ExpiresAt: now.Add(time.Hour).Unix(),
		IssuedAt:  now.Unix(),
		Issuer:    testIssuer,
	}
}

func runAuth(t *testing.T, token string) (*httptest.ResponseRecorder, *Identity) {
	t.Helper()

	var got *Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := CallerIdentity(r); ok {
			got = &id
		}
		w.WriteHeader(http.StatusOK)
	})

	handler := NewAuthMiddleware(testSecret, testIssuer)(next)

	req := httptest.NewRequest(http.MethodGet, "/v1/messages/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr, got
}

func TestAuthValidToken(t *testing.T) {
	rr, id := runAuth(t, signToken(t, testSecret, validClaims()))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %q)", rr.Code, rr.Body.String())
	}
	if id == nil {
		t.Fatal("identity missing from request context")
	}
	if id.Number != "+14151111111" || id.DeviceID != 2 {
		t.Fatalf("identity = %+v", id)
	}
}

func TestAuthMissingHeader(t *testing.T) {
	rr, _ := runAuth(t, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestAuthBadSignature(t *testing.T) {
	rr, _ := runAuth(t, signToken(t, "wrong-secret", validClaims()))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestAuthExpiredToken(t *testing.T) {
	claims := validClaims()
	claims.ExpiresAt = time.Now().Add(-time.Hour).Unix()

	rr, _ := runAuth(t, signToken(t, testSecret, claims))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestAuthWrongIssuer(t *testing.T) {
	claims := validClaims()
	claims.Issuer = "someone-else"

	rr, _ := runAuth(t, signToken(t, testSecret, claims))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestAuthMissingDeviceClaim(t *testing.T) {
	claims := validClaims()
	claims.DeviceID = 0

	rr, _ := runAuth(t, signToken(t, testSecret, claims))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}
