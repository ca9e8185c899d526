package oauth

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/leadbridge/leadbridge/internal/models"
	"golang.org/x/oauth2"
)

// maxExpiresInSeconds is the largest lifetime a time.Duration can hold.
const maxExpiresInSeconds = float64(math.MaxInt64 / int64(time.Second))

// expiresIn returns the lifetime reported by the token endpoint. ok is
// false when the field is missing, not a positive number, or too large to
// represent.
func expiresIn(tok *oauth2.Token) (time.Duration, bool) {
	var seconds float64
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		seconds = v
	case int64:
		seconds = float64(v)
	case int:
		seconds = float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		seconds = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		seconds = f
	default:
		return 0, false
	}
	if seconds <= 0 || math.IsNaN(seconds) || seconds >= maxExpiresInSeconds {
		return 0, false
	}
	return time.Duration(seconds * float64(time.Second)), true
}

func extraString(tok *oauth2.Token, key string) string {
	s, _ := tok.Extra(key).(string)
	return s
}

// expiryFor computes the absolute expiry of tok issued at issuedAt. Tokens
// without a usable expires_in get fallback.
func expiryFor(tok *oauth2.Token, issuedAt time.Time, fallback time.Duration) int64 {
	lifetime, ok := expiresIn(tok)
	if !ok {
		lifetime = fallback
	}
	return issuedAt.Add(lifetime).UnixMilli()
}

// newRecord builds the credential stored after a code exchange.
func newRecord(accountID string, tok *oauth2.Token, issuedAt time.Time, fallback time.Duration) *models.CredentialRecord {
	return &models.CredentialRecord{
		AccountID:    accountID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    expiryFor(tok, issuedAt, fallback),
		LocationID:   extraString(tok, "locationId"),
		CompanyID:    extraString(tok, "companyId"),
		Scope:        extraString(tok, "scope"),
	}
}

// mergeRefreshed applies a refresh response to prev. The refresh token is
// only replaced when the endpoint issued a new one.
func mergeRefreshed(prev *models.CredentialRecord, tok *oauth2.Token, issuedAt time.Time, fallback time.Duration) *models.CredentialRecord {
	rec := prev.Clone()
	rec.AccessToken = tok.AccessToken
	rec.ExpiresAt = expiryFor(tok, issuedAt, fallback)
	if tok.RefreshToken != "" {
		rec.RefreshToken = tok.RefreshToken
	}
	if v := extraString(tok, "locationId"); v != "" {
		rec.LocationID = v
	}
	if v := extraString(tok, "companyId"); v != "" {
		rec.CompanyID = v
	}
	if v := extraString(tok, "scope"); v != "" {
		rec.Scope = v
	}
	return rec
}
