// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extensions

import (
	"context"
	"crypto/subtle"
	"errors"
)

// ErrUnauthorized is returned when a caller's token is missing or wrong.
var ErrUnauthorized = errors.New("unauthorized")

// AuthInfo identifies an authenticated caller of the safety service.
type AuthInfo struct {
	// ClientID names the calling service, e.g. "conversation-orchestrator".
	ClientID string
	Roles    []string
}

func (a *AuthInfo) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AuthProvider validates a bearer token presented to the HTTP service.
type AuthProvider interface {
	Validate(ctx context.Context, token string) (*AuthInfo, error)
}

// NopAuthProvider accepts every request. It is the default for a service
// bound to localhost alongside the orchestrator.
type NopAuthProvider struct{}

func (p *NopAuthProvider) Validate(_ context.Context, _ string) (*AuthInfo, error) {
	return &AuthInfo{ClientID: "local", Roles: []string{"operator"}}, nil
}

// StaticTokenAuthProvider accepts exactly one shared token.
type StaticTokenAuthProvider struct {
	Token    string
	ClientID string
	Roles    []string
}

func (p *StaticTokenAuthProvider) Validate(_ context.Context, token string) (*AuthInfo, error) {
	if p.Token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(p.Token)) != 1 {
		return nil, ErrUnauthorized
	}
	return &AuthInfo{ClientID: p.ClientID, Roles: p.Roles}, nil
}

var (
	_ AuthProvider = (*NopAuthProvider)(nil)
	_ AuthProvider = (*StaticTokenAuthProvider)(nil)
)
