// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package extensions defines the pluggable contracts the safety service is
// assembled from. Every contract has a no-op default so a bare deployment
// runs with no external dependencies.
package extensions

// ServiceOptions bundles the extension points the HTTP service accepts.
//
// # Example
//
//	opts := extensions.DefaultOptions().
//	    WithAudit(extensions.NewMemoryAuditLogger(500)).
//	    WithAuth(&extensions.StaticTokenAuthProvider{Token: token})
type ServiceOptions struct {
	AuthProvider AuthProvider
	AuditLogger  AuditLogger
}

// DefaultOptions returns options with every field set to its no-op
// implementation.
func DefaultOptions() ServiceOptions {
	return ServiceOptions{
		AuthProvider: &NopAuthProvider{},
		AuditLogger:  &NopAuditLogger{},
	}
}

func (opts ServiceOptions) WithAuth(provider AuthProvider) ServiceOptions {
	opts.AuthProvider = provider
	return opts
}

func (opts ServiceOptions) WithAudit(logger AuditLogger) ServiceOptions {
	opts.AuditLogger = logger
	return opts
}
