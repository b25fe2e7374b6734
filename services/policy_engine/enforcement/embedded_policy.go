// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package enforcement bakes the audited child safety policy and the JSON schema
that every policy file must satisfy into the binary. An operator may point the
service at an override file, but the embedded copy is always the default and is
the one shipped through review.
*/
package enforcement

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
)

// ChildSafetyPolicy holds the raw bytes of child_safety_policy.yaml.
//
// Usage:
//
//	err := yaml.Unmarshal(enforcement.ChildSafetyPolicy, &policyFile)
//
//go:embed child_safety_policy.yaml
var ChildSafetyPolicy []byte

// PolicySchema is the JSON schema a policy document must satisfy before its
// patterns are compiled.
//
//go:embed policy_schema.json
var PolicySchema []byte

// Fingerprint returns the hex SHA-256 of a policy document. Operators compare
// it against the value reported by the running service.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
