// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command safetyctl is the operator CLI for the child content safety engine.
//
// It runs checks against the embedded policy (or an override file), verifies
// and dumps policy documents, scans text for personal information and
// reports the status of a local engine or a running safetyd.
//
// # Exit Codes
//
//   - 0: success, content safe, policy valid
//   - 1: findings (unsafe content, invalid policy, PII found)
//   - 2: error
//
// # Usage
//
//	safetyctl check --age 6 --sensitivity high "me dan miedo los monstruos"
//	safetyctl policy verify --policy ./policy.yaml --json
//	safetyctl status --server http://localhost:12230
package main

import (
	"os"
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
