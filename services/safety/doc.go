// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package safety decides whether a piece of text may be shown to a specific
// child.
//
// # Description
//
// Every check runs eight independent checkers over one immutable policy
// snapshot (see services/policy_engine), merges their violations in a fixed
// order, derives a verdict and a confidence, rewrites the text when anything
// was flagged, and records the outcome in a bounded in-memory monitor.
//
// Checker order is part of the contract because the rewriter depends on it:
//
//	inappropriate → scary → violence → adult → personal info →
//	blocked topic → complexity → emotional
//
// Besides per-message checks the package selects safe alternative topics,
// picks fixed safe-response templates, audits a child's own profile and
// reports statistics for monitoring.
//
// # Limitations
//
//   - Rules are lexical. Paraphrases that avoid every listed term pass.
//   - The rewriter only replaces terms present in the replacement map, so a
//     flagged but unmapped term can survive in ProcessedContent. PII is the
//     exception: it is always redacted.
//   - Ages outside 5-13 receive no complexity check.
//
// # Thread Safety
//
// Engine is safe for concurrent use. The monitor is the only shared mutable
// state and is guarded by a single mutex.
package safety
