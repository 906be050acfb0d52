// Package api holds the shared entity types and the error taxonomy the core
// components exchange.
//
// The entities mirror what the persistence boundary supplies: device profiles
// (prompt patterns, CLI verbs, error markers), templates and macros (step
// programs plus verification checks), jobs with their per-port targets, and
// verification results. The core consumes these definitions and emits status,
// log, and verification results back across the same boundary; it never
// reaches into storage itself.
//
// Errors follow one discipline: a typed error per failure kind, and for the
// kinds callers branch on an errors.As-based predicate (IsTimeout,
// IsPortBusy, ...), most with a constructor. SerialOpenError and
// UnexpectedPromptError carry no predicate. The job
// executor maps these onto failure categories with remediation hints, so the
// message text of each error is part of its contract.
package api
