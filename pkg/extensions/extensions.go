// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extensions defines interfaces for enterprise functionality.
//
// This package provides extension points that allow enterprise builds to
// add capabilities without modifying the core ClusterBuddy codebase.
// The open source version uses no-op defaults for all interfaces.
//
// # Design Philosophy
//
// ClusterBuddy is designed as a fully functional single-operator tool
// that triages a cluster without any surrounding infrastructure.
// Enterprise features are implemented by providing concrete
// implementations of these interfaces and injecting them via
// ServiceOptions.
//
// # Extension Categories
//
// The package is organized by domain:
//
//   - auth.go: Authentication and authorization (AuthProvider, AuthzProvider)
//   - audit.go: Compliance audit logging (AuditLogger)
//   - filter.go: Query and output transformation, secret redaction (MessageFilter)
//   - classifier.go: Sensitivity classification of captured output (DataClassifier)
//   - request_auditor.go: Raw request/response capture (RequestAuditor)
//
// # Usage in ClusterBuddy (Open Source)
//
// The open source version uses no-op implementations:
//
//	opts := extensions.DefaultOptions()
//	handlers := cluster_buddy.NewHandlersWithOptions(svc, opts)
//
// # Usage in Enterprise Builds
//
// Enterprise provides concrete implementations:
//
//	opts := extensions.ServiceOptions{
//	    AuthProvider:  enterprise.NewOIDCProvider(config),
//	    AuthzProvider: enterprise.NewRBACProvider(policies),
//	    AuditLogger:   enterprise.NewSplunkAuditor(config),
//	    MessageFilter: enterprise.NewSecretRedactor(rules),
//	}
//	handlers := cluster_buddy.NewHandlersWithOptions(svc, opts)
//
// # Thread Safety
//
// All interface implementations must be safe for concurrent use.
// Multiple goroutines may call methods simultaneously.
package extensions

// ServiceOptions groups all extension points for service configuration.
//
// Pass this to NewHandlersWithOptions to enable enterprise features.
// All fields must be non-nil; use DefaultOptions() as the starting point
// and replace individual fields with the With* methods.
//
// Example:
//
//	// Open source: use defaults
//	opts := extensions.DefaultOptions()
//
//	// Enterprise: inject implementations
//	opts := extensions.DefaultOptions().
//	    WithAuth(oidcProvider).
//	    WithAudit(siemAuditor).
//	    WithFilter(secretRedactor)
type ServiceOptions struct {
	// AuthProvider validates authentication tokens.
	// Default: NopAuthProvider (always returns valid local user)
	AuthProvider AuthProvider

	// AuthzProvider checks authorization permissions. The triage service
	// consults it before accepting requests that permit cluster mutations.
	// Default: NopAuthzProvider (always allows all actions)
	AuthzProvider AuthzProvider

	// AuditLogger records security-relevant events: queries, executed and
	// blocked commands, denied mutations, session deletions.
	// Default: NopAuditLogger (discards all events)
	AuditLogger AuditLogger

	// MessageFilter transforms operator queries before they reach the
	// generator and investigation output before it leaves the service.
	// Default: NopMessageFilter (passes through unchanged)
	MessageFilter MessageFilter

	// DataClassifier determines the sensitivity of captured command
	// output before it is archived or returned.
	// Default: NopDataClassifier (always PUBLIC)
	DataClassifier DataClassifier

	// RequestAuditor captures raw request/response pairs for immutable
	// audit storage.
	// Default: NopRequestAuditor (discards everything)
	RequestAuditor RequestAuditor
}

// DefaultOptions returns ServiceOptions with no-op defaults.
//
// This is the configuration used by the open source version.
// All operations are allowed, no audit trail, no filtering,
// no classification.
//
// Returns:
//   - ServiceOptions with all fields set to no-op implementations
func DefaultOptions() ServiceOptions {
	return ServiceOptions{
		AuthProvider:   &NopAuthProvider{},
		AuthzProvider:  &NopAuthzProvider{},
		AuditLogger:    &NopAuditLogger{},
		MessageFilter:  &NopMessageFilter{},
		DataClassifier: &NopDataClassifier{},
		RequestAuditor: &NopRequestAuditor{},
	}
}

// WithAuth returns a copy of opts with the given AuthProvider.
// Useful for fluent configuration.
func (opts ServiceOptions) WithAuth(provider AuthProvider) ServiceOptions {
	opts.AuthProvider = provider
	return opts
}

// WithAuthz returns a copy of opts with the given AuthzProvider.
func (opts ServiceOptions) WithAuthz(provider AuthzProvider) ServiceOptions {
	opts.AuthzProvider = provider
	return opts
}

// WithAudit returns a copy of opts with the given AuditLogger.
func (opts ServiceOptions) WithAudit(logger AuditLogger) ServiceOptions {
	opts.AuditLogger = logger
	return opts
}

// WithFilter returns a copy of opts with the given MessageFilter.
func (opts ServiceOptions) WithFilter(filter MessageFilter) ServiceOptions {
	opts.MessageFilter = filter
	return opts
}

// WithClassifier returns a copy of opts with the given DataClassifier.
func (opts ServiceOptions) WithClassifier(classifier DataClassifier) ServiceOptions {
	opts.DataClassifier = classifier
	return opts
}

// WithRequestAuditor returns a copy of opts with the given RequestAuditor.
func (opts ServiceOptions) WithRequestAuditor(auditor RequestAuditor) ServiceOptions {
	opts.RequestAuditor = auditor
	return opts
}
