// adaptorlib - Enterprise Search Appliance adaptor core
// SPDX-License-Identifier: Apache-2.0

// Package adaptorerr collects the sentinel errors that make up the
// error taxonomy of the adaptor core. Components wrap one of these with
// fmt.Errorf("...: %w", ...) so callers can classify failures with
// errors.Is/errors.As instead of string matching or typed panics.
package adaptorerr

import "errors"

var (
	// ErrTransientIO marks a network hiccup talking to the Appliance that
	// should be retried locally (backoff) before surfacing anywhere.
	ErrTransientIO = errors.New("adaptorlib: transient I/O error")

	// ErrPermanentIO marks an Appliance response that will never succeed
	// on retry (4xx, malformed body) once the retry budget is exhausted.
	ErrPermanentIO = errors.New("adaptorlib: permanent I/O error")

	// ErrMalformedID marks an inbound path that does not decode to a
	// valid DocId.
	ErrMalformedID = errors.New("adaptorlib: malformed document id")

	// ErrAuthnFailure marks a SAML assertion that failed validation.
	ErrAuthnFailure = errors.New("adaptorlib: SAML authentication failed")

	// ErrAuthzDenied marks a valid principal denied access to a resource.
	ErrAuthzDenied = errors.New("adaptorlib: authorization denied")

	// ErrAdaptorFault marks an error returned by the embedding Adaptor
	// implementation, as opposed to one originating in this library.
	ErrAdaptorFault = errors.New("adaptorlib: adaptor implementation fault")

	// ErrFatal marks a startup error that should abort Controller.Start
	// and exit the process: bind failure, unreadable keystore, adaptor
	// init failure.
	ErrFatal = errors.New("adaptorlib: fatal startup error")

	// ErrAlreadyStarted is returned by Controller.Start when called a
	// second time on a running controller.
	ErrAlreadyStarted = errors.New("adaptorlib: controller already started")

	// ErrNotStarted is returned by Controller.Stop when called before
	// Start, or after a previous Stop has completed.
	ErrNotStarted = errors.New("adaptorlib: controller not started")
)
