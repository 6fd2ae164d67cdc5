// Opsgate - Session and Role Authorization Gateway for the Lalaba Admin Console
// Copyright 2026 Lalaba Dev Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lalaba-dev/opsgate

package role

import (
	"errors"
	"fmt"
)

// Reason names a role-resolution failure mode. The reasons are part of the
// public error contract: the session store records them and the console
// shows a matching message.
type Reason string

const (
	// ReasonClaimMissing: the signed token carried no usable role claim and
	// no profile store is configured to fall back to.
	ReasonClaimMissing Reason = "claim_missing"

	// ReasonProfileMissing: no profile record exists for the principal.
	ReasonProfileMissing Reason = "profile_missing"

	// ReasonProfileRoleInvalid: a profile record exists but its role field
	// is absent or outside the closed role set.
	ReasonProfileRoleInvalid Reason = "profile_role_invalid"

	// ReasonProfileUnavailable: the profile store could not be reached.
	// Not retried automatically; the console surfaces a retry affordance.
	ReasonProfileUnavailable Reason = "profile_unavailable"
)

// ResolutionError is returned when neither role source yields a valid role.
// It never carries a fallback role: an unresolved role stays unresolved.
type ResolutionError struct {
	Reason Reason
	Err    error
}

// Error implements the error interface.
func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("role resolution failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("role resolution failed (%s)", e.Reason)
}

// Unwrap returns the underlying cause, if any.
func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// ReasonOf extracts the failure reason from err.
// Returns false if err is not a ResolutionError.
func ReasonOf(err error) (Reason, bool) {
	var re *ResolutionError
	if errors.As(err, &re) {
		return re.Reason, true
	}
	return "", false
}
