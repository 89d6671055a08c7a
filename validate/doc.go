// Package validate scores produced artifacts against structural and content
// rules.
//
// Validation is a pure function of the artifact and the fixed rule set: no
// external calls, no clock-dependent verdicts, so it is safe to run
// repeatedly. A fail verdict is an expected outcome consumed by the
// refinement loop, never an error.
package validate
