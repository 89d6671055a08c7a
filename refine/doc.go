// Package refine implements the bounded regenerate-with-feedback loop.
//
// A loop repeatedly re-invokes a stage generator with the accumulated
// feedback from prior validation reports until the validator passes the
// result or the iteration budget runs out. Feedback only ever grows: each
// failing report's issues are appended to what the model has already been
// told, so it sees the cumulative history of what was wrong.
//
// The loop is strictly sequential by construction: every generation depends
// on the previous iteration's verdict. Independent loops for different
// artifact kinds may run concurrently.
package refine
