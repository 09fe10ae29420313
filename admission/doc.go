// Package admission bounds concurrent sandbox executions.
//
// The admission package provides a FIFO slot controller: at most the
// configured number of sandboxes run at once, excess requests queue up
// to a wait timeout and then fail with ErrAdmissionTimeout.
package admission
