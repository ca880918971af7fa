package workflow

import "errors"

var (
	// ErrDocumentNotPending is returned when a claim is attempted on a
	// document that is not pending (or whose claim is still fresh).
	ErrDocumentNotPending = errors.New("document is not pending")

	// ErrDocumentTerminal is returned for any transition attempted on an
	// approved or rejected document.
	ErrDocumentTerminal = errors.New("document is already approved or rejected")

	// ErrDocumentNotReviewing is returned when approve/reject/skip is called
	// on a document the caller has not claimed.
	ErrDocumentNotReviewing = errors.New("document is not under review")

	// ErrApprovalInProgress is returned when another approval holds the
	// idempotency key for the same document.
	ErrApprovalInProgress = errors.New("approval already in progress")

	// ErrDailyEntryExists is the user-facing duplicate-date conflict.
	ErrDailyEntryExists = errors.New("daily entry already exists for this date")
)
