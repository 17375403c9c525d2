package atomizer

import "errors"

var (
	// Store errors.
	ErrNoStore     = errors.New("atomizer: no store configured")
	ErrStoreClosed = errors.New("atomizer: store closed")

	// Not found errors.
	ErrJobNotFound      = errors.New("atomizer: job not found")
	ErrScheduleNotFound = errors.New("atomizer: schedule not found")

	// State errors.
	ErrJobNotFailed = errors.New("atomizer: job has not failed")

	// Conflict errors.
	ErrJobAlreadyExists        = errors.New("atomizer: job already exists")
	ErrDuplicateIdempotencyKey = errors.New("atomizer: duplicate idempotency key")
	ErrLockNotAcquired         = errors.New("atomizer: lock not acquired")

	// Validation errors.
	ErrInvalidQueueKey      = errors.New("atomizer: invalid queue key")
	ErrInvalidJobKey        = errors.New("atomizer: invalid job key")
	ErrInvalidLeaseToken    = errors.New("atomizer: invalid lease token")
	ErrInvalidRetryStrategy = errors.New("atomizer: invalid retry strategy")
	ErrInvalidSchedule      = errors.New("atomizer: invalid schedule")

	// Dispatch errors.
	ErrMissingPayloadType = errors.New("atomizer: job has no payload type")
	ErrHandlerNotFound    = errors.New("atomizer: no handler registered for payload type")
	ErrEmptyPayload       = errors.New("atomizer: payload deserialized to no value")

	// Lifecycle errors.
	ErrAlreadyStarted = errors.New("atomizer: already started")
)
