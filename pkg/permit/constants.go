package permit

import "time"

const (
	operationIssue      = "issue"
	operationPayment    = "payment"
	operationAdminClear = "admin_clear"
	operationExpire     = "expire"
	operationRecover    = "recover"
	operationSweep      = "sweep"
	operationNotify     = "notify"

	operationStatusOK       = "ok"
	operationStatusError    = "error"
	operationStatusDegraded = "degraded"

	errorOperationAllocator = "allocator"
	errorOperationService   = "service"
	errorSubjectFolio       = "folio"
	errorSubjectPlate       = "plate"
	errorSubjectDocuments   = "documents"
	errorSubjectPermit      = "permit"
	errorSubjectReservation = "reservation"
	errorCodeExhausted      = "exhausted"
	errorCodeRender         = "render"
	errorCodePersist        = "persist"
	errorCodeSchedule       = "schedule"

	// DefaultFolioPrefix is prepended to every folio sequence number.
	DefaultFolioPrefix = "345"
	// DefaultFolioAttempts bounds collision retries per allocation.
	DefaultFolioAttempts = 5
	// DefaultPlateSeed is the plate the sequence continues from when no state exists.
	DefaultPlateSeed = "GSR1989"

	DefaultPaymentWindow = 2 * time.Hour
	DefaultReminderMarks = 4
	DefaultFinalNotice   = 10 * time.Minute
	DefaultValidityDays  = 30

	minimumModelYear = 1980
	plateLetters     = 3
	plateDigits      = 4
	plateMaxSuffix   = 9999
	alphabet         = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)
