package permit

import "context"

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing permit operation.
type OperationLog struct {
	Operation string
	Owner     OwnerID
	Folio     Folio
	Status    string
	Detail    string
	Error     error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.operationLogger = logger
	}
}

// WithValidityDays overrides how long an issued permit stays valid.
func WithValidityDays(days int) ServiceOption {
	return func(service *Service) {
		if days > 0 {
			service.validityDays = days
		}
	}
}

// WithDocumentArchiver wires a best-effort archive for rendered documents.
func WithDocumentArchiver(archiver DocumentArchiver) ServiceOption {
	return func(service *Service) {
		service.archiver = archiver
	}
}
