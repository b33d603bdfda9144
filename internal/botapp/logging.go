package botapp

import (
	"context"

	"github.com/MarkoPoloResearchLab/permitbot/pkg/permit"
	"go.uber.org/zap"
)

type zapOperationLogger struct {
	logger *zap.Logger
}

// NewOperationLogger writes permit operation records to logger.
func NewOperationLogger(logger *zap.Logger) permit.OperationLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return zapOperationLogger{logger: logger}
}

func (operationLogger zapOperationLogger) LogOperation(ctx context.Context, entry permit.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	if !entry.Owner.IsZero() {
		fields = append(fields, zap.Int64("owner", entry.Owner.Int64()))
	}
	if !entry.Folio.IsZero() {
		fields = append(fields, zap.String("folio", entry.Folio.String()))
	}
	if entry.Detail != "" {
		fields = append(fields, zap.String("detail", entry.Detail))
	}
	if entry.Error != nil {
		operationLogger.logger.Warn("permit operation failed", append(fields, zap.Error(entry.Error))...)
		return
	}
	operationLogger.logger.Info("permit operation", fields...)
}
