package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/permitbot/pkg/permit"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	plateSequenceRowID    = 1
	pgUniqueViolationCode = "23505"
	sqliteConstraintCode  = 19
	errorOperationStore   = "store"
	errorSubjectPermit    = "permit"
	errorSubjectFolio     = "folio"
	errorSubjectPlate     = "plate"
	errorSubjectProof     = "proof"
	errorCodeCount        = "count"
	errorCodeDelete       = "delete"
	errorCodeDuplicate    = "duplicate"
	errorCodeGet          = "get"
	errorCodeInsert       = "insert"
	errorCodeInvalid      = "invalid"
	errorCodeList         = "list"
	errorCodeMaxSequence  = "max_sequence"
	errorCodeSave         = "save"
	errorCodeUpdateStatus = "update_status"
)

// Store implements permit.Store and permit.PlateStore using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (store *Store) FolioExists(ctx context.Context, folio permit.Folio) (bool, error) {
	var count int64
	err := store.db.WithContext(ctx).
		Model(&PermitRecord{}).
		Where("folio = ?", folio.String()).
		Count(&count).Error
	if err != nil {
		return false, wrapStoreError(errorSubjectFolio, errorCodeCount, err)
	}
	return count > 0, nil
}

func (store *Store) MaxFolioSequence(ctx context.Context, prefix string) (int64, error) {
	var result sqlMax
	err := store.db.WithContext(ctx).
		Model(&PermitRecord{}).
		Select("coalesce(max(folio_sequence),0) as max_sequence").
		Where("folio LIKE ?", stripLikeWildcards(prefix)+"%").
		Scan(&result).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectFolio, errorCodeMaxSequence, err)
	}
	return result.MaxSequence, nil
}

// InsertPermit writes the permit and its draft snapshot in one transaction.
func (store *Store) InsertPermit(ctx context.Context, record permit.Permit) error {
	snapshot, err := json.Marshal(record.Application)
	if err != nil {
		return wrapStoreError(errorSubjectPermit, errorCodeInvalid, err)
	}
	model := newPermitRecord(record)
	draft := PermitDraft{
		Folio:     record.Folio.String(),
		OwnerID:   record.Owner.Int64(),
		Snapshot:  datatypes.JSON(snapshot),
		Status:    model.Status,
		CreatedAt: model.CreatedAt,
	}
	err = store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		if err := transaction.Create(&model).Error; err != nil {
			return err
		}
		return transaction.Create(&draft).Error
	})
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectPermit, errorCodeDuplicate, permit.ErrFolioTaken)
	}
	if err != nil {
		return wrapStoreError(errorSubjectPermit, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) GetPermit(ctx context.Context, folio permit.Folio) (permit.Permit, error) {
	var model PermitRecord
	err := store.db.WithContext(ctx).
		Where("folio = ?", folio.String()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return permit.Permit{}, wrapStoreError(errorSubjectPermit, errorCodeGet, permit.ErrUnknownPermit)
		}
		return permit.Permit{}, wrapStoreError(errorSubjectPermit, errorCodeGet, err)
	}
	mapped, err := mapPermitRecord(model)
	if err != nil {
		return permit.Permit{}, wrapStoreError(errorSubjectPermit, errorCodeInvalid, err)
	}
	return mapped, nil
}

// UpdatePermitStatus moves a permit and its draft from one status to another. A permit not in from is closed.
func (store *Store) UpdatePermitStatus(ctx context.Context, folio permit.Folio, from permit.Status, to permit.Status, at time.Time) error {
	updates := map[string]any{
		"status":     to.String(),
		"updated_at": at.UTC(),
	}
	if to == permit.StatusPaid {
		updates["paid_at"] = at.UTC()
	}
	err := store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		result := transaction.
			Model(&PermitRecord{}).
			Where("folio = ? AND status = ?", folio.String(), from.String()).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return permit.ErrPermitClosed
		}
		return transaction.
			Model(&PermitDraft{}).
			Where("folio = ?", folio.String()).
			Update("status", to.String()).Error
	})
	if err != nil {
		return wrapStoreError(errorSubjectPermit, errorCodeUpdateStatus, err)
	}
	return nil
}

// DeletePermit removes a PENDING permit and its draft and reports whether a row was removed.
// A missing or already closed permit is left alone.
func (store *Store) DeletePermit(ctx context.Context, folio permit.Folio) (bool, error) {
	removed := false
	err := store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		result := transaction.
			Where("folio = ? AND status = ?", folio.String(), permit.StatusPending.String()).
			Delete(&PermitRecord{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		removed = true
		return transaction.Where("folio = ?", folio.String()).Delete(&PermitDraft{}).Error
	})
	if err != nil {
		return false, wrapStoreError(errorSubjectPermit, errorCodeDelete, err)
	}
	return removed, nil
}

// ListPending returns PENDING permits ordered by sequence. A non-positive limit returns all.
func (store *Store) ListPending(ctx context.Context, limit int) ([]permit.Permit, error) {
	query := store.db.WithContext(ctx).
		Where("status = ?", permit.StatusPending.String()).
		Order("folio_sequence ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []PermitRecord
	if err := query.Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectPermit, errorCodeList, err)
	}
	permits := make([]permit.Permit, 0, len(rows))
	for _, row := range rows {
		mapped, err := mapPermitRecord(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectPermit, errorCodeInvalid, err)
		}
		permits = append(permits, mapped)
	}
	return permits, nil
}

func (store *Store) RecordPaymentProof(ctx context.Context, folio permit.Folio, proof permit.PaymentProof) error {
	receivedAt := proof.ReceivedAt.UTC()
	if proof.ReceivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	model := PaymentProofRecord{
		Folio:      folio.String(),
		OwnerID:    proof.Owner.Int64(),
		FileID:     proof.FileID,
		Hint:       proof.Hint,
		ReceivedAt: receivedAt,
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectProof, errorCodeInsert, err)
	}
	return nil
}

// ListPaymentProofs returns the proofs recorded for folio, oldest first.
func (store *Store) ListPaymentProofs(ctx context.Context, folio permit.Folio) ([]permit.PaymentProof, error) {
	var rows []PaymentProofRecord
	err := store.db.WithContext(ctx).
		Where("folio = ?", folio.String()).
		Order("received_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectProof, errorCodeList, err)
	}
	proofs := make([]permit.PaymentProof, 0, len(rows))
	for _, row := range rows {
		owner, err := permit.NewOwnerID(row.OwnerID)
		if err != nil {
			return nil, wrapStoreError(errorSubjectProof, errorCodeInvalid, err)
		}
		proofs = append(proofs, permit.PaymentProof{
			Owner:      owner,
			Hint:       row.Hint,
			FileID:     row.FileID,
			ReceivedAt: row.ReceivedAt,
		})
	}
	return proofs, nil
}

func (store *Store) LastPlate(ctx context.Context) (string, bool, error) {
	var model PlateSequence
	err := store.db.WithContext(ctx).
		Where("id = ?", plateSequenceRowID).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapStoreError(errorSubjectPlate, errorCodeGet, err)
	}
	return model.Plate, true, nil
}

func (store *Store) SavePlate(ctx context.Context, plate permit.Plate) error {
	model := PlateSequence{ID: plateSequenceRowID, Plate: plate.String(), UpdatedAt: time.Now().UTC()}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"plate", "updated_at"}),
		}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectPlate, errorCodeSave, err)
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return permit.WrapError(errorOperationStore, subject, code, err)
}

type sqlMax struct {
	MaxSequence int64
}

func newPermitRecord(record permit.Permit) PermitRecord {
	now := time.Now().UTC()
	var paidAt *time.Time
	if record.PaidAt != nil {
		value := record.PaidAt.UTC()
		paidAt = &value
	}
	status := record.Status
	if status == "" {
		status = permit.StatusPending
	}
	return PermitRecord{
		Folio:         record.Folio.String(),
		FolioSequence: record.Sequence,
		Plate:         record.Plate.String(),
		OwnerID:       record.Owner.Int64(),
		OwnerUsername: record.OwnerUsername,
		Brand:         record.Application.Brand,
		Model:         record.Application.Model,
		Year:          record.Application.Year,
		Serial:        record.Application.Serial,
		Engine:        record.Application.Engine,
		Color:         record.Application.Color,
		VehicleType:   record.Application.VehicleType,
		HolderName:    record.Application.HolderName,
		Status:        status.String(),
		IssuedAt:      record.IssuedAt.UTC(),
		ValidUntil:    record.ValidUntil.UTC(),
		DeadlineAt:    record.DeadlineAt.UTC(),
		PaidAt:        paidAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func mapPermitRecord(row PermitRecord) (permit.Permit, error) {
	folio, err := permit.NewFolio(row.Folio)
	if err != nil {
		return permit.Permit{}, err
	}
	owner, err := permit.NewOwnerID(row.OwnerID)
	if err != nil {
		return permit.Permit{}, err
	}
	status, err := permit.ParseStatus(row.Status)
	if err != nil {
		return permit.Permit{}, err
	}
	var plate permit.Plate
	if row.Plate != "" {
		plate, err = permit.NewPlate(row.Plate)
		if err != nil {
			return permit.Permit{}, err
		}
	}
	return permit.Permit{
		Folio:         folio,
		Sequence:      row.FolioSequence,
		Plate:         plate,
		Owner:         owner,
		OwnerUsername: row.OwnerUsername,
		Application: permit.Application{
			Brand:       row.Brand,
			Model:       row.Model,
			Year:        row.Year,
			Serial:      row.Serial,
			Engine:      row.Engine,
			Color:       row.Color,
			VehicleType: row.VehicleType,
			HolderName:  row.HolderName,
		},
		IssuedAt:   row.IssuedAt,
		ValidUntil: row.ValidUntil,
		DeadlineAt: row.DeadlineAt,
		Status:     status,
		PaidAt:     row.PaidAt,
	}, nil
}

func stripLikeWildcards(value string) string {
	replacer := strings.NewReplacer(`%`, ``, `_`, ``)
	return replacer.Replace(value)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
