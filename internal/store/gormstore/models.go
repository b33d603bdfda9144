package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PermitRecord represents the permits table.
type PermitRecord struct {
	Folio         string     `gorm:"primaryKey"`
	FolioSequence int64      `gorm:"not null;index:idx_permits_sequence"`
	Plate         string     `gorm:"not null"`
	OwnerID       int64      `gorm:"not null;index:idx_permits_owner_status,priority:1"`
	OwnerUsername string     `gorm:"not null;default:''"`
	Brand         string     `gorm:"not null"`
	Model         string     `gorm:"not null"`
	Year          string     `gorm:"not null"`
	Serial        string     `gorm:"not null"`
	Engine        string     `gorm:"not null"`
	Color         string     `gorm:"not null"`
	VehicleType   string     `gorm:"not null"`
	HolderName    string     `gorm:"not null"`
	Status        string     `gorm:"not null;index:idx_permits_owner_status,priority:2;index:idx_permits_status_deadline,priority:1"`
	IssuedAt      time.Time  `gorm:"not null"`
	ValidUntil    time.Time  `gorm:"not null"`
	DeadlineAt    time.Time  `gorm:"not null;index:idx_permits_status_deadline,priority:2"`
	PaidAt        *time.Time `gorm:""`
	CreatedAt     time.Time  `gorm:"not null"`
	UpdatedAt     time.Time  `gorm:"not null"`
}

func (PermitRecord) TableName() string { return "permits" }

// PermitDraft mirrors the application snapshot and status kept next to each permit.
type PermitDraft struct {
	DraftID   string         `gorm:"type:uuid;primaryKey"`
	Folio     string         `gorm:"not null;uniqueIndex:uniq_permit_drafts_folio"`
	OwnerID   int64          `gorm:"not null"`
	Snapshot  datatypes.JSON `gorm:"not null"`
	Status    string         `gorm:"not null;default:PENDING"`
	CreatedAt time.Time      `gorm:"not null"`
}

func (PermitDraft) TableName() string { return "permit_drafts" }

func (draft *PermitDraft) BeforeCreate(tx *gorm.DB) error {
	if draft.DraftID == "" {
		draft.DraftID = uuid.NewString()
	}
	return nil
}

// PlateSequence holds the single row tracking the last issued plate.
type PlateSequence struct {
	ID        uint      `gorm:"primaryKey;autoIncrement:false"`
	Plate     string    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (PlateSequence) TableName() string { return "plate_sequence" }

// PaymentProofRecord represents the payment_proofs table.
type PaymentProofRecord struct {
	ProofID    string    `gorm:"type:uuid;primaryKey"`
	Folio      string    `gorm:"not null;index:idx_payment_proofs_folio"`
	OwnerID    int64     `gorm:"not null"`
	FileID     string    `gorm:"not null;default:''"`
	Hint       string    `gorm:"not null;default:''"`
	ReceivedAt time.Time `gorm:"not null"`
}

func (PaymentProofRecord) TableName() string { return "payment_proofs" }

func (proof *PaymentProofRecord) BeforeCreate(tx *gorm.DB) error {
	if proof.ProofID == "" {
		proof.ProofID = uuid.NewString()
	}
	return nil
}

// Models lists every table the store needs, in migration order.
func Models() []any {
	return []any{&PermitRecord{}, &PermitDraft{}, &PlateSequence{}, &PaymentProofRecord{}}
}

// Migrate creates or updates the schema.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
