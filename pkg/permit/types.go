package permit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// OwnerID identifies the requesting chat user.
type OwnerID struct {
	value int64
}

// NewOwnerID validates a transport handle. Zero is reserved.
func NewOwnerID(raw int64) (OwnerID, error) {
	if raw == 0 {
		return OwnerID{}, fmt.Errorf("%w: zero value", ErrInvalidOwnerID)
	}
	return OwnerID{value: raw}, nil
}

// Int64 returns the raw handle.
func (id OwnerID) Int64() int64 {
	return id.value
}

// String returns the decimal handle.
func (id OwnerID) String() string {
	return strconv.FormatInt(id.value, 10)
}

// IsZero reports whether the id was never set.
func (id OwnerID) IsZero() bool {
	return id.value == 0
}

// Folio is the permit tracking number: prefix followed by a sequence number.
type Folio struct {
	value string
}

// NewFolio validates and normalizes a folio.
func NewFolio(raw string) (Folio, error) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	if normalized == "" {
		return Folio{}, fmt.Errorf("%w: empty value", ErrInvalidFolio)
	}
	if strings.ContainsAny(normalized, " \t\r\n") {
		return Folio{}, fmt.Errorf("%w: contains whitespace", ErrInvalidFolio)
	}
	return Folio{value: normalized}, nil
}

// ComposeFolio joins a prefix and a sequence number.
func ComposeFolio(prefix string, sequence int64) Folio {
	return Folio{value: prefix + strconv.FormatInt(sequence, 10)}
}

// String returns the normalized folio.
func (folio Folio) String() string {
	return folio.value
}

// IsZero reports whether the folio was never set.
func (folio Folio) IsZero() bool {
	return folio.value == ""
}

// HasPrefix reports whether the folio belongs to the given numbering scheme.
func (folio Folio) HasPrefix(prefix string) bool {
	return len(folio.value) > len(prefix) && strings.HasPrefix(folio.value, prefix)
}

// Sequence extracts the numeric part after prefix.
func (folio Folio) Sequence(prefix string) (int64, error) {
	if !folio.HasPrefix(prefix) {
		return 0, fmt.Errorf("%w: %q lacks prefix %q", ErrInvalidFolio, folio.value, prefix)
	}
	sequence, err := strconv.ParseInt(folio.value[len(prefix):], 10, 64)
	if err != nil || sequence <= 0 {
		return 0, fmt.Errorf("%w: %q has no sequence", ErrInvalidFolio, folio.value)
	}
	return sequence, nil
}

// Plate is a digital plate: three letters followed by four digits.
type Plate struct {
	value string
}

// NewPlate validates a plate string.
func NewPlate(raw string) (Plate, error) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	if len(normalized) != plateLetters+plateDigits {
		return Plate{}, fmt.Errorf("%w: %q must have %d characters", ErrInvalidPlate, raw, plateLetters+plateDigits)
	}
	for index, character := range normalized {
		if index < plateLetters && (character < 'A' || character > 'Z') {
			return Plate{}, fmt.Errorf("%w: %q must start with %d letters", ErrInvalidPlate, raw, plateLetters)
		}
		if index >= plateLetters && (character < '0' || character > '9') {
			return Plate{}, fmt.Errorf("%w: %q must end with %d digits", ErrInvalidPlate, raw, plateDigits)
		}
	}
	return Plate{value: normalized}, nil
}

// String returns the plate text.
func (plate Plate) String() string {
	return plate.value
}

// Status is the persisted lifecycle state of a permit.
type Status string

const (
	StatusPending      Status = "PENDING"
	StatusPaid         Status = "PAID"
	StatusExpired      Status = "EXPIRED"
	StatusAdminCleared Status = "ADMIN_CLEARED"
)

// ParseStatus validates a stored status value.
func ParseStatus(raw string) (Status, error) {
	switch Status(strings.ToUpper(strings.TrimSpace(raw))) {
	case StatusPending:
		return StatusPending, nil
	case StatusPaid:
		return StatusPaid, nil
	case StatusExpired:
		return StatusExpired, nil
	case StatusAdminCleared:
		return StatusAdminCleared, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
}

// String returns the status name.
func (status Status) String() string {
	return string(status)
}

// IsTerminal reports whether no further transition is allowed.
func (status Status) IsTerminal() bool {
	return status != StatusPending
}

// Application is the vehicle data gathered by the intake dialogue.
type Application struct {
	Brand       string `json:"brand,omitempty"`
	Model       string `json:"model,omitempty"`
	Year        string `json:"year,omitempty"`
	Serial      string `json:"serial,omitempty"`
	Engine      string `json:"engine,omitempty"`
	Color       string `json:"color,omitempty"`
	VehicleType string `json:"vehicle_type,omitempty"`
	HolderName  string `json:"holder_name,omitempty"`
}

// Permit is a finalized application with its issued identifiers.
type Permit struct {
	Folio         Folio
	Sequence      int64
	Plate         Plate
	Owner         OwnerID
	OwnerUsername string
	Application   Application
	IssuedAt      time.Time
	ValidUntil    time.Time
	DeadlineAt    time.Time
	Status        Status
	PaidAt        *time.Time
}

// Documents locates the rendered files for one permit.
type Documents struct {
	MainPath    string
	ReceiptPath string
}

// PaymentProof is an inbound proof-of-payment event.
type PaymentProof struct {
	Owner      OwnerID
	Hint       string
	FileID     string
	ReceivedAt time.Time
}

// Snapshot summarizes runtime state for health endpoints.
type Snapshot struct {
	NextFolio          Folio
	ActiveReservations int
}

// Store is the persistence contract used by Service.
type Store interface {
	FolioExists(ctx context.Context, folio Folio) (bool, error)
	MaxFolioSequence(ctx context.Context, prefix string) (int64, error)
	InsertPermit(ctx context.Context, permit Permit) error
	GetPermit(ctx context.Context, folio Folio) (Permit, error)
	UpdatePermitStatus(ctx context.Context, folio Folio, from Status, to Status, at time.Time) error
	// DeletePermit removes folio only while it is PENDING and reports whether a row was removed.
	DeletePermit(ctx context.Context, folio Folio) (bool, error)
	ListPending(ctx context.Context, limit int) ([]Permit, error)
	RecordPaymentProof(ctx context.Context, folio Folio, proof PaymentProof) error
}

// PlateStore persists the last issued plate.
type PlateStore interface {
	LastPlate(ctx context.Context) (string, bool, error)
	SavePlate(ctx context.Context, plate Plate) error
}

// Notifier delivers a best-effort text message to an owner.
type Notifier interface {
	Notify(ctx context.Context, owner OwnerID, text string) error
}

// DocumentRenderer fills the permit templates.
type DocumentRenderer interface {
	Render(ctx context.Context, permit Permit) (Documents, error)
}

// DocumentArchiver copies rendered documents to durable storage.
type DocumentArchiver interface {
	Archive(ctx context.Context, folio Folio, documents Documents) error
}

// SessionStore keeps one intake session per owner.
type SessionStore interface {
	Load(ctx context.Context, owner OwnerID) (Session, bool, error)
	Save(ctx context.Context, owner OwnerID, session Session) error
	Delete(ctx context.Context, owner OwnerID) error
}
