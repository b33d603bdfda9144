package document

import (
	"fmt"
	"strings"

	"github.com/MarkoPoloResearchLab/permitbot/pkg/permit"
	"github.com/yeqown/go-qrcode"
)

const qrFooter = "PERMISO DIGITAL"

// QRPayload is the text encoded on the second page of the main permit.
func QRPayload(record permit.Permit) string {
	lines := []string{
		"FOLIO: " + record.Folio.String(),
		"NOMBRE: " + record.Application.HolderName,
		"MARCA: " + record.Application.Brand,
		"LINEA: " + record.Application.Model,
		"AÑO: " + record.Application.Year,
		"SERIE: " + record.Application.Serial,
		"MOTOR: " + record.Application.Engine,
		qrFooter,
	}
	return strings.Join(lines, "\n")
}

// writeQR saves a JPEG QR code for payload at path.
func writeQR(path string, payload string) error {
	code, err := qrcode.New(payload)
	if err != nil {
		return fmt.Errorf("document: encode qr: %w", err)
	}
	if err := code.Save(path); err != nil {
		return fmt.Errorf("document: save qr: %w", err)
	}
	return nil
}
