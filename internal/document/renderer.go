// Package document stamps permit data onto PDF templates.
package document

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/MarkoPoloResearchLab/permitbot/pkg/permit"
	"github.com/jung-kurt/gofpdf"
	"github.com/jung-kurt/gofpdf/contrib/gofpdi"
	"go.uber.org/zap"
)

const (
	mediaBox        = "/MediaBox"
	fontFamily      = "Helvetica"
	mainSuffix      = "_main.pdf"
	receiptSuffix   = "_receipt.pdf"
	outputDirMode   = 0o755
	qrTempPattern   = "permit-qr-*.jpg"
	qrImageType     = "JPG"
	defaultTimeZone = "America/Mexico_City"
)

// ErrTemplateMissing is returned when a configured template file cannot be read.
var ErrTemplateMissing = errors.New("document template missing")

// Config locates templates and output.
type Config struct {
	OutputDir       string
	MainTemplate    string
	ReceiptTemplate string
	Location        *time.Location
}

// Renderer implements permit.DocumentRenderer with gofpdf and gofpdi.
type Renderer struct {
	config Config
	logger *zap.Logger
}

// NewRenderer validates the templates and prepares the output directory.
func NewRenderer(config Config, logger *zap.Logger) (*Renderer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Location == nil {
		config.Location = LoadLocation(defaultTimeZone)
	}
	for _, template := range []string{config.MainTemplate, config.ReceiptTemplate} {
		if _, err := os.Stat(template); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrTemplateMissing, template, err)
		}
	}
	if err := os.MkdirAll(config.OutputDir, outputDirMode); err != nil {
		return nil, fmt.Errorf("document: output dir: %w", err)
	}
	return &Renderer{config: config, logger: logger}, nil
}

// Render writes <folio>_main.pdf and <folio>_receipt.pdf into the output directory.
func (renderer *Renderer) Render(ctx context.Context, record permit.Permit) (permit.Documents, error) {
	if err := ctx.Err(); err != nil {
		return permit.Documents{}, err
	}
	documents := permit.Documents{
		MainPath:    filepath.Join(renderer.config.OutputDir, record.Folio.String()+mainSuffix),
		ReceiptPath: filepath.Join(renderer.config.OutputDir, record.Folio.String()+receiptSuffix),
	}
	if err := renderer.renderMain(record, documents.MainPath); err != nil {
		return permit.Documents{}, err
	}
	if err := renderer.renderReceipt(record, documents.ReceiptPath); err != nil {
		_ = os.Remove(documents.MainPath)
		return permit.Documents{}, err
	}
	renderer.logger.Info("documents rendered",
		zap.String("folio", record.Folio.String()),
		zap.String("main", documents.MainPath),
		zap.String("receipt", documents.ReceiptPath),
	)
	return documents, nil
}

func (renderer *Renderer) renderMain(record permit.Permit, outputPath string) (err error) {
	defer recoverRender("main", &err)
	issuedAt := record.IssuedAt.In(renderer.config.Location)
	validUntil := record.ValidUntil.In(renderer.config.Location)

	pdf, importer, err := openTemplate(renderer.config.MainTemplate)
	if err != nil {
		return err
	}
	translate := pdf.UnicodeTranslatorFromDescriptor("")
	stamp := func(style textStyle, text string) {
		pdf.SetFont(fontFamily, "", style.size)
		pdf.SetTextColor(style.r, style.g, style.b)
		pdf.Text(style.x, style.y, translate(text))
	}

	importPage(pdf, importer, renderer.config.MainTemplate, 1)
	pageCount := len(importer.GetPageSizes())
	stamp(mainFolio, record.Folio.String())
	stamp(mainPlate, record.Plate.String())
	stamp(mainIssueDate, LongDate(issuedAt))
	stamp(mainValidity, ShortDate(validUntil))
	stamp(mainBrand, record.Application.Brand)
	stamp(mainSerial, record.Application.Serial)
	stamp(mainModel, record.Application.Model)
	stamp(mainEngine, record.Application.Engine)
	stamp(mainYear, record.Application.Year)
	stamp(mainColor, record.Application.Color)
	stamp(mainVehicleType, record.Application.VehicleType)
	stamp(mainHolderName, record.Application.HolderName)

	if pageCount > 1 {
		importPage(pdf, importer, renderer.config.MainTemplate, 2)
		stamp(secondPageValidity, ShortDate(validUntil))
		qrFile, err := os.CreateTemp("", qrTempPattern)
		if err != nil {
			return fmt.Errorf("%w: qr temp file: %v", permit.ErrDocumentRender, err)
		}
		qrPath := qrFile.Name()
		_ = qrFile.Close()
		defer os.Remove(qrPath)
		if err := writeQR(qrPath, QRPayload(record)); err != nil {
			return fmt.Errorf("%w: %v", permit.ErrDocumentRender, err)
		}
		pdf.ImageOptions(qrPath, qrX, qrY, qrSide, qrSide, false, gofpdf.ImageOptions{ImageType: qrImageType}, 0, "")
	}
	return closePDF(pdf, outputPath)
}

func (renderer *Renderer) renderReceipt(record permit.Permit, outputPath string) (err error) {
	defer recoverRender("receipt", &err)
	issuedAt := record.IssuedAt.In(renderer.config.Location)

	pdf, importer, err := openTemplate(renderer.config.ReceiptTemplate)
	if err != nil {
		return err
	}
	translate := pdf.UnicodeTranslatorFromDescriptor("")
	importPage(pdf, importer, renderer.config.ReceiptTemplate, 1)
	for _, field := range []struct {
		style textStyle
		text  string
	}{
		{style: receiptHolderName, text: record.Application.HolderName},
		{style: receiptFolio, text: record.Folio.String()},
		{style: receiptDate, text: ShortDate(issuedAt)},
		{style: receiptTime, text: ClockTime(issuedAt)},
	} {
		pdf.SetFont(fontFamily, "", field.style.size)
		pdf.SetTextColor(field.style.r, field.style.g, field.style.b)
		pdf.Text(field.style.x, field.style.y, translate(field.text))
	}
	return closePDF(pdf, outputPath)
}

// openTemplate returns an empty point-based document and an importer for path.
func openTemplate(path string) (*gofpdf.Fpdf, *gofpdi.Importer, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, nil, fmt.Errorf("%w: %w: %s", permit.ErrDocumentRender, ErrTemplateMissing, path)
	}
	pdf := gofpdf.NewCustom(&gofpdf.InitType{UnitStr: "pt", Size: gofpdf.SizeType{Wd: 612, Ht: 792}})
	pdf.SetAutoPageBreak(false, 0)
	return pdf, gofpdi.NewImporter(), nil
}

func importPage(pdf *gofpdf.Fpdf, importer *gofpdi.Importer, path string, page int) {
	template := importer.ImportPage(pdf, path, page, mediaBox)
	size := importer.GetPageSizes()[page][mediaBox]
	width, height := size["w"], size["h"]
	pdf.AddPageFormat("P", gofpdf.SizeType{Wd: width, Ht: height})
	importer.UseImportedTemplate(pdf, template, 0, 0, width, height)
}

func closePDF(pdf *gofpdf.Fpdf, outputPath string) error {
	if err := pdf.OutputFileAndClose(outputPath); err != nil {
		return fmt.Errorf("%w: write %s: %v", permit.ErrDocumentRender, outputPath, err)
	}
	return nil
}

// recoverRender turns importer panics on malformed templates into errors.
func recoverRender(name string, err *error) {
	if recovered := recover(); recovered != nil {
		*err = fmt.Errorf("%w: %s template: %v", permit.ErrDocumentRender, name, recovered)
	}
}
