package bot

import (
	"fmt"
	"strings"

	"github.com/MarkoPoloResearchLab/permitbot/pkg/permit"
)

const (
	textWelcome = "👋 Bienvenido al sistema de permisos digitales.\n\n" +
		"Usa /permiso para tramitar un permiso de circulación.\n" +
		"Usa /cancel para cancelar un trámite en curso."
	textCancelled  = "❌ Trámite cancelado. Puedes iniciar uno nuevo con /permiso."
	textFallback   = "ℹ️ Para tramitar un permiso usa /permiso.\nSi ya pagaste, envía la fotografía de tu comprobante."
	textRestart    = "🔄 Empecemos de nuevo."
	textProcessing = "🔄 Procesando tu documentación, por favor espera..."
	textRetryLater = "❌ No fue posible asignar un folio en este momento.\nPor favor intenta nuevamente con /permiso."
	textSystemFail = "❌ Ocurrió un problema técnico al generar tu permiso.\nPor favor intenta nuevamente con /permiso."
	textTryAgain   = "Intenta nuevamente:"
	textNoPending  = "ℹ️ No hay permisos pendientes de pago.\n\n" +
		"No encontramos ningún permiso pendiente de pago en tu cuenta.\n" +
		"Si deseas tramitar un permiso nuevo usa /permiso."
)

var stepPrompts = map[permit.Step]string{
	permit.StepBrand:       "🚗 Indica la MARCA del vehículo:",
	permit.StepModel:       "Indica la LÍNEA o MODELO del vehículo:",
	permit.StepYear:        "Indica el AÑO del vehículo (4 dígitos):",
	permit.StepSerial:      "Indica el NÚMERO DE SERIE:",
	permit.StepEngine:      "Indica el NÚMERO DE MOTOR:",
	permit.StepColor:       "Indica el COLOR del vehículo:",
	permit.StepVehicleType: "Indica el TIPO de vehículo (automóvil, camioneta, motocicleta, etc.):",
	permit.StepHolderName:  "Para finalizar, indica el NOMBRE COMPLETO del titular:",
}

var stepHints = map[permit.Step]string{
	permit.StepBrand:        "La marca debe tener al menos 2 caracteres.",
	permit.StepModel:        "La línea no puede estar vacía.",
	permit.StepYear:         "El año debe tener 4 dígitos y ser válido.",
	permit.StepSerial:       "El número de serie debe tener entre 5 y 25 caracteres.",
	permit.StepEngine:       "El número de motor debe tener entre 3 y 25 caracteres.",
	permit.StepColor:        "El color debe tener entre 3 y 20 caracteres. Ejemplos: ROJO, AZUL, BLANCO.",
	permit.StepVehicleType:  "El tipo debe tener entre 3 y 25 caracteres. Ejemplos: AUTOMÓVIL, CAMIONETA.",
	permit.StepHolderName:   "Incluye nombre(s) y apellido(s), entre 5 y 60 caracteres. Ejemplo: JUAN PÉREZ GARCÍA.",
	permit.StepConfirmation: "Responde SI para generar el permiso o NO para capturar de nuevo.",
}

var costKeywords = []string{"costo", "precio", "cuanto", "cuánto", "deposito", "depósito", "pago", "valor", "monto"}

func promptFor(step permit.Step) string {
	return stepPrompts[step]
}

func validationText(validationError permit.ValidationError) string {
	hint := stepHints[validationError.Step]
	if hint == "" {
		hint = validationError.Rule
	}
	return fmt.Sprintf("⚠️ Dato inválido.\n%s\n\n%s", hint, textTryAgain)
}

func confirmationText(application permit.Application) string {
	return fmt.Sprintf(
		"📋 Verifica tus datos:\n"+
			"Marca: %s\nLínea: %s\nAño: %s\nSerie: %s\nMotor: %s\nColor: %s\nTipo: %s\nTitular: %s\n\n%s",
		application.Brand, application.Model, application.Year, application.Serial,
		application.Engine, application.Color, application.VehicleType, application.HolderName,
		stepHints[permit.StepConfirmation],
	)
}

func mainCaption(record permit.Permit, validityDays int) string {
	return fmt.Sprintf("📋 PERMISO DE CIRCULACIÓN\nFolio: %s\nPlaca: %s\nVigencia: %d días", record.Folio, record.Plate, validityDays)
}

func receiptCaption(record permit.Permit) string {
	return fmt.Sprintf("📋 COMPROBANTE DE VERIFICACIÓN\nSerie: %s", record.Application.Serial)
}

func paymentText(record permit.Permit, price string, window string, instructions string) string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "💰 INSTRUCCIONES PARA EL PAGO\n\n📄 Folio: %s\n💵 Monto: %s\n⏰ Tiempo límite: %s\n", record.Folio, price, window)
	if instructions != "" {
		builder.WriteString("\n")
		builder.WriteString(instructions)
		builder.WriteString("\n")
	}
	fmt.Fprintf(&builder, "\n📸 Envía la fotografía de tu comprobante para validar el trámite.\n"+
		"⚠️ Si no recibimos el pago a tiempo, el folio %s será eliminado automáticamente.", record.Folio)
	return builder.String()
}

func priceText(price string) string {
	return fmt.Sprintf("💵 El costo del permiso es %s.\nUsa /permiso para iniciar tu trámite.", price)
}

func clarificationText(pending []permit.Folio) string {
	names := make([]string, 0, len(pending))
	for _, folio := range pending {
		names = append(names, folio.String())
	}
	return fmt.Sprintf(
		"📄 Tienes varios folios pendientes: %s.\nReenvía tu comprobante escribiendo el folio en el texto de la foto.",
		strings.Join(names, ", "),
	)
}

func adminFormatText(tag string, prefix string) string {
	return fmt.Sprintf("⚠️ Formato incorrecto.\nUtiliza %s[folio], por ejemplo %s%s1234.", tag, tag, prefix)
}

func adminClearedText(folio permit.Folio, owner permit.OwnerID) string {
	return fmt.Sprintf("✅ Folio %s validado.\nTemporizador detenido, usuario %s notificado.", folio, owner)
}

func adminNotFoundText(folio string) string {
	return fmt.Sprintf("❌ No hay una reserva activa para el folio %s.\nPuede haber expirado o ya estar pagado.", folio)
}
