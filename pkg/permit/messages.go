package permit

import (
	"fmt"
	"time"
)

func reminderText(folio Folio, remaining time.Duration) string {
	return fmt.Sprintf(
		"⏰ Recordatorio: el folio %s sigue pendiente de pago.\nTe quedan %d minutos para enviar tu comprobante.",
		folio, int(remaining.Round(time.Minute).Minutes()),
	)
}

func finalNoticeText(folio Folio, remaining time.Duration) string {
	return fmt.Sprintf(
		"⚠️ Último aviso: el folio %s será cancelado en %d minutos si no recibimos tu comprobante.",
		folio, int(remaining.Round(time.Minute).Minutes()),
	)
}

func expiredText(folio Folio) string {
	return fmt.Sprintf(
		"❌ El folio %s fue cancelado por falta de pago.\nPuedes iniciar un nuevo trámite con /permiso.",
		folio,
	)
}

func paymentReceivedText(folio Folio) string {
	return fmt.Sprintf(
		"✅ Comprobante recibido para el folio %s.\nTu permiso queda activo y el temporizador fue detenido.",
		folio,
	)
}

func adminClearedText(folio Folio) string {
	return fmt.Sprintf(
		"✅ El pago del folio %s fue validado por administración.\nTu permiso queda activo.",
		folio,
	)
}
