package document

import (
	"fmt"
	"time"
)

var spanishMonths = [...]string{
	"ENERO", "FEBRERO", "MARZO", "ABRIL", "MAYO", "JUNIO",
	"JULIO", "AGOSTO", "SEPTIEMBRE", "OCTUBRE", "NOVIEMBRE", "DICIEMBRE",
}

// LongDate formats t as "02 DE MARZO DEL 2025".
func LongDate(t time.Time) string {
	return fmt.Sprintf("%02d DE %s DEL %d", t.Day(), spanishMonths[t.Month()-1], t.Year())
}

// ShortDate formats t as dd/mm/yyyy.
func ShortDate(t time.Time) string {
	return t.Format("02/01/2006")
}

// ClockTime formats t as HH:MM:SS.
func ClockTime(t time.Time) string {
	return t.Format("15:04:05")
}

// LoadLocation resolves name, falling back to UTC when the zone database lacks it.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	location, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return location
}
