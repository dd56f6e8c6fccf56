// Package normalize turns raw IGP records into storage-ready ones.
//
// The IGP API ships the calendar date and the clock time of an event as two
// separate ISO fields, the time riding on a 1970-01-01 placeholder date
// (e.g. fecha_local "2025-01-01T00:00:00.000Z", hora_local
// "1970-01-01T12:08:29.000Z"). Normalization reconstitutes the real event
// instant in fecha_hora_local, stamps procesado_en, guarantees an id, and
// coerces the known numeric fields to exact decimals.
package normalize

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dquispe/sismo-sync/internal/models"
)

// Coerced numeric fields must serialize back as JSON numbers, not strings.
func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// numericFields lists the record keys coerced to decimal. Everything else
// passes through untouched.
var numericFields = [...]string{"magnitud", "profundidad", "latitud", "longitud"}

const isoMillisZ = "2006-01-02T15:04:05.000Z07:00"

// isoLayouts are tried in order when parsing upstream instants: RFC3339
// first, then the explicit with/without-fraction layouts that treat a bare
// trailing Z as UTC.
var isoLayouts = [...]string{
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05Z",
}

// Normalize derives a storage-ready record from a raw one. The input is never
// mutated. Every output record has a non-empty id.
func Normalize(raw models.Record) models.Record {
	out := raw.Clone()

	if out.ID() == "" {
		out["id"] = uuid.NewString()
	}

	fecha, _ := out["fecha_local"].(string)
	hora, _ := out["hora_local"].(string)
	if merged, ok := MergeFechaHora(fecha, hora); ok {
		out["fecha_hora_local"] = merged
	} else {
		out["fecha_hora_local"] = nil
	}

	out["procesado_en"] = FormatInstant(clock.Now())

	coerceNumbers(out)

	return out
}

// MergeFechaHora combines the date field and the time field into one UTC
// instant, formatted with FormatInstant. Returns false when the date does not
// parse. A missing or unparseable time degrades to the date alone.
func MergeFechaHora(fecha, hora string) (string, bool) {
	f, ok := ParseInstant(fecha)
	if !ok {
		return "", false
	}

	h, ok := ParseInstant(hora)
	if !ok {
		return FormatInstant(f), true
	}

	merged := time.Date(
		f.Year(), f.Month(), f.Day(),
		h.Hour(), h.Minute(), h.Second(), h.Nanosecond(),
		time.UTC,
	)
	return FormatInstant(merged), true
}

// ParseInstant parses an upstream ISO-8601 instant, accepting a literal Z
// suffix and an optional fractional second.
func ParseInstant(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatInstant renders a UTC ISO-8601 string with millisecond precision and
// a literal Z suffix, never a numeric offset.
func FormatInstant(t time.Time) string {
	return t.UTC().Format(isoMillisZ)
}

// coerceNumbers applies the numeric field schema in place. Each present,
// non-null, non-empty value is converted to an exact decimal; a value that
// does not convert is left exactly as it arrived.
func coerceNumbers(rec models.Record) {
	for _, key := range numericFields {
		val, present := rec[key]
		if !present || val == nil {
			continue
		}
		if d, ok := toDecimal(val); ok {
			rec[key] = d
		}
	}
}

func toDecimal(val any) (decimal.Decimal, bool) {
	switch v := val.(type) {
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		return d, err == nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return decimal.Decimal{}, false
		}
		d, err := decimal.NewFromString(s)
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case decimal.Decimal:
		return v, true
	default:
		return decimal.Decimal{}, false
	}
}
