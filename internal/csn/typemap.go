package csn

import "strings"

// csnTypeMap maps declared CSN types to the engine's semantic type set.
// Types missing from this table degrade to TypeString (never a hard
// failure — schemas evolve faster than the engine).
var csnTypeMap = map[string]SemanticType{
	"cds.string":       TypeString,
	"cds.largestring":  TypeString,
	"cds.uuid":         TypeString,
	"cds.integer":      TypeInteger,
	"cds.integer64":    TypeInteger,
	"cds.int16":        TypeInteger,
	"cds.int32":        TypeInteger,
	"cds.int64":        TypeInteger,
	"cds.uint8":        TypeInteger,
	"cds.decimal":      TypeDecimal,
	"cds.decimalfloat": TypeDecimal,
	"cds.double":       TypeDecimal,
	"cds.boolean":      TypeBoolean,
	"cds.date":         TypeDate,
	"cds.time":         TypeTime,
	"cds.datetime":     TypeTimestamp,
	"cds.timestamp":    TypeTimestamp,
	"cds.binary":       TypeBlob,
	"cds.largebinary":  TypeBlob,

	// Bare spellings without the cds. prefix show up in hand-written
	// schema files.
	"string":    TypeString,
	"integer":   TypeInteger,
	"decimal":   TypeDecimal,
	"boolean":   TypeBoolean,
	"date":      TypeDate,
	"time":      TypeTime,
	"timestamp": TypeTimestamp,
	"blob":      TypeBlob,
}

// mapType resolves a declared CSN type name to a semantic type. The second
// return value is false when the type was unknown and degraded to string.
func mapType(declared string) (SemanticType, bool) {
	t, ok := csnTypeMap[strings.ToLower(declared)]
	if !ok {
		return TypeString, false
	}
	return t, true
}

// isAssociationType reports whether a CSN element type declares a managed
// association or composition rather than a scalar field.
func isAssociationType(declared string) (ownership Ownership, ok bool) {
	switch strings.ToLower(declared) {
	case "cds.association", "association":
		return OwnReference, true
	case "cds.composition", "composition":
		return OwnComposition, true
	default:
		return "", false
	}
}
