package types

import "strings"

// Field identifies one of the fixed sensor measurements carried by a Reading.
type Field int

const (
	FieldCO Field = iota
	FieldPT08S1
	FieldNMHC
	FieldC6H6
	FieldPT08S2
	FieldNOx
	FieldPT08S3
	FieldNO2
	FieldPT08S4
	FieldPT08S5
	FieldT
	FieldRH
	FieldAH

	// NumFields is the number of measurement fields.
	NumFields = int(FieldAH) + 1
)

// FieldDescriptor describes how a field is named in queries, in the source
// file header and in the SQL store.
type FieldDescriptor struct {
	Field       Field
	Name        string // Query and document name (e.g., "CO")
	Header      string // Source file column (e.g., "CO(GT)")
	Column      string // SQL column (e.g., "co")
	Unit        string
	Description string
}

// fields is listed in source file column order.
var fields = [NumFields]FieldDescriptor{
	{FieldCO, "CO", "CO(GT)", "co", "mg/m³", "true hourly averaged CO concentration"},
	{FieldPT08S1, "PT08S1", "PT08.S1(CO)", "pt08_s1", "", "tin oxide sensor response (CO targeted)"},
	{FieldNMHC, "NMHC", "NMHC(GT)", "nmhc", "µg/m³", "true hourly averaged non-methane hydrocarbons"},
	{FieldC6H6, "C6H6", "C6H6(GT)", "c6h6", "µg/m³", "true hourly averaged benzene concentration"},
	{FieldPT08S2, "PT08S2", "PT08.S2(NMHC)", "pt08_s2", "", "titania sensor response (NMHC targeted)"},
	{FieldNOx, "NOx", "NOx(GT)", "nox", "ppb", "true hourly averaged NOx concentration"},
	{FieldPT08S3, "PT08S3", "PT08.S3(NOx)", "pt08_s3", "", "tungsten oxide sensor response (NOx targeted)"},
	{FieldNO2, "NO2", "NO2(GT)", "no2", "µg/m³", "true hourly averaged NO2 concentration"},
	{FieldPT08S4, "PT08S4", "PT08.S4(NO2)", "pt08_s4", "", "tungsten oxide sensor response (NO2 targeted)"},
	{FieldPT08S5, "PT08S5", "PT08.S5(O3)", "pt08_s5", "", "indium oxide sensor response (O3 targeted)"},
	{FieldT, "T", "T", "t", "°C", "temperature"},
	{FieldRH, "RH", "RH", "rh", "%", "relative humidity"},
	{FieldAH, "AH", "AH", "ah", "g/m³", "absolute humidity"},
}

// Fields returns the descriptors of all measurement fields in column order.
func Fields() []FieldDescriptor {
	out := make([]FieldDescriptor, NumFields)
	copy(out, fields[:])
	return out
}

// AllFields returns every Field in column order.
func AllFields() []Field {
	out := make([]Field, NumFields)
	for i := range out {
		out[i] = Field(i)
	}
	return out
}

// Descriptor returns the descriptor of f.
func (f Field) Descriptor() FieldDescriptor {
	if !f.Valid() {
		return FieldDescriptor{Field: f}
	}
	return fields[f]
}

// Valid reports whether f is one of the known fields.
func (f Field) Valid() bool {
	return f >= 0 && int(f) < NumFields
}

// String returns the query name of the field.
func (f Field) String() string {
	if !f.Valid() {
		return "unknown"
	}
	return fields[f].Name
}

// Column returns the SQL column name of the field.
func (f Field) Column() string {
	return f.Descriptor().Column
}

// LookupField resolves a query name or source header to a Field.
// Query names are matched exactly; headers are matched ignoring surrounding space.
func LookupField(name string) (Field, bool) {
	for i := range fields {
		if fields[i].Name == name {
			return fields[i].Field, true
		}
	}
	trimmed := strings.TrimSpace(name)
	for i := range fields {
		if fields[i].Header == trimmed {
			return fields[i].Field, true
		}
	}
	return 0, false
}

// FieldNames returns the valid parameter names in column order.
func FieldNames() []string {
	names := make([]string, NumFields)
	for i := range fields {
		names[i] = fields[i].Name
	}
	return names
}
