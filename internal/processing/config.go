package processing

import (
	"fmt"
	"strings"
)

// Field is a logical catalog field that spreadsheet columns map onto.
type Field string

const (
	FieldTestName            Field = "test_name"
	FieldGroup               Field = "group"
	FieldMethod              Field = "method"
	FieldUnit                Field = "unit"
	FieldTATDays             Field = "tat_days"
	FieldAccreditationStatus Field = "accreditation_status"
	FieldDepartment          Field = "department"
)

// Fields lists every logical field in projection order.
var Fields = []Field{
	FieldTestName,
	FieldGroup,
	FieldMethod,
	FieldUnit,
	FieldTATDays,
	FieldAccreditationStatus,
	FieldDepartment,
}

func knownField(f Field) bool {
	for _, known := range Fields {
		if f == known {
			return true
		}
	}
	return false
}

// Transform names the per-field cell transform applied before normalization.
type Transform string

const (
	TransformNone  Transform = "none"
	TransformTrim  Transform = "trim"
	TransformUpper Transform = "upper"
	TransformLower Transform = "lower"
	TransformToInt Transform = "toInt"
)

// MappingConfig describes how to read one rate-list layout.
// yaml tags tell our parser how to map the YAML fields to our struct
type MappingConfig struct {
	ServiceName             string              `yaml:"service_name"`
	Variant                 string              `yaml:"variant"`
	Category                string              `yaml:"category,omitempty"`
	DefaultSheet            string              `yaml:"default_sheet,omitempty"`
	HeaderRowIndex          int                 `yaml:"header_row_index"`
	Columns                 map[Field][]string  `yaml:"columns"`
	Transforms              map[Field]Transform `yaml:"transforms,omitempty"`
	SubVerticalColumnName   string              `yaml:"sub_vertical_column,omitempty"`
	SkipGroups              []string            `yaml:"skip_groups,omitempty"`
	PrintableColumnPriority []string            `yaml:"printable_column_priority,omitempty"`
}

// TransformFor returns the configured transform for f, defaulting to none.
func (c *MappingConfig) TransformFor(f Field) Transform {
	if t, ok := c.Transforms[f]; ok && t != "" {
		return t
	}
	return TransformNone
}

// SkipsGroup reports whether a normalized group is on the skip list.
func (c *MappingConfig) SkipsGroup(group string) bool {
	g := strings.ToLower(strings.TrimSpace(group))
	for _, skip := range c.SkipGroups {
		if strings.ToLower(strings.TrimSpace(skip)) == g {
			return true
		}
	}
	return false
}

// Validate checks if the MappingConfig is valid
func (c *MappingConfig) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("config validation failed: service_name is required")
	}
	if c.Variant == "" {
		return fmt.Errorf("config validation failed: variant is required for service '%s'", c.ServiceName)
	}
	if c.HeaderRowIndex < 1 {
		return fmt.Errorf("config validation failed: header_row_index must be 1 or greater, got %d", c.HeaderRowIndex)
	}
	if len(c.Columns[FieldTestName]) == 0 {
		return fmt.Errorf("config validation failed: columns must list at least one alias for '%s'", FieldTestName)
	}

	for field, aliases := range c.Columns {
		if !knownField(field) {
			return fmt.Errorf("config validation failed: unknown field '%s' in columns", field)
		}
		for _, alias := range aliases {
			if strings.TrimSpace(alias) == "" {
				return fmt.Errorf("config validation failed: empty alias for field '%s'", field)
			}
		}
	}

	for field, transform := range c.Transforms {
		if !knownField(field) {
			return fmt.Errorf("config validation failed: unknown field '%s' in transforms", field)
		}
		if _, ok := transformRegistry[transform]; !ok {
			return fmt.Errorf("config validation failed: unknown transform '%s' for field '%s'", transform, field)
		}
	}
	return nil
}
