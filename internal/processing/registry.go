package processing

import (
	"strings"

	"github.com/jjckrbbt/labcatalog/internal/normalize"
)

// TransformFunc defines the signature for any cell transformation function.
// A nil input is an absent cell; a nil result means the field is null.
type TransformFunc func(input any) any

var transformRegistry = make(map[Transform]TransformFunc)

// init runs when the package is loaded, registering our built-in functions
func init() {
	transformRegistry[TransformNone] = transformNone
	transformRegistry[""] = transformNone
	transformRegistry[TransformTrim] = transformTrim
	transformRegistry[TransformUpper] = transformUpper
	transformRegistry[TransformLower] = transformLower
	transformRegistry[TransformToInt] = transformToInt
}

// applyTransform runs the named transform, falling back to none for
// names that are not registered. Config validation rejects those earlier.
func applyTransform(name Transform, input any) any {
	fn, ok := transformRegistry[name]
	if !ok {
		return input
	}
	return fn(input)
}

// --- Transformation Implementations ---

func transformNone(input any) any {
	return input
}

func transformTrim(input any) any {
	s := stringify(input)
	if s == nil {
		return nil
	}
	return strings.TrimSpace(*s)
}

func transformUpper(input any) any {
	s := stringify(input)
	if s == nil {
		return nil
	}
	return strings.ToUpper(*s)
}

func transformLower(input any) any {
	s := stringify(input)
	if s == nil {
		return nil
	}
	return strings.ToLower(*s)
}

func transformToInt(input any) any {
	i := normalize.IntOrNull(input)
	if i == nil {
		return nil
	}
	return *i
}

// stringify renders a cell as text without trimming it.
func stringify(input any) *string {
	switch v := input.(type) {
	case nil:
		return nil
	case string:
		return &v
	}
	return normalize.StringOrNull(input)
}
