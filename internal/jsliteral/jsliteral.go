// Package jsliteral evaluates JavaScript literal expressions lifted out of
// consent-library scripts. The literals are real JavaScript, not JSON:
// unquoted keys, single-quoted strings and trailing commas are all common,
// so they go through a goja VM instead of encoding/json.
package jsliteral

import (
	"fmt"

	"github.com/dop251/goja"
)

// Eval runs a single JavaScript expression in a fresh VM and returns the
// exported Go value. Arrays export as []interface{}, objects as
// map[string]interface{}, null and undefined as nil.
func Eval(src string) (interface{}, error) {
	vm := goja.New()

	// Parenthesize so object literals parse as expressions rather than
	// blocks. The newline guards against a trailing line comment in src.
	value, err := vm.RunString("(" + src + "\n)")
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate script literal: %w", err)
	}
	return value.Export(), nil
}

// EvalArray evaluates src and requires the result to be an array.
func EvalArray(src string) ([]interface{}, error) {
	value, err := Eval(src)
	if err != nil {
		return nil, err
	}
	arr, ok := value.([]interface{})
	if !ok {
		return nil, fmt.Errorf("script literal is not an array (got %T)", value)
	}
	return arr, nil
}

// EvalObject evaluates src and requires the result to be an object.
func EvalObject(src string) (map[string]interface{}, error) {
	value, err := Eval(src)
	if err != nil {
		return nil, err
	}
	obj, ok := value.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("script literal is not an object (got %T)", value)
	}
	return obj, nil
}

// AsString coerces an exported value to a string. Numbers and booleans are
// formatted, nil becomes the empty string. Consent tables occasionally
// carry numeric fields where strings are expected.
func AsString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
