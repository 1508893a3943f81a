/*
 *	flowrpc runs workflow and activity code on behalf of an orchestration host.
 *	Copyright (C) 2022 Arsen Musayelyan
 *
 *	This program is free software: you can redistribute it and/or modify
 *	it under the terms of the GNU General Public License as published by
 *	the Free Software Foundation, either version 3 of the License, or
 *	(at your option) any later version.
 *
 *	This program is distributed in the hope that it will be useful,
 *	but WITHOUT ANY WARRANTY; without even the implied warranty of
 *	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 *	GNU General Public License for more details.
 *
 *	You should have received a copy of the GNU General Public License
 *	along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

package reflectutil

import (
	"encoding"
	"errors"
	"fmt"
	"math"
	"reflect"
	"runtime"
	"strings"

	"github.com/mitchellh/mapstructure"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Convert converts a decoded wire value to the given type
func Convert(in any, toType reflect.Type) (reflect.Value, error) {
	// nil becomes the zero value of the desired type
	if in == nil {
		return reflect.Zero(toType), nil
	}

	inVal := reflect.ValueOf(in)
	inType := inVal.Type()

	// If input is already the desired type, return
	if inType == toType || (toType.Kind() == reflect.Interface && inType.Implements(toType)) {
		return inVal, nil
	}

	// If the output type is a pointer, convert to the element type
	// and take its address
	if toType.Kind() == reflect.Ptr {
		elem, err := Convert(in, toType.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		ptr := reflect.New(toType.Elem())
		ptr.Elem().Set(elem)
		return ptr, nil
	}

	// Numbers arrive as whatever the codec picked
	if isNumber(inType.Kind()) && isNumber(toType.Kind()) {
		return convertNumber(inVal, toType)
	}

	if inType.Kind() == toType.Kind() && inVal.CanConvert(toType) {
		return inVal.Convert(toType), nil
	}

	to := reflect.New(toType)

	switch val := in.(type) {
	case string:
		// If desired type satisfies text unmarshaler
		if u, ok := to.Interface().(encoding.TextUnmarshaler); ok {
			if err := u.UnmarshalText([]byte(val)); err != nil {
				return reflect.Value{}, err
			}
			return to.Elem(), nil
		}
	case []byte:
		// If desired type satisfies binary unmarshaler
		if u, ok := to.Interface().(encoding.BinaryUnmarshaler); ok {
			if err := u.UnmarshalBinary(val); err != nil {
				return reflect.Value{}, err
			}
			return to.Elem(), nil
		}
	}

	switch toType.Kind() {
	case reflect.Slice, reflect.Array:
		if inType.Kind() == reflect.Slice || inType.Kind() == reflect.Array {
			return convertList(inVal, toType)
		}
	case reflect.Struct, reflect.Map:
		if inType.Kind() == reflect.Map || inType.Kind() == reflect.Struct {
			// Use mapstructure to decode value, matching the
			// field names used on the wire
			dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
				Result:           to.Interface(),
				TagName:          "json",
				WeaklyTypedInput: true,
				DecodeHook: mapstructure.ComposeDecodeHookFunc(
					mapstructure.StringToTimeDurationHookFunc(),
					mapstructure.StringToTimeHookFunc("2006-01-02T15:04:05.999999999Z07:00"),
				),
			})
			if err != nil {
				return reflect.Value{}, err
			}
			if err := dec.Decode(in); err != nil {
				return reflect.Value{}, err
			}
			return to.Elem(), nil
		}
	}

	return reflect.Value{}, fmt.Errorf("cannot convert %s to %s", inType, toType)
}

func convertList(in reflect.Value, toType reflect.Type) (reflect.Value, error) {
	var out reflect.Value
	if toType.Kind() == reflect.Array {
		if in.Len() != toType.Len() {
			return reflect.Value{}, fmt.Errorf("cannot convert %d values to %s", in.Len(), toType)
		}
		out = reflect.New(toType).Elem()
	} else {
		out = reflect.MakeSlice(toType, in.Len(), in.Len())
	}

	for i := 0; i < in.Len(); i++ {
		elem, err := Convert(in.Index(i).Interface(), toType.Elem())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("index %d: %w", i, err)
		}
		out.Index(i).Set(elem)
	}
	return out, nil
}

// NumberRangeError is returned when a number cannot be represented
// by the desired type without losing its value
type NumberRangeError struct {
	Value any
	Type  reflect.Type
}

func (e *NumberRangeError) Error() string {
	return fmt.Sprintf("cannot represent %v as %s", e.Value, e.Type)
}

// convertNumber converts between numeric kinds, refusing
// fractions, negative unsigned values and overflows
func convertNumber(in reflect.Value, toType reflect.Type) (reflect.Value, error) {
	out := reflect.New(toType).Elem()
	rangeErr := &NumberRangeError{Value: in.Interface(), Type: toType}

	switch toType.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, ok := toInt64(in)
		if !ok || out.OverflowInt(n) {
			return reflect.Value{}, rangeErr
		}
		out.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, ok := toUint64(in)
		if !ok || out.OverflowUint(n) {
			return reflect.Value{}, rangeErr
		}
		out.SetUint(n)
	default:
		f := toFloat64(in)
		if out.OverflowFloat(f) {
			return reflect.Value{}, rangeErr
		}
		out.SetFloat(f)
	}
	return out, nil
}

func toInt64(v reflect.Value) (int64, bool) {
	switch v.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n := v.Uint()
		return int64(n), n <= math.MaxInt64
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		// -2^63 is exact, 2^63 is the first value out of range
		if f != math.Trunc(f) || f < math.MinInt64 || f >= -math.MinInt64 {
			return 0, false
		}
		return int64(f), true
	default:
		return v.Int(), true
	}
}

func toUint64(v reflect.Value) (uint64, bool) {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := v.Int()
		return uint64(n), n >= 0
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if f != math.Trunc(f) || f < 0 || f >= math.MaxUint64 {
			return 0, false
		}
		return uint64(f), true
	default:
		return v.Uint(), true
	}
}

func toFloat64(v reflect.Value) float64 {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint())
	default:
		return v.Float()
	}
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

// Assign converts in and stores it in the value pointed to by ptr
func Assign(in any, ptr any) error {
	ptrVal := reflect.ValueOf(ptr)
	if ptrVal.Kind() != reflect.Ptr || ptrVal.IsNil() {
		return errors.New("value must be a non-nil pointer")
	}

	val, err := Convert(in, ptrVal.Type().Elem())
	if err != nil {
		return err
	}
	ptrVal.Elem().Set(val)
	return nil
}

// CheckFunc validates that fn is a function whose first parameter
// is of type first and that returns at most a value and an error
func CheckFunc(fn any, first reflect.Type) error {
	fnType := reflect.TypeOf(fn)
	if fnType == nil || fnType.Kind() != reflect.Func {
		return fmt.Errorf("expected a function, got %T", fn)
	}

	if first != nil && (fnType.NumIn() < 1 || fnType.In(0) != first) {
		return fmt.Errorf("first parameter of %s must be %s", FuncName(fn), first)
	}

	switch fnType.NumOut() {
	case 0:
	case 1:
	case 2:
		// If function has 2 outputs, the second one must be an error
		if fnType.Out(1) != errorType {
			return fmt.Errorf("second result of %s must be an error", FuncName(fn))
		}
	default:
		return fmt.Errorf("%s must return at most a value and an error", FuncName(fn))
	}

	return nil
}

// Call calls fn with the given leading values followed by the
// wire arguments converted to the parameter types of fn
func Call(fn any, lead []reflect.Value, args []any) (any, error) {
	fnVal := reflect.ValueOf(fn)
	fnType := fnVal.Type()

	numArgs := fnType.NumIn() - len(lead)
	if fnType.IsVariadic() {
		return nil, fmt.Errorf("variadic function %s cannot be called remotely", FuncName(fn))
	}
	if len(args) > numArgs {
		return nil, fmt.Errorf("%s accepts %d arguments, got %d", FuncName(fn), numArgs, len(args))
	}

	in := make([]reflect.Value, 0, fnType.NumIn())
	in = append(in, lead...)
	for i := 0; i < numArgs; i++ {
		paramType := fnType.In(len(lead) + i)
		// Missing trailing arguments get their zero value
		if i >= len(args) {
			in = append(in, reflect.Zero(paramType))
			continue
		}
		val, err := Convert(args[i], paramType)
		if err != nil {
			return nil, fmt.Errorf("argument %d of %s: %w", i, FuncName(fn), err)
		}
		in = append(in, val)
	}

	return Results(fnVal.Call(in))
}

// Results splits the return values of a function call
// into a value and an error
func Results(out []reflect.Value) (any, error) {
	var (
		val any
		err error
	)
	for _, o := range out {
		if o.Type() == errorType {
			if !o.IsNil() {
				err = o.Interface().(error)
			}
			continue
		}
		val = o.Interface()
	}
	return val, err
}

// FuncName returns the name a function is registered under by
// default: "Func" for functions and "Type.Method" for methods
func FuncName(fn any) string {
	fnVal := reflect.ValueOf(fn)
	if fnVal.Kind() != reflect.Func {
		return fmt.Sprintf("%T", fn)
	}

	rf := runtime.FuncForPC(fnVal.Pointer())
	if rf == nil {
		return fnVal.Type().String()
	}

	name := rf.Name()
	// Trim the import path
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	// Trim the package name
	if i := strings.Index(name, "."); i >= 0 {
		name = name[i+1:]
	}
	// Method values end in -fm
	name = strings.TrimSuffix(name, "-fm")
	return strings.NewReplacer("(*", "", ")", "").Replace(name)
}
