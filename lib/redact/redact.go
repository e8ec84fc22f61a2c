//
// See the file COPYRIGHT for copyright information.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package redact

import (
	"bytes"
	"fmt"
	"io"
	"reflect"
	"slices"
	"strings"
)

const (
	nestIndent = "    "
	mask       = "****"
	unsetMask  = "(unset)"
)

// ToBytes prints every field of a struct, one per line, hiding the value of
// any field tagged `redact:"true"`. Redacted fields still show whether they
// hold a zero value, so a missing secret is visible in the output.
func ToBytes(pointerToStruct any) ([]byte, error) {
	v := reflect.ValueOf(pointerToStruct)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("expected pointer to struct, got %v", v.Kind())
	}
	output := &bytes.Buffer{}
	if err := writeStruct(output, v.Elem(), ""); err != nil {
		return nil, fmt.Errorf("[writeStruct]: %w", err)
	}
	return output.Bytes(), nil
}

func writeStruct(w io.Writer, s reflect.Value, indent string) error {
	typeOfT := s.Type()
	for i := range s.NumField() {
		field := typeOfT.Field(i)
		if !field.IsExported() {
			continue
		}
		redacted := strings.EqualFold(field.Tag.Get("redact"), "true")
		if err := writeField(w, field.Name, s.Field(i), redacted, indent); err != nil {
			return err
		}
	}
	return nil
}

func writeField(w io.Writer, name string, f reflect.Value, redacted bool, indent string) error {
	if redacted {
		shown := mask
		if f.IsZero() {
			shown = unsetMask
		}
		_, err := fmt.Fprintf(w, "%v%v = %v\n", indent, name, shown)
		return err
	}
	switch f.Kind() {
	case reflect.Pointer:
		if f.IsNil() {
			_, err := fmt.Fprintf(w, "%v%v = nil\n", indent, name)
			return err
		}
		return writeField(w, name, f.Elem(), false, indent)
	case reflect.Struct:
		if s, ok := f.Interface().(fmt.Stringer); ok {
			_, err := fmt.Fprintf(w, "%v%v = %v\n", indent, name, s.String())
			return err
		}
		if _, err := fmt.Fprintf(w, "%v%v\n", indent, name); err != nil {
			return err
		}
		return writeStruct(w, f, indent+nestIndent)
	case reflect.Slice, reflect.Array:
		if f.Type().Elem().Kind() != reflect.Struct {
			_, err := fmt.Fprintf(w, "%v%v = %v\n", indent, name, f.Interface())
			return err
		}
		for j := range f.Len() {
			if err := writeField(w, fmt.Sprintf("%v[%d]", name, j), f.Index(j), false, indent); err != nil {
				return err
			}
		}
		return nil
	case reflect.Map:
		keys := f.MapKeys()
		slices.SortFunc(keys, func(a, b reflect.Value) int {
			return strings.Compare(fmt.Sprint(a.Interface()), fmt.Sprint(b.Interface()))
		})
		for _, k := range keys {
			if err := writeField(w, fmt.Sprintf("%v[%v]", name, k.Interface()), f.MapIndex(k), false, indent); err != nil {
				return err
			}
		}
		return nil
	case reflect.String, reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32,
		reflect.Int64, reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		_, err := fmt.Fprintf(w, "%v%v = %v\n", indent, name, f.Interface())
		return err
	case reflect.Invalid, reflect.Chan, reflect.Func, reflect.Interface, reflect.UnsafePointer,
		reflect.Uintptr, reflect.Complex64, reflect.Complex128:
		fallthrough
	default:
		return fmt.Errorf("unsupported field kind: %v", f.Kind().String())
	}
}
