package binder

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

func structValue(v any, bindErr error) (reflect.Value, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return reflect.Value{}, fmt.Errorf("%w: target must be a non-nil pointer", bindErr)
	}
	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("%w: target must point to a struct", bindErr)
	}
	return rv, nil
}

// eachTagged calls fn for every settable field carrying tag. Fields without
// the tag are skipped, unlike encoding/json.
func eachTagged(rv reflect.Value, tag string, fn func(field reflect.Value, sf reflect.StructField, name string)) {
	rt := rv.Type()
	for i := range rv.NumField() {
		field := rv.Field(i)
		sf := rt.Field(i)
		if !field.CanSet() {
			continue
		}
		name, _, _ := strings.Cut(sf.Tag.Get(tag), ",")
		if name == "" || name == "-" {
			continue
		}
		fn(field, sf, name)
	}
}

func bindValues(v any, tag string, values map[string][]string, bindErr error) error {
	rv, err := structValue(v, bindErr)
	if err != nil {
		return err
	}

	var firstErr error
	eachTagged(rv, tag, func(field reflect.Value, sf reflect.StructField, name string) {
		vals := values[name]
		if len(vals) == 0 || firstErr != nil {
			return
		}
		if err := setField(field, vals); err != nil {
			firstErr = fmt.Errorf("%w: %s: %v", bindErr, name, err)
		}
	})
	return firstErr
}

func setField(field reflect.Value, values []string) error {
	switch field.Kind() {
	case reflect.Pointer:
		elem := reflect.New(field.Type().Elem())
		if err := setField(elem.Elem(), values); err != nil {
			return err
		}
		field.Set(elem)
		return nil
	case reflect.Slice:
		slice := reflect.MakeSlice(field.Type(), 0, len(values))
		for _, s := range values {
			elem := reflect.New(field.Type().Elem()).Elem()
			if err := setField(elem, []string{s}); err != nil {
				return err
			}
			slice = reflect.Append(slice, elem)
		}
		field.Set(slice)
		return nil
	}

	s := strings.TrimSpace(values[0])
	switch field.Kind() {
	case reflect.String:
		field.SetString(values[0])
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid integer %q", s)
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid unsigned integer %q", s)
		}
		field.SetUint(n)
	case reflect.Float32, reflect.Float64:
		n, err := strconv.ParseFloat(s, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid number %q", s)
		}
		field.SetFloat(n)
	case reflect.Bool:
		switch strings.ToLower(s) {
		case "1", "true", "yes", "on":
			field.SetBool(true)
		case "0", "false", "no", "off", "":
			field.SetBool(false)
		default:
			return fmt.Errorf("invalid boolean %q", s)
		}
	default:
		return fmt.Errorf("unsupported field type %s", field.Type())
	}
	return nil
}
