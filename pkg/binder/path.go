package binder

import (
	"net/http"
	"reflect"
)

// Path binds `path`-tagged fields through extractor, typically chi.URLParam.
func Path(extractor func(r *http.Request, name string) string) func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		rv, err := structValue(v, ErrFailedToParsePath)
		if err != nil {
			return err
		}

		values := make(map[string][]string)
		eachTagged(rv, "path", func(_ reflect.Value, _ reflect.StructField, name string) {
			if val := extractor(r, name); val != "" {
				values[name] = []string{val}
			}
		})
		return bindValues(v, "path", values, ErrFailedToParsePath)
	}
}
