package binder

import (
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"reflect"
)

// DefaultMaxMemory is the part of a multipart form kept in memory. The rest
// spills to temporary files.
const DefaultMaxMemory = 10 << 20

var fileHeaderType = reflect.TypeOf((*multipart.FileHeader)(nil))

// Form binds `form` fields from urlencoded or multipart bodies and `file`
// fields (*multipart.FileHeader) from multipart bodies.
func Form() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		ct := r.Header.Get("Content-Type")
		if ct == "" {
			return fmt.Errorf("%w: expected a form body", ErrMissingContentType)
		}
		mt, params, err := mime.ParseMediaType(ct)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrUnsupportedMediaType, ct)
		}

		var files map[string][]*multipart.FileHeader
		switch mt {
		case "application/x-www-form-urlencoded":
			if err := r.ParseForm(); err != nil {
				return fmt.Errorf("%w: %v", ErrFailedToParseForm, err)
			}
		case "multipart/form-data":
			if params["boundary"] == "" {
				return fmt.Errorf("%w: missing boundary", ErrFailedToParseForm)
			}
			if err := r.ParseMultipartForm(DefaultMaxMemory); err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					return fmt.Errorf("%w: max %d bytes", ErrBodyTooLarge, tooLarge.Limit)
				}
				return fmt.Errorf("%w: %v", ErrFailedToParseForm, err)
			}
			files = r.MultipartForm.File
		default:
			return fmt.Errorf("%w: expected a form body, got %q", ErrUnsupportedMediaType, mt)
		}

		if err := bindValues(v, "form", r.PostForm, ErrFailedToParseForm); err != nil {
			return err
		}
		return bindFiles(v, files)
	}
}

func bindFiles(v any, files map[string][]*multipart.FileHeader) error {
	rv, err := structValue(v, ErrFailedToParseForm)
	if err != nil {
		return err
	}

	var bindErr error
	eachTagged(rv, "file", func(field reflect.Value, sf reflect.StructField, name string) {
		headers := files[name]
		if len(headers) == 0 || bindErr != nil {
			return
		}
		switch sf.Type {
		case fileHeaderType:
			field.Set(reflect.ValueOf(headers[0]))
		case reflect.SliceOf(fileHeaderType):
			field.Set(reflect.ValueOf(headers))
		default:
			bindErr = fmt.Errorf("%w: field %s must be *multipart.FileHeader", ErrFailedToParseForm, sf.Name)
		}
	})
	return bindErr
}
