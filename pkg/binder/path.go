package binder

import (
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Path copies chi URL parameters into string fields tagged `path:"name"`.
func Path() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
			return ErrBinderNotApplicable
		}
		rv = rv.Elem()
		rt := rv.Type()
		for i := range rt.NumField() {
			name, ok := rt.Field(i).Tag.Lookup("path")
			if !ok || name == "" || name == "-" {
				continue
			}
			f := rv.Field(i)
			if f.Kind() == reflect.String && f.CanSet() {
				f.SetString(strings.TrimSpace(chi.URLParam(r, name)))
			}
		}
		return nil
	}
}

// trimStrings trims surrounding whitespace from exported string fields,
// descending into nested structs and pointers.
func trimStrings(v any) {
	trimValue(reflect.ValueOf(v))
}

func trimValue(rv reflect.Value) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if !rv.IsNil() {
			trimValue(rv.Elem())
		}
	case reflect.Struct:
		for i := range rv.NumField() {
			if f := rv.Field(i); f.CanSet() {
				trimValue(f)
			}
		}
	case reflect.String:
		if rv.CanSet() {
			rv.SetString(strings.TrimSpace(rv.String()))
		}
	}
}
