package normalize

import (
	"encoding/base64"
	"reflect"
	"strings"
)

var separators = strings.NewReplacer("_", "", "-", "")

// fold canonicalises a member name so inline_data, inlineData and InlineData compare equal.
func fold(name string) string {
	return separators.Replace(strings.ToLower(name))
}

func isNil(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return !v.IsValid()
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

// field returns the first non-nil member of v matching one of names. Map keys,
// exported struct fields (by Go name or json tag) and zero-argument methods
// are all considered, in that order, for each name.
func field(v any, names ...string) (any, bool) {
	if v == nil {
		return nil, false
	}
	orig := reflect.ValueOf(v)
	rv := indirect(orig)
	if !rv.IsValid() {
		return nil, false
	}

	for _, name := range names {
		want := fold(name)
		switch rv.Kind() {
		case reflect.Map:
			if rv.Type().Key().Kind() != reflect.String {
				break
			}
			if val := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key())); val.IsValid() && !isNil(val) {
				return val.Interface(), true
			}
			// Map order is random; the smallest folded match keeps lookups stable.
			var (
				best  reflect.Value
				found bool
			)
			iter := rv.MapRange()
			for iter.Next() {
				key := iter.Key().String()
				if fold(key) != want || isNil(iter.Value()) {
					continue
				}
				if !found || key < best.String() {
					best, found = iter.Key(), true
				}
			}
			if found {
				return rv.MapIndex(best).Interface(), true
			}
		case reflect.Struct:
			for _, sf := range reflect.VisibleFields(rv.Type()) {
				if !sf.IsExported() || sf.Anonymous {
					continue
				}
				tag, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
				if fold(sf.Name) != want && (tag == "" || fold(tag) != want) {
					continue
				}
				val, err := rv.FieldByIndexErr(sf.Index)
				if err != nil || isNil(val) {
					continue
				}
				return val.Interface(), true
			}
		}
		if val, ok := method(orig, want); ok {
			return val, true
		}
	}
	return nil, false
}

// method calls a zero-argument, single-result method whose folded name is want.
func method(v reflect.Value, want string) (any, bool) {
	for v.IsValid() {
		t := v.Type()
		for i := 0; i < t.NumMethod(); i++ {
			m := t.Method(i)
			if fold(m.Name) != want {
				continue
			}
			fn := v.Method(i)
			if fn.Type().NumIn() != 0 || fn.Type().NumOut() != 1 {
				continue
			}
			out := fn.Call(nil)[0]
			if isNil(out) {
				return nil, false
			}
			return out.Interface(), true
		}
		if v.Kind() != reflect.Interface && v.Kind() != reflect.Ptr {
			break
		}
		if v.IsNil() {
			break
		}
		v = v.Elem()
	}
	return nil, false
}

// list normalises v to a sequence. Byte slices and strings are single values.
func list(v any) []any {
	if v == nil {
		return nil
	}
	rv := indirect(reflect.ValueOf(v))
	if !rv.IsValid() {
		return nil
	}
	if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Type().Elem().Kind() != reflect.Uint8 {
		out := make([]any, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			if el := rv.Index(i); !isNil(el) {
				out = append(out, el.Interface())
			}
		}
		return out
	}
	return []any{rv.Interface()}
}

func str(v any) (string, bool) {
	rv := indirect(reflect.ValueOf(v))
	if !rv.IsValid() || rv.Kind() != reflect.String {
		return "", false
	}
	return rv.String(), true
}

// text returns v as a trimmed, non-empty string.
func text(v any) (string, bool) {
	s, ok := str(v)
	s = strings.TrimSpace(s)
	return s, ok && s != ""
}

var encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

// payload returns raw bytes from a byte slice or a base64 string.
func payload(v any) ([]byte, bool) {
	rv := indirect(reflect.ValueOf(v))
	if !rv.IsValid() {
		return nil, false
	}
	switch {
	case rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8:
		if rv.Len() == 0 {
			return nil, false
		}
		return append([]byte(nil), rv.Bytes()...), true
	case rv.Kind() == reflect.String:
		s := strings.TrimSpace(rv.String())
		if strings.HasPrefix(s, "data:") {
			if _, after, ok := strings.Cut(s, ";base64,"); ok {
				s = after
			}
		}
		if s == "" {
			return nil, false
		}
		for _, enc := range encodings {
			if b, err := enc.DecodeString(s); err == nil && len(b) > 0 {
				return b, true
			}
		}
	}
	return nil, false
}
