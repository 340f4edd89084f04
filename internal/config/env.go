package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var (
	durationType = reflect.TypeFor[time.Duration]()
	timeType     = reflect.TypeFor[time.Time]()
)

// Load builds a Config from the environment, applying `default` tags for
// unset variables, and validates the result.
func Load() (*Config, error) {
	var cfg Config
	if err := decodeEnv(reflect.ValueOf(&cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

// envField is the tag set of one configurable field.
type envField struct {
	name     string
	alts     []string
	def      string
	required bool
}

func parseEnvTags(tag reflect.StructTag) (envField, bool) {
	name := tag.Get("env")
	if name == "" {
		return envField{}, false
	}
	f := envField{
		name:     name,
		def:      tag.Get("default"),
		required: tag.Get("required") == "true",
	}
	if alt := tag.Get("envAlt"); alt != "" {
		for _, a := range strings.Split(alt, ",") {
			f.alts = append(f.alts, strings.TrimSpace(a))
		}
	}
	return f, true
}

// lookup returns the first non-empty value among the primary variable and its
// alternates, then the default. ok is false when a required variable is unset.
func (f envField) lookup() (value string, ok bool) {
	for _, name := range append([]string{f.name}, f.alts...) {
		if v := os.Getenv(name); v != "" {
			return v, true
		}
	}
	if f.required {
		return "", false
	}
	return f.def, true
}

// decodeEnv fills the exported fields of the struct v, descending into nested
// config sections.
func decodeEnv(v reflect.Value) error {
	for _, sf := range reflect.VisibleFields(v.Type()) {
		if !sf.IsExported() || len(sf.Index) > 1 {
			continue
		}
		fv := v.FieldByIndex(sf.Index)

		if sf.Type.Kind() == reflect.Struct && sf.Type != timeType {
			if err := decodeEnv(fv); err != nil {
				return err
			}
			continue
		}

		f, ok := parseEnvTags(sf.Tag)
		if !ok {
			continue
		}
		raw, ok := f.lookup()
		if !ok {
			return fmt.Errorf("required environment variable %s is not set", f.name)
		}
		if raw == "" {
			continue
		}
		if err := assign(fv, raw); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", f.name, raw, err)
		}
	}
	return nil
}

// assign parses raw into the field's type.
func assign(fv reflect.Value, raw string) error {
	if fv.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		fv.SetInt(int64(d))
		return nil
	}

	switch fv.Kind() {
	case reflect.String:
		fv.SetString(raw)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, fv.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		fv.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		fv.SetBool(b)
	case reflect.Slice:
		if fv.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", fv.Type().Elem().Kind())
		}
		fv.Set(reflect.ValueOf(splitList(raw)))
	default:
		return fmt.Errorf("unsupported field type: %s", fv.Kind())
	}
	return nil
}

// splitList splits a comma-separated list, dropping blank entries.
func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if out == nil {
		out = []string{}
	}
	return out
}
