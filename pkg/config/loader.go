// Package config loads component configuration structs from struct-tag
// defaults, an optional YAML/JSON file, an optional dotenv file, and the
// process environment. Later sources win:
//
//	envDefault tag  <  config file  <  .env file  <  process environment
//
// Every component of the access core (keys, token, entitlements, gate,
// session, and the storage clients) declares its own Config struct with
// `env`, `envDefault`, `required`, and `yaml`/`json` tags, and can be
// loaded independently or nested inside a service-level struct:
//
//	type ServiceConfig struct {
//	    Keys   keys.Config  `yaml:"keys"`
//	    Token  token.Config `yaml:"token"`
//	}
//
//	cfg := config.MustLoad[ServiceConfig](config.New().WithDotEnv(".env"))
//
// A nested struct's own `env` tag, if present, is prepended to its
// children's variable names.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	sserr "github.com/StricklySoft/stricklysoft-access/pkg/errors"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Loader resolves configuration values. It is not safe for concurrent use.
type Loader struct {
	envPrefix  string
	filePath   string
	dotEnvPath string
	lookup     func(string) (string, bool)
}

// New returns a Loader that reads the process environment only.
func New() *Loader {
	return &Loader{lookup: os.LookupEnv}
}

// WithEnvPrefix prepends PREFIX_ to every variable name. The prefix is
// uppercased.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = strings.ToUpper(prefix)
	return l
}

// WithFile sets a YAML (.yaml, .yml) or JSON (.json) file. A missing file
// is ignored.
func (l *Loader) WithFile(path string) *Loader {
	l.filePath = path
	return l
}

// WithDotEnv sets a dotenv file whose values apply where the process
// environment has no value. A missing file is ignored. PEM keys may be
// written on one line with literal \n escapes.
func (l *Loader) WithDotEnv(path string) *Loader {
	l.dotEnvPath = path
	return l
}

// WithLookup replaces the process environment lookup. Tests use this to
// avoid mutating global state.
func (l *Loader) WithLookup(fn func(string) (string, bool)) *Loader {
	l.lookup = fn
	return l
}

// Load populates cfg, which must be a non-nil pointer to a struct, and
// validates it. Fields tagged `required:"true"` must be non-zero, and a
// cfg implementing [Validator] has its Validate method called last.
func (l *Loader) Load(cfg any) error {
	rv := reflect.ValueOf(cfg)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: Load requires a non-nil pointer to a struct")
	}
	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: Load requires a pointer to a struct")
	}

	if err := applyDefaults(rv); err != nil {
		return err
	}
	if l.filePath != "" {
		if err := l.loadFile(cfg); err != nil {
			return err
		}
	}

	lookup, err := l.resolveLookup()
	if err != nil {
		return err
	}
	if err := applyEnv(rv, l.envPrefix, lookup); err != nil {
		return err
	}

	return validate(cfg, rv)
}

// MustLoad loads a T and panics on failure. Use it in main, where an
// invalid configuration must stop the process.
func MustLoad[T any](loader *Loader) T {
	var cfg T
	if err := loader.Load(&cfg); err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}

// resolveLookup layers the dotenv values beneath the process lookup.
func (l *Loader) resolveLookup() (func(string) (string, bool), error) {
	base := l.lookup
	if base == nil {
		base = os.LookupEnv
	}
	if l.dotEnvPath == "" {
		return base, nil
	}

	values, err := godotenv.Read(l.dotEnvPath)
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil
		}
		return nil, sserr.Wrapf(err, sserr.CodeInternalConfiguration,
			"config: failed to read dotenv file %q", l.dotEnvPath)
	}

	return func(key string) (string, bool) {
		if v, ok := base(key); ok {
			return v, true
		}
		v, ok := values[key]
		return v, ok
	}, nil
}

func (l *Loader) loadFile(cfg any) error {
	if strings.Contains(l.filePath, "..") {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: file path must not contain directory traversal (..) sequences")
	}

	data, err := os.ReadFile(l.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
			"config: failed to read file %q", l.filePath)
	}

	switch ext := strings.ToLower(filepath.Ext(l.filePath)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: failed to parse YAML file %q", l.filePath)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: failed to parse JSON file %q", l.filePath)
		}
	default:
		return sserr.Newf(sserr.CodeInternalConfiguration,
			"config: unsupported file extension %q (use .yaml, .yml, or .json)", ext)
	}
	return nil
}

func isNested(field reflect.Value, sf reflect.StructField) bool {
	return field.Kind() == reflect.Struct && sf.Type != durationType
}

// applyDefaults sets zero-valued fields from their envDefault tag.
func applyDefaults(rv reflect.Value) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field, sf := rv.Field(i), rt.Field(i)
		if !field.CanSet() {
			continue
		}
		if isNested(field, sf) {
			if err := applyDefaults(field); err != nil {
				return err
			}
			continue
		}

		tag, ok := sf.Tag.Lookup("envDefault")
		if !ok || tag == "" || !field.IsZero() {
			continue
		}
		if err := setField(field, tag); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: failed to apply default for field %q", sf.Name)
		}
	}
	return nil
}

// applyEnv sets fields from their env tag, joining nested struct tags
// into the variable name with "_".
func applyEnv(rv reflect.Value, prefix string, lookup func(string) (string, bool)) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field, sf := rv.Field(i), rt.Field(i)
		if !field.CanSet() {
			continue
		}
		envTag := sf.Tag.Get("env")

		if isNested(field, sf) {
			if err := applyEnv(field, joinKey(prefix, envTag), lookup); err != nil {
				return err
			}
			continue
		}
		if envTag == "" {
			continue
		}

		key := joinKey(prefix, envTag)
		val, ok := lookup(key)
		if !ok {
			continue
		}
		if err := setField(field, val); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: failed to set field %q from env var %q", sf.Name, key)
		}
	}
	return nil
}

func joinKey(prefix, name string) string {
	switch {
	case prefix == "":
		return name
	case name == "":
		return prefix
	default:
		return prefix + "_" + name
	}
}

// setField parses value into field. Supported kinds: string (including
// named string types such as Secret), bool, signed and unsigned
// integers, floats, time.Duration, and comma-separated []string.
func setField(field reflect.Value, value string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("cannot parse duration %q: %w", value, err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("cannot parse bool %q: %w", value, err)
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot parse integer %q: %w", value, err)
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(value, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot parse unsigned integer %q: %w", value, err)
		}
		field.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot parse float %q: %w", value, err)
		}
		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice element type %s", field.Type().Elem().Kind())
		}
		parts := strings.Split(value, ",")
		slice := reflect.MakeSlice(field.Type(), 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p == "" {
				continue
			}
			slice = reflect.Append(slice, reflect.ValueOf(p).Convert(field.Type().Elem()))
		}
		field.Set(slice)
	default:
		return fmt.Errorf("unsupported field type %s", field.Kind())
	}
	return nil
}
