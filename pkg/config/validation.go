package config

import (
	"reflect"

	sserr "github.com/StricklySoft/stricklysoft-access/pkg/errors"
)

// Validator is implemented by configuration structs that need checks
// beyond the required tag. An *sserr.Error returned from Validate is
// passed through unchanged, which lets keys.Config report a
// KeyConfiguration error naming the offending variable.
type Validator interface {
	Validate() error
}

func validate(cfg any, rv reflect.Value) error {
	if err := validateRequired(rv, ""); err != nil {
		return err
	}
	if err := validateNested(rv); err != nil {
		return err
	}
	if v, ok := cfg.(Validator); ok {
		return runValidator(v)
	}
	return nil
}

// validateNested runs Validate on nested component configs, deepest
// first, so a service-level struct gets each component's checks.
func validateNested(rv reflect.Value) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field, sf := rv.Field(i), rt.Field(i)
		if !field.CanSet() || !isNested(field, sf) {
			continue
		}
		if err := validateNested(field); err != nil {
			return err
		}
		if v, ok := field.Addr().Interface().(Validator); ok {
			if err := runValidator(v); err != nil {
				return err
			}
		}
	}
	return nil
}

func runValidator(v Validator) error {
	err := v.Validate()
	if err == nil {
		return nil
	}
	if _, isSSErr := sserr.AsError(err); isSSErr {
		return err
	}
	return sserr.Wrap(err, sserr.CodeValidation, "config: custom validation failed")
}

// validateRequired checks `required:"true"` fields recursively; path is
// the dotted field path used in the error message.
func validateRequired(rv reflect.Value, path string) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field, sf := rv.Field(i), rt.Field(i)
		if !field.CanSet() {
			continue
		}

		fieldPath := sf.Name
		if path != "" {
			fieldPath = path + "." + sf.Name
		}

		if field.Kind() == reflect.Struct {
			if err := validateRequired(field, fieldPath); err != nil {
				return err
			}
			continue
		}
		if sf.Tag.Get("required") != "true" || !field.IsZero() {
			continue
		}

		err := sserr.Newf(sserr.CodeValidationRequired, "config: required field %q is empty", fieldPath)
		if env := sf.Tag.Get("env"); env != "" {
			err = err.WithDetail(sserr.DetailVariable, env)
		}
		return err
	}
	return nil
}
