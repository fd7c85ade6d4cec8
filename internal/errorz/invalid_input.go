package errorz

import (
	"errors"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
)

// InvalidInput signals that a provided input is invalid due to the wrapped errors.
type InvalidInput []error

func (e InvalidInput) Error() string {
	var b strings.Builder
	b.WriteString("invalid input:\n")
	for _, err := range e {
		b.WriteString(err.Error())
		b.WriteString("\n")
	}
	return b.String()
}

func (e InvalidInput) Unwrap() []error {
	return e
}

// Fields returns the messages of all FieldErrors by field name. Errors
// that don't belong to a field are reported under "_".
func (e InvalidInput) Fields() map[string]string {
	out := make(map[string]string, len(e))
	for _, err := range e {
		var f FieldError
		if errors.As(err, &f) {
			out[f.Field] = f.Err.Error()
			continue
		}
		out["_"] = err.Error()
	}
	return out
}

// FieldError is an error about a single field of the input, the field
// is named the way the client sent it.
type FieldError struct {
	Field string
	Err   error
}

func (f FieldError) Error() string {
	return f.Field + ": " + f.Err.Error()
}

func (f FieldError) Unwrap() error {
	return f.Err
}

// FromValidation converts the result of an ozzo-validation call into
// InvalidInput of FieldErrors, sorted by field.
// Internal validation errors (such as a misconfigured rule) are returned as is.
func FromValidation(err error) error {
	if err == nil {
		return nil
	}

	var vErrs validation.Errors
	if !errors.As(err, &vErrs) {
		var internal validation.InternalError
		if errors.As(err, &internal) {
			return err
		}
		return InvalidInput{err}
	}

	keys := make([]string, 0, len(vErrs))
	for k := range vErrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(InvalidInput, 0, len(keys))
	for _, k := range keys {
		if vErrs[k] == nil {
			continue
		}
		out = append(out, FieldError{Field: k, Err: vErrs[k]})
	}

	if len(out) == 0 {
		return nil
	}

	return out
}
