// Package validate provides the field format checks applied to record input.
//
// Each check is registered as a custom tag on a go-playground validator
// engine and is addressed through an explicit Kind. Entity definitions name a
// Kind per field; names that do not resolve to a Kind are rejected when the
// registry is built.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Kind identifies a field format.
type Kind string

const (
	Email     Kind = "email"
	Phone     Kind = "phone"
	GSTNumber Kind = "gst_number"
	PAN       Kind = "pan"
)

// ErrUnknownKind is returned by ParseKind for names with no registered check.
var ErrUnknownKind = errors.New("unknown validator kind")

var patterns = map[Kind]*regexp.Regexp{
	// Prefix match: anything after the domain dot is accepted.
	Email: regexp.MustCompile(`^[^@]+@[^@]+\.[^@]+`),
	Phone: regexp.MustCompile(`^\+?[\d\s-]{10,}$`),
	// 2-digit state code, PAN, entity number, 'Z', checksum.
	GSTNumber: regexp.MustCompile(`^\d{2}[A-Z]{5}\d{4}[A-Z][A-Z\d]Z[A-Z\d]$`),
	PAN:       regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`),
}

var tags = map[Kind]string{
	Email:     "ledger_email",
	Phone:     "ledger_phone",
	GSTNumber: "ledger_gstin",
	PAN:       "ledger_pan",
}

// aliases maps accepted configuration names onto kinds. The validate_* forms
// are the method names older entity catalogs used.
var aliases = map[string]Kind{
	"email":               Email,
	"validate_email":      Email,
	"phone":               Phone,
	"validate_phone":      Phone,
	"gst":                 GSTNumber,
	"gst_number":          GSTNumber,
	"gstin":               GSTNumber,
	"validate_gst_number": GSTNumber,
	"pan":                 PAN,
	"validate_pan":        PAN,
}

var engine = newEngine()

func newEngine() *validator.Validate {
	v := validator.New()
	for kind, re := range patterns {
		re := re
		err := v.RegisterValidation(tags[kind], func(fl validator.FieldLevel) bool {
			f := fl.Field()
			return f.Kind() == reflect.String && re.MatchString(f.String())
		})
		if err != nil {
			panic(fmt.Sprintf("validate: register %s: %v", kind, err))
		}
	}
	return v
}

// ParseKind resolves a configured validator name.
func ParseKind(name string) (Kind, error) {
	k, ok := aliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, name)
	}
	return k, nil
}

// Check reports whether value satisfies the format named by kind.
// Non-string values and unknown kinds never pass.
func Check(kind Kind, value any) bool {
	s, ok := value.(string)
	if !ok {
		return false
	}
	tag, ok := tags[kind]
	if !ok {
		return false
	}
	return engine.Var(s, tag) == nil
}

func ValidateEmail(value string) bool     { return Check(Email, value) }
func ValidatePhone(value string) bool     { return Check(Phone, value) }
func ValidateGSTNumber(value string) bool { return Check(GSTNumber, value) }
func ValidatePAN(value string) bool       { return Check(PAN, value) }
