package parse

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	// Start name used when a route request has no named origin.
	CurrentLocation = "Current Location"

	// End name used when a route request has no named destination.
	Destination = "your destination"
)

// Returned when a payload is missing a required field, or holds a
// malformed one. No partial result accompanies it.
type ParseError struct {
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid payload: %v", e.Err)
	}
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Returned when the upstream server reports that no route could be
// calculated.
type RouteCalculationError struct {
	Title       string
	Description string
}

func (e *RouteCalculationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Title, e.Description)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// Report fields by their JSON names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return v
}

// Validates a decoded payload struct, converting the first failure
// into a ParseError.
func validateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return &ParseError{Err: err}
	}

	fe := verrs[0]

	// Drop the root type name from the namespace
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}

	switch fe.Tag() {
	case "required", "required_without":
		return &ParseError{Field: field, Err: fmt.Errorf("missing")}
	case "oneof":
		return &ParseError{Field: field, Err: fmt.Errorf("'%v' is not one of [%s]", fe.Value(), fe.Param())}
	default:
		return &ParseError{Field: field, Err: fmt.Errorf("failed '%s' check with value '%v'", fe.Tag(), fe.Value())}
	}
}

// Timestamps seen in route payloads. The server has been known to
// drop the zone offset.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05",
}

func parseTime(field string, s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, &ParseError{Field: field, Err: fmt.Errorf("unparseable timestamp '%s'", s)}
}
