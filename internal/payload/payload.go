// Package payload normalizes and validates the landing page request posted by
// the workflow tool.
package payload

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
)

// ErrInvalid is wrapped by every rejected payload.
var ErrInvalid = errors.New("invalid payload")

// HeadlineKey is the only required key.
const HeadlineKey = "header_headline"

var decoder = jsoniter.Config{UseNumber: true}.Froze()

// Request is a normalized landing page payload: every value is a string and
// empty values have been dropped. It is never modified after construction.
type Request struct {
	values map[string]string
}

// New builds a Request from already-normalized values. Empty values are dropped.
func New(values map[string]string) Request {
	r := Request{values: make(map[string]string, len(values))}
	for k, v := range values {
		if v != "" {
			r.values[k] = v
		}
	}
	return r
}

// Get returns the value for key, or "" when absent.
func (r Request) Get(key string) string {
	return r.values[key]
}

// First returns the first non-empty value among keys, together with the key
// that supplied it. Earlier keys take precedence.
func (r Request) First(keys ...string) (value, key string) {
	for _, k := range keys {
		if v, ok := r.values[k]; ok {
			return v, k
		}
	}
	return "", ""
}

// Headline is the page title.
func (r Request) Headline() string {
	return r.values[HeadlineKey]
}

// Keys lists the present keys in sorted order.
func (r Request) Keys() []string {
	keys := make([]string, 0, len(r.values))
	for k := range r.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Map returns a copy of the values.
func (r Request) Map() map[string]string {
	out := make(map[string]string, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// FieldError describes one rejected key.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every problem found in a payload.
type ValidationError struct {
	Details []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		parts = append(parts, d.Field+": "+d.Message)
	}
	return fmt.Sprintf("%s: %s", ErrInvalid, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

// Decode parses a request body. An n8n envelope {"rows": [...]} is unwrapped
// to its first row.
func Decode(body []byte) (Request, error) {
	var raw map[string]any
	if err := decoder.Unmarshal(body, &raw); err != nil {
		return Request{}, &ValidationError{Details: []FieldError{{Field: "body", Message: "must be a JSON object"}}}
	}
	if raw == nil {
		return Request{}, &ValidationError{Details: []FieldError{{Field: "body", Message: "must be a JSON object"}}}
	}
	if rows, ok := raw["rows"].([]any); ok && len(rows) > 0 {
		first, ok := rows[0].(map[string]any)
		if !ok {
			return Request{}, &ValidationError{Details: []FieldError{{Field: "rows[0]", Message: "must be an object"}}}
		}
		raw = first
	}
	delete(raw, "rows")
	return FromMap(raw)
}

// FromMap normalizes a decoded JSON object and validates it. Numbers and
// booleans are stringified, null means absent, and nested values are rejected.
func FromMap(raw map[string]any) (Request, error) {
	values := make(map[string]string, len(raw))
	var details []FieldError
	for k, v := range raw {
		s, err := stringify(v)
		if err != nil {
			details = append(details, FieldError{Field: k, Message: err.Error()})
			continue
		}
		values[k] = strings.TrimSpace(s)
	}
	if len(details) > 0 {
		sortDetails(details)
		return Request{}, &ValidationError{Details: details}
	}
	r := New(values)
	if err := Validate(r); err != nil {
		return Request{}, err
	}
	return r, nil
}

func stringify(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(t), nil
	case bool:
		return strconv.FormatBool(t), nil
	case fmt.Stringer:
		// json.Number from the UseNumber decoder
		return t.String(), nil
	default:
		return "", errors.New("must be a string or number")
	}
}

// rules carries the constraints for the keys that have any.
type rules struct {
	HeaderHeadline  string `json:"header_headline" validate:"required"`
	PageDesign      string `json:"page_design" validate:"omitempty,oneof=a b c"`
	HeroPreposition string `json:"hero_preposition" validate:"omitempty,max=2"`
	HeroBtn1URL     string `json:"hero_btn1_url" validate:"omitempty,max=2048"`
	HeroBtn2URL     string `json:"hero_btn2_url" validate:"omitempty,max=2048"`
	BottomCTAURL    string `json:"bottom_cta_url" validate:"omitempty,max=2048"`
	NcOrder         string `json:"nc_order" validate:"omitempty,numeric"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks r against the payload rules.
func Validate(r Request) error {
	in := rules{
		HeaderHeadline:  r.Get("header_headline"),
		PageDesign:      r.Get("page_design"),
		HeroPreposition: r.Get("hero_preposition"),
		HeroBtn1URL:     r.Get("hero_btn1_url"),
		HeroBtn2URL:     r.Get("hero_btn2_url"),
		BottomCTAURL:    r.Get("bottom_cta_url"),
		NcOrder:         r.Get("nc_order"),
	}
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	details := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, FieldError{Field: fe.Field(), Message: message(fe)})
	}
	sortDetails(details)
	return &ValidationError{Details: details}
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of [" + fe.Param() + "]"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "numeric":
		return "must be a number"
	default:
		return "failed " + fe.Tag()
	}
}

func sortDetails(d []FieldError) {
	sort.Slice(d, func(i, j int) bool { return d[i].Field < d[j].Field })
}

// Sample returns the built-in demonstration payload used by the test endpoint.
func Sample(now time.Time) Request {
	return New(map[string]string{
		"header_headline":      fmt.Sprintf("Test Landing Page %d", now.UnixMilli()),
		"page_design":          "c",
		"hero_text_left":       "Professional",
		"hero_text_right":      "Home Care Services",
		"hero_preposition":     "in",
		"hero_territories_csv": "New York, Brooklyn, Queens",
		"hero_excerpt":         "Quality care when you need it most",
		"hero_btn1_text":       "Get Started",
		"hero_btn1_url":        "https://example.com/contact",
		"hero_btn2_text":       "Learn More",
		"hero_btn2_url":        "https://example.com/about",
		"intro_headline":       "Welcome to Our Services",
		"intro_html":           "<p>We provide exceptional home care services.</p>",
		"cta_headline":         "Ready to Get Started?",
		"cta_text":             "Contact us today for a free consultation",
		"below_headline":       "Our Trusted Services",
		"below_content":        "<p>Trusted by families across the region for over 20 years.</p>",
		"svc1_name":            "Companion Care",
		"svc2_name":            "Respite Care",
		"svc3_name":            "Dementia Care",
		"svc4_name":            "Elite Care",
		"bottom_cta_headline":  "Start Your Journey Today",
		"bottom_cta_url":       "https://example.com/schedule-consultation",
		"bottom_cta_text":      "Schedule Your Free Consultation",
	})
}
