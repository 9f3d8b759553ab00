package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

var builtinNames = map[string]Family{
	"nip":                       FamilyInboundCredit,
	"checkout.payment.success":  FamilyCheckoutSuccess,
	"checkout.payment.failed":   FamilyCheckoutFailure,
	"checkout.reversal.success": FamilyCheckoutReversal,
	"payout":                    FamilyPayout,
}

// Registry maps provider event names to families and decodes their payloads
type Registry struct {
	mu       sync.RWMutex
	families map[string]Family
	validate *validator.Validate
}

func NewRegistry() *Registry {
	families := make(map[string]Family, len(builtinNames))
	for name, family := range builtinNames {
		families[name] = family
	}
	return &Registry{families: families, validate: newValidator()}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Register adds or replaces the family for a provider event name
func (r *Registry) Register(name string, family Family) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("event name cannot be empty")
	}
	if !family.Valid() {
		return fmt.Errorf("unknown event family %q for event %q", family, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.families[name] = family
	return nil
}

// Classify returns the family registered for name
func (r *Registry) Classify(name string) (Family, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	family, ok := r.families[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownEvent, name)
	}
	return family, nil
}

// Names lists registered event names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.families))
	for name := range r.families {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Decode turns an envelope into the variant for its family. Unknown payload
// fields are ignored; missing or invalid required fields and sub-kobo amounts
// fail with ErrMalformedEvent.
func (r *Registry) Decode(env Envelope) (Event, error) {
	family, err := r.Classify(env.Event)
	if err != nil {
		return nil, err
	}

	var event Event
	switch family {
	case FamilyInboundCredit:
		event = &InboundCredit{}
	case FamilyCheckoutSuccess:
		event = &CheckoutSuccess{}
	case FamilyCheckoutFailure:
		event = &CheckoutFailure{}
	case FamilyCheckoutReversal:
		event = &CheckoutReversal{}
	case FamilyPayout:
		event = &Payout{}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, env.Event)
	}

	if err := json.Unmarshal(env.Data, event); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, env.Event, err)
	}
	if err := r.validate.Struct(event); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			fields := make([]string, 0, len(validationErrs))
			for _, fe := range validationErrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return nil, fmt.Errorf("%w: %s: invalid fields: %s", ErrMalformedEvent, env.Event, strings.Join(fields, ", "))
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, env.Event, err)
	}
	if err := checkPrecision(event); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, env.Event, err)
	}
	return event, nil
}

func checkPrecision(event Event) error {
	fields := moneyFields(event)
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !WholeMinorUnits(fields[name]) {
			return fmt.Errorf("%s %s has more than %d decimal places", name, fields[name].String(), MinorUnits)
		}
	}
	return nil
}

type aliasFile struct {
	Aliases map[string]string `yaml:"aliases"`
}

// LoadAliases registers extra provider event names from a YAML file of the form
//
//	aliases:
//	  charge.success: checkout-success
func (r *Registry) LoadAliases(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("unable to read %s: %w", path, err)
	}

	var file aliasFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("unable to parse %s: %w", path, err)
	}

	for name, family := range file.Aliases {
		if err := r.Register(name, Family(strings.TrimSpace(family))); err != nil {
			return fmt.Errorf("invalid alias in %s: %w", path, err)
		}
		zap.L().Info("Registered event alias", zap.String("event", name), zap.String("family", family))
	}
	return nil
}
