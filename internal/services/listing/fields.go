package listing

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"gopkg.in/yaml.v3"

	"github.com/easyvinted/publisher/internal/models"
)

// FieldKind tells the engine how to drive a form control
type FieldKind string

const (
	KindText     FieldKind = "text"
	KindTextarea FieldKind = "textarea"
	KindNumber   FieldKind = "number"
	// KindSelect clicks Selector to open a dropdown, then the option by label
	KindSelect FieldKind = "select"
	// KindSearch types into Selector, then clicks the matching suggestion
	KindSearch FieldKind = "search"
)

// Article fields a mapping may reference
var knownFields = map[string]bool{
	"title": true, "description": true, "brand": true, "size": true,
	"condition": true, "price": true, "color": true, "material": true,
	"category.main": true, "category.sub": true, "category.item": true,
}

// FieldSpec binds one article field to one form control
type FieldSpec struct {
	Field    string    `yaml:"field"`
	Selector string    `yaml:"selector"`
	Kind     FieldKind `yaml:"kind"`
}

// FieldMap is the declarative description of the create-listing form
type FieldMap struct {
	Fields []FieldSpec `yaml:"fields"`

	// Conditions maps the condition enum to the form's visible label
	Conditions map[models.Condition]string `yaml:"conditions"`
}

// FieldValue is one resolved assignment
type FieldValue struct {
	Spec  FieldSpec
	Value string
}

// DefaultFieldMap targets the vinted.fr upload form
func DefaultFieldMap() *FieldMap {
	return &FieldMap{
		Fields: []FieldSpec{
			{Field: "title", Selector: `input[data-testid="title--input"]`, Kind: KindText},
			{Field: "description", Selector: `textarea[data-testid="description--input"]`, Kind: KindTextarea},
			{Field: "category.main", Selector: `input[data-testid="catalog-select-dropdown-input"]`, Kind: KindSelect},
			{Field: "category.sub", Kind: KindSelect},
			{Field: "category.item", Kind: KindSelect},
			{Field: "brand", Selector: `input[data-testid="brand-select-dropdown-input"]`, Kind: KindSearch},
			{Field: "size", Selector: `input[data-testid="size-select-dropdown-input"]`, Kind: KindSelect},
			{Field: "condition", Selector: `input[data-testid="condition-select-dropdown-input"]`, Kind: KindSelect},
			{Field: "color", Selector: `input[data-testid="color-select-dropdown-input"]`, Kind: KindSelect},
			{Field: "material", Selector: `input[data-testid="material-select-dropdown-input"]`, Kind: KindSelect},
			{Field: "price", Selector: `input[data-testid="price-input--input"]`, Kind: KindNumber},
		},
		Conditions: defaultConditionLabels(),
	}
}

func defaultConditionLabels() map[models.Condition]string {
	return map[models.Condition]string{
		models.ConditionNewWithTags:    "Neuf avec étiquette",
		models.ConditionNewWithoutTags: "Neuf sans étiquette",
		models.ConditionVeryGood:       "Très bon état",
		models.ConditionGood:           "Bon état",
		models.ConditionSatisfactory:   "Satisfaisant",
	}
}

// LoadFieldMap reads a YAML mapping; an empty path yields the default.
// Condition labels missing from the file keep their defaults.
func LoadFieldMap(path string) (*FieldMap, error) {
	if path == "" {
		return DefaultFieldMap(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read field map %s: %w", path, err)
	}

	var fm FieldMap
	if err := yaml.Unmarshal(data, &fm); err != nil {
		return nil, fmt.Errorf("failed to parse field map %s: %w", path, err)
	}

	if len(fm.Fields) == 0 {
		fm.Fields = DefaultFieldMap().Fields
	}
	labels := defaultConditionLabels()
	for k, v := range fm.Conditions {
		labels[k] = v
	}
	fm.Conditions = labels

	if err := fm.Validate(); err != nil {
		return nil, fmt.Errorf("invalid field map %s: %w", path, err)
	}
	return &fm, nil
}

// Validate rejects unknown fields and kinds
func (fm *FieldMap) Validate() error {
	for i, spec := range fm.Fields {
		if !knownFields[spec.Field] {
			return fmt.Errorf("fields[%d]: unknown article field %q", i, spec.Field)
		}
		switch spec.Kind {
		case KindText, KindTextarea, KindNumber, KindSearch:
			if spec.Selector == "" {
				return fmt.Errorf("fields[%d]: %s needs a selector", i, spec.Field)
			}
		case KindSelect:
		default:
			return fmt.Errorf("fields[%d]: unknown kind %q", i, spec.Kind)
		}
	}
	return nil
}

// Values resolves every mapped field against article, in mapping order.
// Empty optional values are skipped.
func (fm *FieldMap) Values(article *models.Article) []FieldValue {
	values := make([]FieldValue, 0, len(fm.Fields))
	for _, spec := range fm.Fields {
		value := fm.valueOf(spec.Field, article)
		if strings.TrimSpace(value) == "" {
			continue
		}
		values = append(values, FieldValue{Spec: spec, Value: value})
	}
	return values
}

func (fm *FieldMap) valueOf(field string, a *models.Article) string {
	switch field {
	case "title":
		return a.Title
	case "description":
		return NormalizeDescription(a.Description)
	case "brand":
		return a.Brand
	case "size":
		return a.Size
	case "condition":
		if a.Condition == "" {
			return ""
		}
		if label, ok := fm.Conditions[a.Condition]; ok {
			return label
		}
		return string(a.Condition)
	case "price":
		return FormatPrice(a.Price)
	case "color":
		return a.Color
	case "material":
		return a.Material
	case "category.main":
		return a.Category.Main
	case "category.sub":
		return a.Category.Sub
	case "category.item":
		return a.Category.Item
	}
	return ""
}

// FormatPrice renders a plain decimal; currency and locale are the form's job
func FormatPrice(price float64) string {
	return strconv.FormatFloat(price, 'f', -1, 64)
}

var markupPattern = regexp.MustCompile(`<[a-zA-Z/][^>]*>`)

// NormalizeDescription turns rich-text HTML from the editor into plain markdown text
func NormalizeDescription(description string) string {
	if !markupPattern.MatchString(description) {
		return strings.TrimSpace(description)
	}
	converted, err := md.NewConverter("", true, nil).ConvertString(description)
	if err != nil || strings.TrimSpace(converted) == "" {
		return strings.TrimSpace(markupPattern.ReplaceAllString(description, " "))
	}
	return strings.TrimSpace(converted)
}
