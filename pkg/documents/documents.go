// Package documents canonicalizes client document types and evaluates
// required-document checklists against the documents stored for a deal.
package documents

import (
	"encoding/json"
	"slices"
	"strings"

	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/template"
)

// disabledTypes are never required by task checklists.
var disabledTypes = []string{"bank_statements", "proof_of_income"}

var defaultTypes = []template.DocumentTypeDefinition{
	{Value: "passport", Label: "Passport"},
	{Value: "emirates_id", Label: "Emirates ID"},
	{Value: "driving_license", Label: "Driving license"},
	{Value: "salary_certificate", Label: "Salary certificate"},
	{Value: "bank_statement", Label: "Bank statement"},
	{Value: "company_bank_statement", Label: "Company bank statement"},
	{Value: "trade_license", Label: "Trade license"},
	{Value: "proof_of_income", Label: "Proof of income"},
}

var defaultAliases = map[string]string{
	"passport_copy":    "passport",
	"eid":              "emirates_id",
	"emirates_id_copy": "emirates_id",
	"driver_license":   "driving_license",
	"drivers_license":  "driving_license",
	"salary_cert":      "salary_certificate",
	"bank_statements":  "bank_statement",
	"income_proof":     "proof_of_income",
}

// Registry maps raw document type strings to canonical values and labels.
type Registry struct {
	labels  map[string]string
	aliases map[string]string
}

// NewRegistry returns the built-in types extended and overridden by the
// template's document_types section.
func NewRegistry(overrides template.DocumentTypes) *Registry {
	r := &Registry{
		labels:  make(map[string]string, len(defaultTypes)),
		aliases: make(map[string]string, len(defaultAliases)),
	}

	for _, def := range defaultTypes {
		r.labels[def.Value] = def.Label
	}

	for alias, target := range defaultAliases {
		r.aliases[alias] = target
	}

	for _, def := range overrides.Registry {
		value := canonicalForm(def.Value)
		if value == "" {
			continue
		}

		label := def.Label
		if label == "" {
			label = def.Value
		}

		r.labels[value] = label
	}

	for _, alias := range overrides.Aliases {
		r.aliases[canonicalForm(alias.Alias)] = canonicalForm(alias.Target)
	}

	return r
}

func DefaultRegistry() *Registry {
	return NewRegistry(template.DocumentTypes{})
}

func canonicalForm(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))

	return strings.NewReplacer("-", "_", " ", "_").Replace(value)
}

// Normalize returns the canonical type for raw, or "" when it is unknown.
func (r *Registry) Normalize(raw string) string {
	value := canonicalForm(raw)
	if value == "" {
		return ""
	}

	if target, ok := r.aliases[value]; ok {
		value = target
	}

	if _, ok := r.labels[value]; !ok {
		return ""
	}

	return value
}

// Label returns the display label of a type, falling back to raw.
func (r *Registry) Label(raw string) string {
	if normalized := r.Normalize(raw); normalized != "" {
		return r.labels[normalized]
	}

	return raw
}

type Item struct {
	Key            string             `json:"key"`
	NormalizedType string             `json:"normalized_type,omitempty"`
	Label          string             `json:"label"`
	Fulfilled      bool               `json:"fulfilled"`
	Matches        []*models.Document `json:"matches"`
}

type Checklist struct {
	Items     []Item `json:"items"`
	Fulfilled bool   `json:"fulfilled"`
}

// Evaluate matches each required type against docs by canonical type. An
// empty requirement list is never fulfilled.
func (r *Registry) Evaluate(required []string, docs []*models.Document) Checklist {
	byType := make(map[string][]*models.Document)

	for _, doc := range docs {
		if normalized := r.Normalize(doc.DocumentType); normalized != "" {
			byType[normalized] = append(byType[normalized], doc)
		}
	}

	checklist := Checklist{Items: make([]Item, 0, len(required))}

	for _, raw := range required {
		normalized := r.Normalize(raw)

		var matches []*models.Document
		if normalized != "" {
			matches = byType[normalized]
		}

		if matches == nil {
			matches = []*models.Document{}
		}

		checklist.Items = append(checklist.Items, Item{
			Key:            raw,
			NormalizedType: normalized,
			Label:          r.Label(raw),
			Fulfilled:      len(matches) > 0,
			Matches:        matches,
		})
	}

	checklist.Fulfilled = len(checklist.Items) > 0
	for _, item := range checklist.Items {
		if !item.Fulfilled {
			checklist.Fulfilled = false

			break
		}
	}

	return checklist
}

// FilterDisabled drops types that checklists never require.
func FilterDisabled(values []string) []string {
	filtered := make([]string, 0, len(values))

	for _, value := range values {
		if !slices.Contains(disabledTypes, value) {
			filtered = append(filtered, value)
		}
	}

	return filtered
}

// ChecklistFromTaskPayload reads fields.checklist, then defaults.checklist.
// Either may be a list or a JSON encoded list.
func ChecklistFromTaskPayload(payload map[string]any) []string {
	for _, branch := range []string{"fields", "defaults"} {
		source, ok := payload[branch].(map[string]any)
		if !ok {
			continue
		}

		if values, ok := checklistValues(source["checklist"]); ok {
			return FilterDisabled(values)
		}
	}

	return []string{}
}

func checklistValues(raw any) ([]string, bool) {
	var items []any

	switch value := raw.(type) {
	case []any:
		items = value
	case []string:
		for _, item := range value {
			items = append(items, item)
		}
	case string:
		err := json.Unmarshal([]byte(value), &items)
		if err != nil {
			return nil, false
		}
	default:
		return nil, false
	}

	values := make([]string, 0, len(items))

	for _, item := range items {
		if text, ok := item.(string); ok && strings.TrimSpace(text) != "" {
			values = append(values, text)
		}
	}

	return values, true
}
