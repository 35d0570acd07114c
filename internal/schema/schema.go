// Package schema provides offline CloudFormation schema validation.
// It checks resources against the schemas of the resource types the
// synthesizer emits.
package schema

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	eksgitops "github.com/lex00/eks-gitops-go"
)

// Options configures schema validation.
type Options struct {
	// Strict reports properties the schema does not know as warnings.
	Strict bool
}

// Result contains schema validation results.
type Result struct {
	Valid    bool
	Errors   []eksgitops.SchemaError
	Warnings []eksgitops.SchemaError
}

// ValidateTemplate validates a CloudFormation template against known schemas.
// Resources and properties are visited in name order.
func ValidateTemplate(template *eksgitops.Template, opts Options) (*Result, error) {
	result := &Result{}
	for _, name := range slices.Sorted(maps.Keys(template.Resources)) {
		errs, warnings := validateResource(name, template.Resources[name], opts)
		result.Errors = append(result.Errors, errs...)
		result.Warnings = append(result.Warnings, warnings...)
	}
	result.Valid = len(result.Errors) == 0
	return result, nil
}

func issue(resource, property, format string, args ...any) eksgitops.SchemaError {
	return eksgitops.SchemaError{Resource: resource, Property: property, Message: fmt.Sprintf(format, args...)}
}

func validateResource(name string, resource eksgitops.ResourceDef, opts Options) (errs, warnings []eksgitops.SchemaError) {
	if !isValidResourceType(resource.Type) {
		errs = append(errs, issue(name, "Type", "invalid resource type format: %s", resource.Type))
	}

	rs, ok := resourceSchemas[resource.Type]
	if !ok {
		warnings = append(warnings, issue(name, "Type", "unknown resource type: %s (schema not available for validation)", resource.Type))
		return errs, warnings
	}

	for _, required := range rs.Required {
		if _, exists := resource.Properties[required]; !exists {
			errs = append(errs, issue(name, required, "missing required property: %s", required))
		}
	}

	for _, prop := range slices.Sorted(maps.Keys(resource.Properties)) {
		ps, known := rs.Properties[prop]
		switch {
		case known:
			errs = append(errs, validateProperty(name, prop, resource.Properties[prop], ps)...)
		case opts.Strict:
			warnings = append(warnings, issue(name, prop, "unknown property: %s", prop))
		}
	}
	return errs, warnings
}

// isValidResourceType checks the AWS::Service::Resource or Custom::Name form.
func isValidResourceType(resourceType string) bool {
	if name, ok := strings.CutPrefix(resourceType, "Custom::"); ok {
		return name != ""
	}
	parts := strings.Split(resourceType, "::")
	return len(parts) == 3 && parts[0] == "AWS"
}

func validateProperty(resource, property string, value any, ps PropertySchema) []eksgitops.SchemaError {
	var errs []eksgitops.SchemaError
	if !isValidType(value, ps.Type) {
		errs = append(errs, issue(resource, property, "expected type %s", ps.Type))
	}
	if s, ok := value.(string); ok && len(ps.AllowedValues) > 0 && !slices.Contains(ps.AllowedValues, s) {
		errs = append(errs, issue(resource, property, "value %q not in allowed values: %v", s, ps.AllowedValues))
	}
	return errs
}

// isValidType checks if a value matches the expected type. Intrinsic
// functions are accepted for every type.
func isValidType(value any, expectedType string) bool {
	if m, ok := value.(map[string]any); ok && len(m) == 1 {
		for key := range m {
			if strings.HasPrefix(key, "Fn::") || key == "Ref" {
				return true
			}
		}
	}

	switch expectedType {
	case "String":
		_, ok := value.(string)
		return ok
	case "Integer":
		switch value.(type) {
		case int, int32, int64, float64:
			return true
		}
		return false
	case "Boolean":
		_, ok := value.(bool)
		return ok
	case "List":
		_, ok := value.([]any)
		return ok
	case "Map":
		_, ok := value.(map[string]any)
		return ok
	default:
		return true
	}
}

// ResourceSchema defines the schema for a resource type.
type ResourceSchema struct {
	Required   []string
	Properties map[string]PropertySchema
}

// PropertySchema defines the schema for a property.
type PropertySchema struct {
	Type          string
	AllowedValues []string
}
