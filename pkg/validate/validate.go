// Package validate checks a submitted ZApp description in two stages: a
// JSON Schema pass over the raw document (structure, required fields,
// types, port shapes), followed by hand-written semantic checks the
// schema can't express (at least one essential service, no duplicate
// service names, no duplicate port numbers within a service).
package validate

import (
	"encoding/json"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/zoe-analytics/zoe/pkg/apperr"
	"github.com/zoe-analytics/zoe/pkg/types"
)

var (
	zappSchema      *jsonschema.Schema
	structValidator = validator.New(validator.WithRequiredStructEnabled())
)

func init() {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("zapp.json", strings.NewReader(zappSchemaJSON)); err != nil {
		panic("validate: invalid embedded zapp schema: " + err.Error())
	}
	schema, err := compiler.Compile("zapp.json")
	if err != nil {
		panic("validate: compile embedded zapp schema: " + err.Error())
	}
	zappSchema = schema
}

// ZApp validates raw as a ZApp description and, on success, returns the
// decoded value. Every failure is an *apperr.Error of kind
// InvalidDescription carrying a human-readable message.
func ZApp(raw []byte) (*types.ZApp, error) {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, apperr.Wrap(apperr.InvalidDescription, err, "malformed JSON")
	}

	if err := zappSchema.Validate(doc); err != nil {
		return nil, apperr.Wrap(apperr.InvalidDescription, err, "schema validation failed")
	}

	var app types.ZApp
	if err := json.Unmarshal(raw, &app); err != nil {
		return nil, apperr.Wrap(apperr.InvalidDescription, err, "malformed JSON")
	}

	if err := structValidator.Struct(&app); err != nil {
		return nil, apperr.Wrap(apperr.InvalidDescription, err, "field validation failed")
	}

	if err := semanticCheck(&app); err != nil {
		return nil, err
	}

	return &app, nil
}

func semanticCheck(app *types.ZApp) error {
	hasEssential := false
	names := make(map[string]struct{}, len(app.Services))

	for _, svc := range app.Services {
		if svc.Essential {
			hasEssential = true
		}

		if _, dup := names[svc.Name]; dup {
			return apperr.New(apperr.InvalidDescription, "duplicate service name %q", svc.Name)
		}
		names[svc.Name] = struct{}{}

		ports := make(map[int]struct{}, len(svc.Ports))
		for _, port := range svc.Ports {
			if _, dup := ports[port.Number]; dup {
				return apperr.New(apperr.InvalidDescription, "service %q declares duplicate port %d", svc.Name, port.Number)
			}
			ports[port.Number] = struct{}{}
		}
	}

	if !hasEssential {
		return apperr.New(apperr.InvalidDescription, "zapp must declare at least one essential service")
	}

	return nil
}
