package actions

import (
	"log/slog"

	"github.com/rendis/itemassert/internal/expressions"
	"github.com/rendis/itemassert/internal/validation"
)

// DocsPluginPrefix namespaces the documents API actions.
const DocsPluginPrefix = "docs"

// RegisterBuiltins registers the assertion actions in the given registry.
func RegisterBuiltins(reg *Registry, validator *validation.JSONSchemaValidator, jq *expressions.Selector, logger *slog.Logger) error {
	all := []Action{
		NewCompareAction(validator, jq, logger),
		NewBinaryAction(validator, logger),
	}
	for _, a := range all {
		if err := reg.Register(a); err != nil {
			return err
		}
	}
	return nil
}

// RegisterDocs registers the documents API actions under DocsPluginPrefix.
func RegisterDocs(reg *Registry, client DocumentRequester, validator *validation.JSONSchemaValidator) error {
	_, err := reg.RegisterPlugin(DocsPluginPrefix, DocsActions(client, validator))
	return err
}
