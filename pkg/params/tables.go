package params

import (
	"context"
	"fmt"

	"github.com/acorn-pups/dbinfra"
	"github.com/acorn-pups/dbinfra/pkg/naming"
	"github.com/acorn-pups/dbinfra/pkg/provision"
)

// TableOutputs returns the name and ARN outputs for every handle, in provisioning order.
// Paths follow /<app>/<env>/dynamodb-tables/<resource>/{name|arn}.
func TableOutputs(app, env string, handles provision.Handles) ([]Output, error) {
	all := handles.All()
	entities := make([]string, 0, len(all))
	for _, h := range all {
		entities = append(entities, h.Entity)
	}
	if err := handles.RequireResolved(dbinfra.ErrorCodePublishFailed, entities); err != nil {
		return nil, err
	}

	outs := make([]Output, 0, 2*len(all))
	for _, h := range all {
		display := h.DisplayName
		if display == "" {
			display = h.Entity
		}
		outs = append(outs,
			Output{
				ID:          naming.TableOutputID(h.Entity, naming.AttrName),
				Value:       h.Name,
				Description: fmt.Sprintf("Name of the %s DynamoDB table", display),
				ExportName:  naming.TableExportName(app, h.Resource, naming.AttrName, env),
				Path:        naming.TableParameterPath(app, env, h.Resource, naming.AttrName),
			},
			Output{
				ID:          naming.TableOutputID(h.Entity, naming.AttrArn),
				Value:       h.Identifier,
				Description: fmt.Sprintf("ARN of the %s DynamoDB table", display),
				ExportName:  naming.TableExportName(app, h.Resource, naming.AttrArn, env),
				Path:        naming.TableParameterPath(app, env, h.Resource, naming.AttrArn),
			},
		)
	}
	return outs, nil
}

// PublishTables publishes TableOutputs for handles as one batch.
func (p *Publisher) PublishTables(ctx context.Context, handles provision.Handles) ([]Entry, error) {
	outs, err := TableOutputs(p.cfg.App, p.cfg.Environment, handles)
	if err != nil {
		return nil, err
	}
	entries, err := p.PublishBatch(ctx, outs)
	if err != nil {
		return entries, err
	}
	p.logger.Info("table identities published", map[string]any{"tables": handles.Len(), "parameters": len(entries)})
	return entries, nil
}

// TableRef is a consumer's view of a published table.
type TableRef struct {
	Name string
	Arn  string
}

// ResolveTable reads the published name and ARN of a table. Consumers need only the app,
// environment and resource name.
func ResolveTable(ctx context.Context, r Reader, app, env, resource string) (TableRef, error) {
	namePath := naming.TableParameterPath(app, env, resource, naming.AttrName)
	name, err := r.GetParameter(ctx, namePath)
	if err != nil {
		return TableRef{}, fmt.Errorf("resolve %s: %w", namePath, err)
	}
	arnPath := naming.TableParameterPath(app, env, resource, naming.AttrArn)
	arn, err := r.GetParameter(ctx, arnPath)
	if err != nil {
		return TableRef{}, fmt.Errorf("resolve %s: %w", arnPath, err)
	}
	return TableRef{Name: name, Arn: arn}, nil
}
