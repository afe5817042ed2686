package cdkstack

import (
	"context"
	"fmt"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsssm"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"

	"github.com/acorn-pups/dbinfra"
	"github.com/acorn-pups/dbinfra/pkg/params"
)

// ParameterRegistry declares an awsssm.StringParameter per write. Paths are tracked across
// every stack that shares the registry's PathIndex.
type ParameterRegistry struct {
	scope constructs.Construct
	index *PathIndex
}

// PathIndex records which stack declared each parameter path in one app.
type PathIndex struct {
	owners map[string]string
}

func NewPathIndex() *PathIndex {
	return &PathIndex{owners: map[string]string{}}
}

var _ params.Registry = (*ParameterRegistry)(nil)

// NewParameterRegistry returns a registry for scope. A nil index tracks paths for this
// registry only.
func NewParameterRegistry(scope constructs.Construct, index *PathIndex) *ParameterRegistry {
	if index == nil {
		index = NewPathIndex()
	}
	return &ParameterRegistry{scope: scope, index: index}
}

func (r *ParameterRegistry) PutParameter(_ context.Context, p params.Parameter) error {
	if owner, ok := r.index.owners[p.Path]; ok {
		return dbinfra.NewError(dbinfra.ErrorCodeDuplicatePath, p.Path,
			fmt.Sprintf("duplicate parameter path, owned by %s", owner))
	}
	if r.scope.Node().TryFindChild(jsii.String(p.ID)) != nil {
		return fmt.Errorf("construct %s already exists in %s", p.ID, *r.scope.Node().Path())
	}

	props := &awsssm.StringParameterProps{
		ParameterName: jsii.String(p.Path),
		StringValue:   jsii.String(p.Value),
		Description:   jsii.String(p.Description),
		Tier:          parameterTier(p.Tier),
	}
	if p.AllowedPattern != "" {
		props.AllowedPattern = jsii.String(p.AllowedPattern)
	}
	awsssm.NewStringParameter(r.scope, jsii.String(p.ID), props)
	r.index.owners[p.Path] = p.Owner
	return nil
}

func parameterTier(tier string) awsssm.ParameterTier {
	switch tier {
	case "Advanced":
		return awsssm.ParameterTier_ADVANCED
	case "Intelligent-Tiering":
		return awsssm.ParameterTier_INTELLIGENT_TIERING
	default:
		return awsssm.ParameterTier_STANDARD
	}
}

// OutputExporter declares a stack output per export. The export name is set only when the
// output carries one.
type OutputExporter struct {
	scope constructs.Construct
}

var _ params.Exporter = (*OutputExporter)(nil)

func NewOutputExporter(scope constructs.Construct) *OutputExporter {
	return &OutputExporter{scope: scope}
}

func (x *OutputExporter) Export(_ context.Context, e params.Export) error {
	if x.scope.Node().TryFindChild(jsii.String(e.ID)) != nil {
		return fmt.Errorf("construct %s already exists in %s", e.ID, *x.scope.Node().Path())
	}
	props := &awscdk.CfnOutputProps{
		Value:       jsii.String(e.Value),
		Description: jsii.String(e.Description),
	}
	if e.ExportName != "" {
		props.ExportName = jsii.String(e.ExportName)
	}
	awscdk.NewCfnOutput(x.scope, jsii.String(e.ID), props)
	return nil
}
