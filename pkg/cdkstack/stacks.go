package cdkstack

import (
	"context"
	"fmt"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"

	"github.com/acorn-pups/dbinfra/pkg/config"
	"github.com/acorn-pups/dbinfra/pkg/deploy"
	"github.com/acorn-pups/dbinfra/pkg/naming"
	"github.com/acorn-pups/dbinfra/pkg/provision"
)

// ManagedBy is the ManagedBy tag value on every resource of the synthesized app.
const ManagedBy = "CDK"

type DatabaseStackProps struct {
	awscdk.StackProps
	// Paths is shared with other stacks of the same app; nil tracks this stack only.
	Paths *PathIndex
}

// DatabaseStack holds the tables, their parameters and their outputs.
type DatabaseStack struct {
	Stack      awscdk.Stack
	Tables     *TableService
	Parameters *ParameterRegistry
	Outputs    *OutputExporter
}

func NewDatabaseStack(scope constructs.Construct, id string, props *DatabaseStackProps) *DatabaseStack {
	var sprops awscdk.StackProps
	var paths *PathIndex
	if props != nil {
		sprops = props.StackProps
		paths = props.Paths
	}
	stack := awscdk.NewStack(scope, jsii.String(id), &sprops)
	return &DatabaseStack{
		Stack:      stack,
		Tables:     NewTableService(stack),
		Parameters: NewParameterRegistry(stack, paths),
		Outputs:    NewOutputExporter(stack),
	}
}

type MonitoringStackProps struct {
	awscdk.StackProps
}

// MonitoringStack holds the dashboard and alarms.
type MonitoringStack struct {
	Stack      awscdk.Stack
	Monitoring *MonitoringService
}

func NewMonitoringStack(scope constructs.Construct, id string, props *MonitoringStackProps) *MonitoringStack {
	var sprops awscdk.StackProps
	if props != nil {
		sprops = props.StackProps
	}
	stack := awscdk.NewStack(scope, jsii.String(id), &sprops)
	return &MonitoringStack{Stack: stack, Monitoring: NewMonitoringService(stack)}
}

// Stacks is the synthesized app.
type Stacks struct {
	Database   *DatabaseStack
	Monitoring *MonitoringStack
	Result     *deploy.Result
}

// Build declares the database and monitoring stacks for cfg.Environment under app and fills
// them by running the deployment phases against construct-backed providers. The environment
// is resolved before any stack is created, so an unknown tag leaves app empty.
func Build(app awscdk.App, cfg *config.Config, opts ...deploy.Option) (*Stacks, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	resolver, err := cfg.Resolver()
	if err != nil {
		return nil, err
	}
	if _, err := resolver.Resolve(cfg.Environment); err != nil {
		return nil, err
	}

	env := &awscdk.Environment{Region: jsii.String(cfg.Region)}
	if cfg.Account != "" {
		env.Account = jsii.String(cfg.Account)
	}

	paths := NewPathIndex()
	db := NewDatabaseStack(app, naming.StackName(cfg.App, cfg.Environment, deploy.ComponentDatabase), &DatabaseStackProps{
		StackProps: awscdk.StackProps{
			Env:         env,
			Description: jsii.String(fmt.Sprintf("DynamoDB tables for %s (%s)", cfg.App, cfg.Environment)),
		},
		Paths: paths,
	})
	mon := NewMonitoringStack(app, naming.StackName(cfg.App, cfg.Environment, deploy.ComponentMonitoring), &MonitoringStackProps{
		StackProps: awscdk.StackProps{
			Env:         env,
			Description: jsii.String(fmt.Sprintf("DynamoDB dashboard and alarms for %s (%s)", cfg.App, cfg.Environment)),
		},
	})
	mon.Stack.AddDependency(db.Stack, jsii.String("alarms reference the tables"))

	tags := provision.DefaultTags(cfg.App, cfg.Environment)
	tags["ManagedBy"] = ManagedBy
	for _, k := range sortedKeys(tags) {
		awscdk.Tags_Of(app).Add(jsii.String(k), jsii.String(tags[k]), nil)
	}

	d, err := deploy.New(deploy.Config{
		App:         cfg.App,
		Environment: cfg.Environment,
		Region:      cfg.Region,
	}, deploy.Services{
		Tables:     db.Tables,
		Registry:   db.Parameters,
		Exporter:   db.Outputs,
		Monitoring: mon.Monitoring,
	}, append([]deploy.Option{deploy.WithResolver(resolver)}, opts...)...)
	if err != nil {
		return nil, err
	}

	res, err := d.Run(context.Background())
	return &Stacks{Database: db, Monitoring: mon, Result: res}, err
}
