// Command acorn-pups-db is the CDK app for the database stacks:
//
//	cdk synth -c environment=prod
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/jsii-runtime-go"

	"github.com/acorn-pups/dbinfra"
	"github.com/acorn-pups/dbinfra/pkg/cdkstack"
	"github.com/acorn-pups/dbinfra/pkg/config"
	"github.com/acorn-pups/dbinfra/pkg/deploy"
	"github.com/acorn-pups/dbinfra/pkg/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	defer jsii.Close()

	app := awscdk.NewApp(nil)
	cfg, err := loadConfig(app)
	if err != nil {
		fmt.Fprintf(os.Stderr, "acorn-pups-db: FAIL: %v\n", err)
		return dbinfra.ExitCode(err)
	}

	ctx := context.Background()
	log, err := logger.Init(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "acorn-pups-db: FAIL: logger: %v\n", err)
		return dbinfra.ExitConfig
	}
	defer func() {
		_ = log.Flush(ctx)
		_ = log.Close()
	}()

	log.Info("synthesizing database infrastructure", cfg.LogFields())
	if _, err := cdkstack.Build(app, cfg, deploy.WithLogger(log)); err != nil {
		log.Error("synthesis failed", map[string]any{"error": err, "error_code": dbinfra.CodeOf(err)})
		fmt.Fprintf(os.Stderr, "acorn-pups-db: FAIL: %v\n", err)
		return dbinfra.ExitCode(err)
	}

	app.Synth(nil)
	return dbinfra.ExitOK
}

// loadConfig layers the CDK context over the file and environment configuration, then
// validates the result.
func loadConfig(app awscdk.App) (*config.Config, error) {
	cfg, err := config.ReadDefault()
	if err != nil {
		return nil, err
	}
	cfg.ApplyContext(contextValues(app, config.ContextEnvironment))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func contextValues(app awscdk.App, keys ...string) map[string]string {
	out := map[string]string{}
	for _, k := range keys {
		if v, ok := app.Node().TryGetContext(jsii.String(k)).(string); ok && v != "" {
			out[k] = v
		}
	}
	return out
}
