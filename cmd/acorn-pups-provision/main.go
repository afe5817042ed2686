// Command acorn-pups-provision deploys the database tables, parameters and monitoring directly
// through the AWS SDK, without CloudFormation. With -dry-run it runs every phase against
// in-memory providers and prints the result.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"gopkg.in/yaml.v3"

	"github.com/acorn-pups/dbinfra"
	"github.com/acorn-pups/dbinfra/pkg/awsapi"
	"github.com/acorn-pups/dbinfra/pkg/config"
	"github.com/acorn-pups/dbinfra/pkg/deploy"
	"github.com/acorn-pups/dbinfra/pkg/logger"
	"github.com/acorn-pups/dbinfra/pkg/monitoring"
	"github.com/acorn-pups/dbinfra/pkg/observability"
	"github.com/acorn-pups/dbinfra/pkg/params"
	"github.com/acorn-pups/dbinfra/pkg/provision"
)

type options struct {
	configPath  string
	environment string
	outputs     string
	alarmTopic  string
	dryRun      bool
	maxWait     time.Duration
}

func main() {
	os.Exit(run())
}

func run() int {
	var opts options
	flag.StringVar(&opts.configPath, "config", os.Getenv(config.EnvConfigFile), "YAML configuration file")
	flag.StringVar(&opts.environment, "env", "", "environment tag (overrides configuration)")
	flag.StringVar(&opts.outputs, "outputs", "", "outputs file to write (overrides configuration)")
	flag.StringVar(&opts.alarmTopic, "alarm-topic", "", "SNS topic ARN notified by alarms")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "run against in-memory providers and print the result")
	flag.DurationVar(&opts.maxWait, "max-wait", 10*time.Minute, "maximum wait for a table to become active")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(opts, os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "acorn-pups-provision: FAIL: %v\n", err)
		return dbinfra.ExitCode(err)
	}

	log, err := logger.Init(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "acorn-pups-provision: FAIL: logger: %v\n", err)
		return dbinfra.ExitConfig
	}
	defer func() {
		_ = log.Flush(context.WithoutCancel(ctx))
		_ = log.Close()
	}()
	log.Info("provisioning database infrastructure", cfg.LogFields())

	var svc deploy.Services
	if opts.dryRun {
		svc = memoryServices(cfg)
	} else {
		svc, err = awsServices(ctx, cfg, opts, log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "acorn-pups-provision: FAIL: %v\n", err)
			return dbinfra.ExitCode(err)
		}
	}

	var outputs *params.FileExporter
	if cfg.OutputsFile != "" {
		outputs, err = params.NewFileExporter(cfg.OutputsFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "acorn-pups-provision: FAIL: %v\n", err)
			return dbinfra.ExitConfig
		}
		svc.Exporter = outputs
	}

	res, runErr := deployRun(ctx, cfg, svc, log)
	if outputs != nil && res != nil && len(res.Entries) > 0 {
		if err := outputs.Save(); err != nil {
			log.Error("outputs file write failed", map[string]any{"path": cfg.OutputsFile, "error": err})
		}
	}

	if res != nil {
		printPhases(os.Stdout, res.Phases)
		if runErr == nil {
			if err := printAlarmStates(ctx, os.Stdout, svc.Monitoring, res.Plan); err != nil {
				log.Warn("alarm state read failed", map[string]any{"error": err})
			}
		}
		if opts.dryRun {
			if err := printResult(os.Stdout, res); err != nil {
				fmt.Fprintf(os.Stderr, "acorn-pups-provision: FAIL: %v\n", err)
				return dbinfra.ExitFailed
			}
		}
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "acorn-pups-provision: FAIL: %v\n", runErr)
		return dbinfra.ExitCode(runErr)
	}
	return dbinfra.ExitOK
}

func loadConfig(opts options, getenv func(string) string) (*config.Config, error) {
	cfg, err := config.NewLoader(opts.configPath, getenv).Read()
	if err != nil {
		return nil, err
	}
	if opts.environment != "" {
		cfg.Environment = opts.environment
	}
	if opts.outputs != "" {
		cfg.OutputsFile = opts.outputs
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func awsServices(ctx context.Context, cfg *config.Config, opts options, log observability.StructuredLogger) (deploy.Services, error) {
	awsCfg, err := awsapi.LoadConfig(ctx, cfg.AWS, cfg.Region)
	if err != nil {
		return deploy.Services{}, dbinfra.WrapError(dbinfra.ErrorCodeInvalidConfig, "aws", err)
	}

	var alarmActions []string
	if opts.alarmTopic != "" {
		alarmActions = append(alarmActions, opts.alarmTopic)
	}
	return deploy.Services{
		Tables: awsapi.NewTableService(dynamodb.NewFromConfig(awsCfg),
			awsapi.WithTableLogger(log),
			awsapi.WithWait(opts.maxWait, 0),
		),
		Registry: awsapi.NewParameterRegistry(ssm.NewFromConfig(awsCfg), log),
		Monitoring: awsapi.NewMonitoringService(cloudwatch.NewFromConfig(awsCfg), cfg.Region,
			awsapi.WithAlarmActions(alarmActions...),
			awsapi.WithMonitoringLogger(log),
		),
	}, nil
}

func memoryServices(cfg *config.Config) deploy.Services {
	tables := provision.NewMemoryTableService()
	tables.Region = cfg.Region
	if cfg.Account != "" {
		tables.Account = cfg.Account
	}
	return deploy.Services{
		Tables:     tables,
		Registry:   params.NewMemoryRegistry(),
		Monitoring: monitoring.NewMemoryService(),
	}
}

func deployRun(ctx context.Context, cfg *config.Config, svc deploy.Services, log observability.StructuredLogger) (*deploy.Result, error) {
	resolver, err := cfg.Resolver()
	if err != nil {
		return nil, err
	}
	d, err := deploy.New(deploy.Config{
		App:         cfg.App,
		Environment: cfg.Environment,
		Region:      cfg.Region,
	}, svc, deploy.WithResolver(resolver), deploy.WithLogger(log))
	if err != nil {
		return nil, err
	}
	return d.Run(ctx)
}

func printPhases(w io.Writer, phases []deploy.PhaseResult) {
	for _, p := range phases {
		line := fmt.Sprintf("%-10s %-9s %s", p.Name, p.Status, p.Duration.Round(time.Millisecond))
		if p.Err != nil {
			line += "  " + p.Err.Error()
		}
		fmt.Fprintln(w, line)
	}
}

// printAlarmStates prints the current state of every planned alarm when the monitoring
// provider can report it.
func printAlarmStates(ctx context.Context, w io.Writer, svc monitoring.Service, plan monitoring.Plan) error {
	reader, ok := svc.(monitoring.StateReader)
	alarms := plan.Alarms()
	if !ok || len(alarms) == 0 {
		return nil
	}
	names := make([]string, 0, len(alarms))
	for _, a := range alarms {
		names = append(names, a.Name)
	}
	states, err := reader.AlarmStates(ctx, names...)
	if err != nil {
		return err
	}
	for _, n := range names {
		st, ok := states[n]
		if !ok {
			st = "UNKNOWN"
		}
		fmt.Fprintf(w, "%-45s %s\n", n, st)
	}
	return nil
}

type dryRunReport struct {
	RunID      string                  `yaml:"runId"`
	Tables     []provision.TableHandle `yaml:"tables"`
	Parameters []params.Entry          `yaml:"parameters"`
	Monitoring monitoring.Plan         `yaml:"monitoring"`
}

func printResult(w io.Writer, res *deploy.Result) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(dryRunReport{
		RunID:      res.RunID,
		Tables:     res.Handles.All(),
		Parameters: res.Entries,
		Monitoring: res.Plan,
	})
}
