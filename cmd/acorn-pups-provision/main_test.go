package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/acorn-pups/dbinfra"
	"github.com/acorn-pups/dbinfra/pkg/config"
	"github.com/acorn-pups/dbinfra/pkg/deploy"
	"github.com/acorn-pups/dbinfra/pkg/monitoring"
	"github.com/acorn-pups/dbinfra/pkg/observability"
	"github.com/acorn-pups/dbinfra/pkg/params"
)

func env(values map[string]string) func(string) string {
	return func(k string) string { return values[k] }
}

func TestLoadConfig_FlagsOverrideEnvironment(t *testing.T) {
	t.Parallel()

	cfg, err := loadConfig(options{environment: "prod", outputs: "out.yaml"}, env(map[string]string{
		config.EnvEnvironment: "dev",
		config.EnvOutputsFile: "env.yaml",
	}))
	require.NoError(t, err)
	require.Equal(t, "prod", cfg.Environment)
	require.Equal(t, "out.yaml", cfg.OutputsFile)
}

func TestLoadConfig_FlagOverridesInvalidEnvironmentVariable(t *testing.T) {
	t.Parallel()

	cfg, err := loadConfig(options{environment: "dev"}, env(map[string]string{
		config.EnvEnvironment: "staging",
	}))
	require.NoError(t, err)
	require.Equal(t, "dev", cfg.Environment)

	_, err = loadConfig(options{}, env(map[string]string{config.EnvEnvironment: "staging"}))
	require.True(t, dbinfra.IsCode(err, dbinfra.ErrorCodeInvalidEnvironment))
}

func TestLoadConfig_UnknownEnvironmentIsConfigError(t *testing.T) {
	t.Parallel()

	_, err := loadConfig(options{environment: "staging"}, env(nil))
	require.True(t, dbinfra.IsCode(err, dbinfra.ErrorCodeInvalidEnvironment))
	require.Equal(t, dbinfra.ExitConfig, dbinfra.ExitCode(err))
}

func TestDryRun_PublishesEveryTable(t *testing.T) {
	t.Parallel()

	cfg, err := loadConfig(options{environment: "prod"}, env(nil))
	require.NoError(t, err)

	svc := memoryServices(cfg)
	outputs, err := params.NewFileExporter(filepath.Join(t.TempDir(), "outputs.yaml"))
	require.NoError(t, err)
	svc.Exporter = outputs

	res, err := deployRun(context.Background(), cfg, svc, observability.NewTestLogger())
	require.NoError(t, err)
	require.Len(t, res.Entries, 14)
	require.Len(t, res.Plan.Alarms(), 21)
	require.NoError(t, outputs.Save())

	var buf bytes.Buffer
	require.NoError(t, printResult(&buf, res))

	var report struct {
		RunID      string           `yaml:"runId"`
		Parameters []map[string]any `yaml:"parameters"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &report))
	require.Equal(t, res.RunID, report.RunID)
	require.Len(t, report.Parameters, 14)
	require.Equal(t, "/acorn-pups/prod/dynamodb-tables/users/name", report.Parameters[0]["path"])
}

func TestPrintPhases(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	printPhases(&buf, []deploy.PhaseResult{
		{Name: deploy.PhasePolicy, Status: deploy.StatusSucceeded, Duration: 1500 * time.Microsecond},
		{Name: deploy.PhaseProvision, Status: deploy.StatusFailed, Err: errors.New("boom")},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasPrefix(lines[0], "policy     succeeded 2ms"), lines[0])
	require.True(t, strings.HasSuffix(lines[1], "  boom"), lines[1])
}

func TestPrintAlarmStates(t *testing.T) {
	t.Parallel()

	cfg, err := loadConfig(options{environment: "prod"}, env(nil))
	require.NoError(t, err)
	svc := memoryServices(cfg)
	res, err := deployRun(context.Background(), cfg, svc, observability.NewTestLogger())
	require.NoError(t, err)

	mem := svc.Monitoring.(*monitoring.MemoryService)
	mem.SetState("acorn-pups-users-system-errors", monitoring.StateAlarm)

	var buf bytes.Buffer
	require.NoError(t, printAlarmStates(context.Background(), &buf, svc.Monitoring, res.Plan))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 21)
	require.Contains(t, lines, fmt.Sprintf("%-45s %s", "acorn-pups-users-read-throttle", "NORMAL"))
	require.Contains(t, lines, fmt.Sprintf("%-45s %s", "acorn-pups-users-system-errors", "ALARM"))

	buf.Reset()
	require.NoError(t, printAlarmStates(context.Background(), &buf, svc.Monitoring, monitoring.Plan{}))
	require.Empty(t, buf.String())
}
