// Package params publishes provisioned resource identities to a parameter registry and an
// export mechanism under deterministic paths, and resolves them on the consumer side.
package params

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/acorn-pups/dbinfra"
	"github.com/acorn-pups/dbinfra/pkg/naming"
	"github.com/acorn-pups/dbinfra/pkg/observability"
)

// Registry defaults.
const (
	TierStandard          = "Standard"
	AllowedPatternAny     = ".*"
	parameterIDSuffix     = "Parameter"
	maxDescriptionLength  = 1024
	maxParameterPathDepth = 15
)

// Output is one value to publish.
type Output struct {
	ID          string
	Value       string
	Description string
	// ExportName is optional; when empty no export alias is created.
	ExportName string
	// Path is optional; when empty it is derived from the stack and output ID.
	Path string
}

// Parameter is one registry write.
type Parameter struct {
	ID             string
	Path           string
	Value          string
	Description    string
	Tier           string
	AllowedPattern string
	// Owner is the publishing stack. Registries use it to reject writes to a path another
	// stack already owns.
	Owner string
}

// Export is one export-mechanism write.
type Export struct {
	ID          string
	Value       string
	Description string
	ExportName  string
	Stack       string
}

// Entry records a completed publication.
type Entry struct {
	OutputID    string `json:"outputId" yaml:"outputId"`
	Path        string `json:"path" yaml:"path"`
	Value       string `json:"value" yaml:"value"`
	Description string `json:"description" yaml:"description"`
	ExportName  string `json:"exportName,omitempty" yaml:"exportName,omitempty"`
}

// Registry stores parameters under hierarchical paths.
type Registry interface {
	PutParameter(ctx context.Context, p Parameter) error
}

// Exporter makes an output visible to other stacks by name.
type Exporter interface {
	Export(ctx context.Context, e Export) error
}

// Reader reads a parameter value by path.
type Reader interface {
	GetParameter(ctx context.Context, path string) (string, error)
}

// Config scopes a Publisher to one stack in one environment.
type Config struct {
	App         string
	Environment string
	StackName   string
}

// Publisher writes outputs for one stack. It remembers every path and output ID it has
// published so a collision is reported before any write is made.
type Publisher struct {
	cfg      Config
	registry Registry
	exporter Exporter
	logger   observability.StructuredLogger

	paths   map[string]string
	ids     map[string]bool
	entries []Entry
}

type Option func(*Publisher)

func WithLogger(l observability.StructuredLogger) Option {
	return func(p *Publisher) {
		p.logger = l
	}
}

// NewPublisher returns a Publisher. exporter may be nil when outputs are registry-only.
func NewPublisher(cfg Config, registry Registry, exporter Exporter, opts ...Option) (*Publisher, error) {
	if strings.TrimSpace(cfg.App) == "" || strings.TrimSpace(cfg.Environment) == "" || strings.TrimSpace(cfg.StackName) == "" {
		return nil, dbinfra.NewError(dbinfra.ErrorCodeInvalidConfig, cfg.StackName, "publisher requires app, environment and stack name")
	}
	if registry == nil {
		return nil, dbinfra.NewError(dbinfra.ErrorCodeInvalidConfig, cfg.StackName, "publisher requires a parameter registry")
	}
	p := &Publisher{
		cfg:      cfg,
		registry: registry,
		exporter: exporter,
		logger:   observability.NewNoOpLogger(),
		paths:    map[string]string{},
		ids:      map[string]bool{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	p.logger = observability.OrNoOp(p.logger).WithComponent("publish").WithStack(cfg.StackName)
	return p, nil
}

// Path returns the generated registry path for outputID.
func (p *Publisher) Path(outputID string) string {
	return naming.OutputParameterPath(p.cfg.App, p.cfg.Environment, p.cfg.StackName, outputID)
}

// Entries returns every publication made so far, in order.
func (p *Publisher) Entries() []Entry {
	return append([]Entry(nil), p.entries...)
}

// Publish writes one registry parameter and, when an exporter is configured, one export.
func (p *Publisher) Publish(ctx context.Context, out Output) (Entry, error) {
	entries, err := p.PublishBatch(ctx, []Output{out})
	if err != nil {
		return Entry{}, err
	}
	return entries[0], nil
}

// PublishBatch publishes outputs in order. The whole batch is checked for empty IDs,
// duplicate output IDs and duplicate paths (within the batch and against earlier publications)
// before the first write.
func (p *Publisher) PublishBatch(ctx context.Context, outs []Output) ([]Entry, error) {
	resolved, err := p.prepare(outs)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(resolved))
	for _, out := range resolved {
		if err := p.write(ctx, out, true); err != nil {
			return entries, err
		}
		entries = append(entries, p.record(out))
	}
	return entries, nil
}

// PublishParameter writes a registry parameter without an export.
func (p *Publisher) PublishParameter(ctx context.Context, id, value, description, path string) (Entry, error) {
	resolved, err := p.prepare([]Output{{ID: id, Value: value, Description: description, Path: path}})
	if err != nil {
		return Entry{}, err
	}
	if err := p.write(ctx, resolved[0], false); err != nil {
		return Entry{}, err
	}
	return p.record(resolved[0]), nil
}

func (p *Publisher) prepare(outs []Output) ([]Output, error) {
	batchPaths := map[string]string{}
	batchIDs := map[string]bool{}
	resolved := make([]Output, 0, len(outs))
	for _, out := range outs {
		if strings.TrimSpace(out.ID) == "" {
			return nil, dbinfra.NewError(dbinfra.ErrorCodePublishFailed, "", "output id is required")
		}
		if out.Path == "" {
			out.Path = p.Path(out.ID)
		}
		if err := validatePath(out.Path); err != nil {
			return nil, dbinfra.WrapError(dbinfra.ErrorCodePublishFailed, out.Path, err)
		}
		if p.ids[out.ID] || batchIDs[out.ID] {
			return nil, dbinfra.NewError(dbinfra.ErrorCodePublishFailed, out.ID, "duplicate output id")
		}
		if owner, ok := p.paths[out.Path]; ok {
			return nil, dbinfra.NewError(dbinfra.ErrorCodeDuplicatePath, out.Path,
				fmt.Sprintf("duplicate parameter path, already published by %s", owner))
		}
		if owner, ok := batchPaths[out.Path]; ok {
			return nil, dbinfra.NewError(dbinfra.ErrorCodeDuplicatePath, out.Path,
				fmt.Sprintf("duplicate parameter path, also used by %s", owner))
		}
		batchPaths[out.Path] = out.ID
		batchIDs[out.ID] = true
		resolved = append(resolved, out)
	}
	return resolved, nil
}

func (p *Publisher) write(ctx context.Context, out Output, export bool) error {
	if err := ctx.Err(); err != nil {
		return dbinfra.WrapError(dbinfra.ErrorCodePublishFailed, out.Path, err)
	}

	param := Parameter{
		ID:             out.ID + parameterIDSuffix,
		Path:           out.Path,
		Value:          out.Value,
		Description:    RegistryDescription(p.cfg.StackName, out.Description),
		Tier:           TierStandard,
		AllowedPattern: AllowedPatternAny,
		Owner:          p.cfg.StackName,
	}
	if err := p.registry.PutParameter(ctx, param); err != nil {
		p.logger.Error("parameter write failed", map[string]any{"path": out.Path, "error": err})
		if dbinfra.CodeOf(err) != "" {
			return err
		}
		return dbinfra.WrapError(dbinfra.ErrorCodePublishFailed, out.Path, err)
	}

	if export && p.exporter != nil {
		err := p.exporter.Export(ctx, Export{
			ID:          out.ID,
			Value:       out.Value,
			Description: out.Description,
			ExportName:  out.ExportName,
			Stack:       p.cfg.StackName,
		})
		if err != nil {
			p.logger.Error("export failed", map[string]any{"output": out.ID, "error": err})
			return dbinfra.WrapError(dbinfra.ErrorCodePublishFailed, out.ID, err)
		}
	}

	p.logger.Debug("published", map[string]any{"path": out.Path, "output": out.ID, "export": out.ExportName})
	return nil
}

func (p *Publisher) record(out Output) Entry {
	p.paths[out.Path] = out.ID
	p.ids[out.ID] = true
	e := Entry{
		OutputID:    out.ID,
		Path:        out.Path,
		Value:       out.Value,
		Description: out.Description,
		ExportName:  out.ExportName,
	}
	p.entries = append(p.entries, e)
	return e
}

// RegistryDescription prefixes description with the owning stack, "[<stack>] <description>".
// The result is cut to the registry's character limit on a rune boundary.
func RegistryDescription(stack, description string) string {
	d := "[" + stack + "] " + description
	if utf8.RuneCountInString(d) > maxDescriptionLength {
		d = string([]rune(d)[:maxDescriptionLength])
	}
	return d
}

// OwnerOf extracts the owning stack from a registry description written by RegistryDescription.
func OwnerOf(description string) string {
	if !strings.HasPrefix(description, "[") {
		return ""
	}
	end := strings.Index(description, "] ")
	if end < 0 {
		return ""
	}
	return description[1:end]
}

func validatePath(path string) error {
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("parameter path %q must start with /", path)
	}
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(segments) > maxParameterPathDepth {
		return fmt.Errorf("parameter path %q exceeds %d levels", path, maxParameterPathDepth)
	}
	for _, s := range segments {
		if s == "" {
			return fmt.Errorf("parameter path %q has an empty segment", path)
		}
	}
	return nil
}
