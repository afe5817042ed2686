package params

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// OutputsFile is the on-disk form written by FileExporter, keyed by stack then output ID.
type OutputsFile struct {
	Stacks map[string]map[string]FileOutput `yaml:"stacks"`
}

// FileOutput is one exported value.
type FileOutput struct {
	Value       string `yaml:"value"`
	Description string `yaml:"description,omitempty"`
	ExportName  string `yaml:"exportName,omitempty"`
}

// FileExporter collects exports and writes them to a YAML outputs file, the direct-provisioning
// counterpart of stack outputs.
type FileExporter struct {
	path string

	mu    sync.Mutex
	state OutputsFile
}

var _ Exporter = (*FileExporter)(nil)

// NewFileExporter returns an exporter backed by path. Existing content is loaded so reruns
// update the file in place.
func NewFileExporter(path string) (*FileExporter, error) {
	state, err := ReadOutputsFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if state.Stacks == nil {
		state.Stacks = map[string]map[string]FileOutput{}
	}
	return &FileExporter{path: path, state: state}, nil
}

func (f *FileExporter) Export(ctx context.Context, x Export) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	stack := f.state.Stacks[x.Stack]
	if stack == nil {
		stack = map[string]FileOutput{}
		f.state.Stacks[x.Stack] = stack
	}
	stack[x.ID] = FileOutput{Value: x.Value, Description: x.Description, ExportName: x.ExportName}
	return nil
}

// Save writes the collected outputs.
func (f *FileExporter) Save() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	body, err := yaml.Marshal(f.state)
	if err != nil {
		return fmt.Errorf("encode outputs: %w", err)
	}
	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create outputs dir: %w", err)
		}
	}
	if err := os.WriteFile(f.path, body, 0o600); err != nil {
		return fmt.Errorf("write outputs %s: %w", f.path, err)
	}
	return nil
}

// ReadOutputsFile loads an outputs file written by FileExporter.
func ReadOutputsFile(path string) (OutputsFile, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return OutputsFile{}, err
	}
	var out OutputsFile
	if err := yaml.Unmarshal(body, &out); err != nil {
		return OutputsFile{}, fmt.Errorf("decode outputs %s: %w", path, err)
	}
	return out, nil
}
