package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dusk-indust/auratriage/internal/orchestrator"
	"gopkg.in/yaml.v3"
)

// StageFileNames are tried in order by LoadStageFile.
var StageFileNames = []string{"auratriage.yml", "auratriage.yaml"}

// StageOverride patches one stage of the default plan.
type StageOverride struct {
	Key    string `yaml:"key"`
	Role   string `yaml:"role,omitempty"`
	Avatar string `yaml:"avatar,omitempty"`
	Model  string `yaml:"model,omitempty"`
}

// SummaryOverride patches the summary stage.
type SummaryOverride struct {
	Role   string `yaml:"role,omitempty"`
	Avatar string `yaml:"avatar,omitempty"`
	Model  string `yaml:"model,omitempty"`
}

// StageFile holds the per-stage overrides read from auratriage.yml.
type StageFile struct {
	Path    string           `yaml:"-"`
	Stages  []StageOverride  `yaml:"stages,omitempty"`
	Summary *SummaryOverride `yaml:"summary,omitempty"`
}

// LoadStageFile reads auratriage.yml or auratriage.yaml from dir. Returns an
// empty StageFile (not an error) if neither exists.
func LoadStageFile(dir string) (*StageFile, error) {
	for _, name := range StageFileNames {
		path := filepath.Join(dir, name)
		f, err := ReadStageFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		return f, err
	}
	return &StageFile{}, nil
}

// ReadStageFile reads overrides from an explicit path.
func ReadStageFile(path string) (*StageFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f StageFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, &ConfigurationError{Key: path, Reason: err.Error()}
	}
	f.Path = path
	return &f, nil
}

// Apply returns plan with every override applied. An override naming a stage
// the plan does not have is a ConfigurationError.
func (f *StageFile) Apply(plan orchestrator.Plan) (orchestrator.Plan, error) {
	if f == nil {
		return plan, nil
	}
	out := plan
	for i, o := range f.Stages {
		if o.Key == "" || o.Key == orchestrator.KeySummary {
			return plan, &ConfigurationError{Key: f.source(), Reason: fmt.Sprintf("stages[%d]: key must name an ordinary stage", i)}
		}
		var err error
		out, err = out.WithOverride(o.Key, orchestrator.StageOverride{Role: o.Role, Avatar: o.Avatar, Backend: o.Model})
		if err != nil {
			return plan, &ConfigurationError{Key: f.source(), Reason: fmt.Sprintf("stages[%d]: unknown stage key %q", i, o.Key)}
		}
	}
	if f.Summary != nil {
		s := f.Summary
		out, _ = out.WithOverride(orchestrator.KeySummary, orchestrator.StageOverride{Role: s.Role, Avatar: s.Avatar, Backend: s.Model})
	}
	if err := out.Validate(); err != nil {
		return plan, &ConfigurationError{Key: f.source(), Reason: err.Error()}
	}
	return out, nil
}

func (f *StageFile) source() string {
	if f.Path == "" {
		return "stage overrides"
	}
	return f.Path
}
