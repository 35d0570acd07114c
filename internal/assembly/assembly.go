// Package assembly writes and reads the cloud assembly: a manifest, one
// CloudFormation template per stack and the Kubernetes documents each stack
// applies.
//
// The layout follows cdk.out, so the CDK CLI can deploy the stacks:
//
//	manifest.json
//	<stack>.template.json
//	k8s/<stack>/<manifest id>.yaml
package assembly

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	eksgitops "github.com/lex00/eks-gitops-go"
	"github.com/lex00/eks-gitops-go/internal/dag"
	"github.com/lex00/eks-gitops-go/internal/manifest"
	"github.com/lex00/eks-gitops-go/internal/stack"
	"github.com/lex00/eks-gitops-go/internal/template"
)

// Version is the cloud assembly schema version written to manifest.json.
const Version = "36.0.0"

// StackArtifactType is the artifact type of a CloudFormation stack.
const StackArtifactType = "aws:cloudformation:stack"

const (
	ManifestFile   = "manifest.json"
	KubernetesDir  = "k8s"
	templateSuffix = ".template.json"
)

// Manifest is the content of manifest.json.
type Manifest struct {
	Version   string              `json:"version"`
	Artifacts map[string]Artifact `json:"artifacts"`
}

// Artifact is one stack of the assembly.
type Artifact struct {
	Type         string             `json:"type"`
	Environment  string             `json:"environment"`
	Properties   ArtifactProperties `json:"properties"`
	Dependencies []string           `json:"dependencies,omitempty"`
	DisplayName  string             `json:"displayName,omitempty"`
}

// ArtifactProperties are the stack artifact properties.
type ArtifactProperties struct {
	TemplateFile string            `json:"templateFile"`
	StackName    string            `json:"stackName,omitempty"`
	Tags         map[string]string `json:"tags,omitempty"`
}

// Assembly is a synthesized or loaded cloud assembly.
type Assembly struct {
	Manifest  Manifest
	Templates map[string]*eksgitops.Template
	// Kubernetes holds the rendered documents per stack and manifest id.
	Kubernetes map[string]map[string][]byte
}

// New builds an assembly from rendered stacks.
func New(stacks []*stack.Rendered) (*Assembly, error) {
	a := &Assembly{
		Manifest:   Manifest{Version: Version, Artifacts: make(map[string]Artifact, len(stacks))},
		Templates:  make(map[string]*eksgitops.Template, len(stacks)),
		Kubernetes: make(map[string]map[string][]byte),
	}
	for _, s := range stacks {
		if _, dup := a.Templates[s.Name]; dup {
			return nil, fmt.Errorf("duplicate stack %s", s.Name)
		}
		a.Manifest.Artifacts[s.Name] = Artifact{
			Type:        StackArtifactType,
			Environment: s.Environment(),
			Properties: ArtifactProperties{
				TemplateFile: s.Name + templateSuffix,
				StackName:    s.Name,
				Tags:         s.Tags,
			},
			Dependencies: s.Dependencies,
			DisplayName:  s.Name,
		}
		a.Templates[s.Name] = s.Template

		for _, m := range s.Manifests {
			if len(m.Documents) == 0 {
				continue
			}
			data, err := manifest.ToYAML(m.Documents)
			if err != nil {
				return nil, fmt.Errorf("stack %s manifest %s: %w", s.Name, m.ID, err)
			}
			if a.Kubernetes[s.Name] == nil {
				a.Kubernetes[s.Name] = make(map[string][]byte)
			}
			a.Kubernetes[s.Name][m.ID] = data
		}
	}
	if _, err := a.StackNames(); err != nil {
		return nil, err
	}
	return a, nil
}

// StackNames returns the stacks in deployment order. Independent stacks are
// sorted by name.
func (a *Assembly) StackNames() ([]string, error) {
	names := make([]string, 0, len(a.Manifest.Artifacts))
	for name := range a.Manifest.Artifacts {
		names = append(names, name)
	}
	sort.Strings(names)

	g := dag.New()
	for _, name := range names {
		g.AddNode(name)
	}
	for _, name := range names {
		for _, dep := range a.Manifest.Artifacts[name].Dependencies {
			g.AddEdge(name, dep)
		}
	}
	order, err := g.Sort()
	if err != nil {
		return nil, fmt.Errorf("stack dependencies: %w", err)
	}
	return order, nil
}

// Write writes the assembly to dir. Files of an earlier synthesis that the
// assembly no longer contains are removed.
func (a *Assembly) Write(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := clean(dir); err != nil {
		return err
	}

	data, err := json.MarshalIndent(a.Manifest, "", "  ")
	if err != nil {
		return err
	}
	if err := writeFile(filepath.Join(dir, ManifestFile), data); err != nil {
		return err
	}

	for name, tmpl := range a.Templates {
		data, err := template.ToJSON(tmpl)
		if err != nil {
			return fmt.Errorf("stack %s: %w", name, err)
		}
		if err := writeFile(filepath.Join(dir, a.Manifest.Artifacts[name].Properties.TemplateFile), data); err != nil {
			return err
		}
	}

	for name, docs := range a.Kubernetes {
		stackDir := filepath.Join(dir, KubernetesDir, name)
		if err := os.MkdirAll(stackDir, 0o755); err != nil {
			return err
		}
		for id, data := range docs {
			if err := writeFile(filepath.Join(stackDir, id+".yaml"), data); err != nil {
				return err
			}
		}
	}
	return nil
}

// clean removes the files a previous Write produced.
func clean(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		name := e.Name()
		switch {
		case name == ManifestFile, strings.HasSuffix(name, templateSuffix):
			err = os.Remove(filepath.Join(dir, name))
		case name == KubernetesDir && e.IsDir():
			err = os.RemoveAll(filepath.Join(dir, name))
		default:
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, data []byte) error {
	if len(data) > 0 && data[len(data)-1] != '\n' {
		data = append(data, '\n')
	}
	return os.WriteFile(path, data, 0o644)
}

// Read loads an assembly written by Write.
func Read(dir string) (*Assembly, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("reading assembly: %w", err)
	}
	a := &Assembly{
		Templates:  make(map[string]*eksgitops.Template),
		Kubernetes: make(map[string]map[string][]byte),
	}
	if err := json.Unmarshal(data, &a.Manifest); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ManifestFile, err)
	}

	for name, art := range a.Manifest.Artifacts {
		if art.Type != StackArtifactType {
			continue
		}
		tmpl, err := ReadTemplate(filepath.Join(dir, art.Properties.TemplateFile))
		if err != nil {
			return nil, fmt.Errorf("stack %s: %w", name, err)
		}
		a.Templates[name] = tmpl
	}

	k8sDir := filepath.Join(dir, KubernetesDir)
	err = filepath.WalkDir(k8sDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".yaml" {
			return nil
		}
		rel, err := filepath.Rel(k8sDir, path)
		if err != nil {
			return err
		}
		stackName := filepath.Dir(rel)
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if a.Kubernetes[stackName] == nil {
			a.Kubernetes[stackName] = make(map[string][]byte)
		}
		a.Kubernetes[stackName][strings.TrimSuffix(filepath.Base(path), ".yaml")] = data
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return a, nil
}

// ReadTemplate loads one template file.
func ReadTemplate(path string) (*eksgitops.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tmpl eksgitops.Template
	if err := json.Unmarshal(data, &tmpl); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &tmpl, nil
}
