// Package eks adds Kubernetes manifests, patches and pod identities to a
// stack template.
//
// Manifests are applied by the kubectl custom resource provider: every
// manifest becomes a Custom::AWSCDK-EKS-KubernetesResource whose Manifest
// property holds the JSON encoded documents. Deploy time values such as the
// VPC id are written into documents as Token markers and resolved through
// Fn::Sub.
package eks

import (
	"encoding/json"
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	eksgitops "github.com/lex00/eks-gitops-go"
	"github.com/lex00/eks-gitops-go/internal/manifest"
	"github.com/lex00/eks-gitops-go/internal/template"
	"github.com/lex00/eks-gitops-go/intrinsics"
)

// Resource types of the kubectl provider.
const (
	ManifestResourceType = "Custom::AWSCDK-EKS-KubernetesResource"
	PatchResourceType    = "Custom::AWSCDK-EKS-KubernetesPatch"
)

// ServiceTokenParameter is the template parameter holding the provider's
// service token.
const ServiceTokenParameter = "KubectlServiceToken"

// Cluster is the cluster manifests are applied to. Values may be literals or
// intrinsics.
type Cluster struct {
	Name         any
	AdminRoleArn any
}

// Applied records what one manifest or patch resource applies, for the
// assembly's Kubernetes output.
type Applied struct {
	ID        string
	Patch     bool
	Documents []*unstructured.Unstructured
}

// Kubectl adds manifest resources for one cluster to a template.
type Kubectl struct {
	tmpl    *template.Builder
	cluster Cluster
	vars    map[string]any
	applied []Applied
}

// NewKubectl binds a template to a cluster. serviceTokenParameter is the SSM
// parameter name that holds the provider's service token.
func NewKubectl(b *template.Builder, cluster Cluster, serviceTokenParameter string) *Kubectl {
	b.AddParameter(ServiceTokenParameter, eksgitops.Parameter{
		Type:        "AWS::SSM::Parameter::Value<String>",
		Description: "Service token of the kubectl custom resource provider",
		Default:     serviceTokenParameter,
	})
	return &Kubectl{
		tmpl:    b,
		cluster: cluster,
		vars:    make(map[string]any),
	}
}

// Bind makes Token(name) resolve to value in manifests added afterwards.
func (k *Kubectl) Bind(name string, value any) {
	k.vars[name] = value
}

// Template returns the template the resources are added to.
func (k *Kubectl) Template() *template.Builder {
	return k.tmpl
}

// Cluster returns the target cluster.
func (k *Kubectl) Cluster() Cluster {
	return k.cluster
}

// Applied returns the recorded manifests and patches in the order they were added.
func (k *Kubectl) Applied() []Applied {
	return append([]Applied(nil), k.applied...)
}

// Option customizes a manifest or patch resource.
type Option func(*options)

type options struct {
	dependsOn []string
	overwrite bool
}

// DependsOn orders the resource after the given logical ids.
func DependsOn(ids ...string) Option {
	return func(o *options) {
		o.dependsOn = append(o.dependsOn, ids...)
	}
}

// Overwrite lets the manifest replace objects that already exist in the cluster.
func Overwrite() Option {
	return func(o *options) {
		o.overwrite = true
	}
}

func collect(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// AddManifest adds a manifest resource applying docs in order and returns
// its logical id.
func (k *Kubectl) AddManifest(id string, docs []*unstructured.Unstructured, opts ...Option) (string, error) {
	if len(docs) == 0 {
		return "", fmt.Errorf("manifest %s has no documents", id)
	}
	o := collect(opts)

	objects := make([]map[string]any, len(docs))
	for i, d := range docs {
		objects[i] = d.Object
	}
	data, err := json.Marshal(objects)
	if err != nil {
		return "", fmt.Errorf("manifest %s: %w", id, err)
	}

	props := map[string]any{
		"ServiceToken": intrinsics.Ref{LogicalName: ServiceTokenParameter},
		"ClusterName":  k.cluster.Name,
		"RoleArn":      k.cluster.AdminRoleArn,
		"Manifest":     substitute(string(data), k.vars),
	}
	if o.overwrite {
		props["Overwrite"] = true
	}
	k.tmpl.AddResource(id, ManifestResourceType, props, template.DependsOn(o.dependsOn...))

	previewDocs, err := k.previewDocuments(string(data))
	if err != nil {
		return "", fmt.Errorf("manifest %s: %w", id, err)
	}
	k.applied = append(k.applied, Applied{ID: id, Documents: previewDocs})
	return id, nil
}

// AddChart adds a manifest resource applying the documents of chart.
func (k *Kubectl) AddChart(id string, chart *manifest.Chart, opts ...Option) (string, error) {
	docs, err := chart.Documents()
	if err != nil {
		return "", err
	}
	return k.AddManifest(id, docs, opts...)
}

// Patch describes a patch of an object that already exists in the cluster.
type Patch struct {
	// ResourceName is kind/name, e.g. configmap/cwagentconfig.
	ResourceName string
	Namespace    string
	// Apply and Restore are objects for strategic and merge patches and
	// operation lists for json patches.
	Apply   any
	Restore any
	// Type defaults to a strategic merge patch.
	Type manifest.PatchType
}

// AddPatch adds a patch resource and returns its logical id.
func (k *Kubectl) AddPatch(id string, p Patch, opts ...Option) (string, error) {
	if p.ResourceName == "" {
		return "", fmt.Errorf("patch %s has no resource name", id)
	}
	if p.Type == "" {
		p.Type = manifest.StrategicPatch
	}
	if !p.Type.Valid() {
		return "", fmt.Errorf("patch %s: unknown patch type %q", id, p.Type)
	}
	o := collect(opts)

	apply, err := json.Marshal(p.Apply)
	if err != nil {
		return "", fmt.Errorf("patch %s: %w", id, err)
	}
	restore, err := json.Marshal(p.Restore)
	if err != nil {
		return "", fmt.Errorf("patch %s: %w", id, err)
	}

	props := map[string]any{
		"ServiceToken":     intrinsics.Ref{LogicalName: ServiceTokenParameter},
		"ClusterName":      k.cluster.Name,
		"RoleArn":          k.cluster.AdminRoleArn,
		"ResourceName":     p.ResourceName,
		"ApplyPatchJson":   substitute(string(apply), k.vars),
		"RestorePatchJson": substitute(string(restore), k.vars),
		"PatchType":        string(p.Type),
	}
	if p.Namespace != "" {
		props["ResourceNamespace"] = p.Namespace
	}
	k.tmpl.AddResource(id, PatchResourceType, props, template.DependsOn(o.dependsOn...))

	applied := Applied{ID: id, Patch: true}
	if target := k.find(p.ResourceName, p.Namespace); target != nil {
		patched, err := manifest.ApplyPatch(target, p.Type, []byte(preview(string(apply), k.vars)))
		if err != nil {
			return "", fmt.Errorf("patch %s: %w", id, err)
		}
		applied.Documents = []*unstructured.Unstructured{patched}
	}
	k.applied = append(k.applied, applied)
	return id, nil
}

// find returns the last applied document matching a kubectl resource name
// such as configmap/cwagentconfig.
func (k *Kubectl) find(resourceName, namespace string) *unstructured.Unstructured {
	var found *unstructured.Unstructured
	for _, a := range k.applied {
		if a.Patch {
			continue
		}
		for _, d := range a.Documents {
			if matchesResourceName(d, resourceName) && d.GetNamespace() == namespace {
				found = d
			}
		}
	}
	return found
}

func matchesResourceName(d *unstructured.Unstructured, resourceName string) bool {
	kind, name, ok := strings.Cut(resourceName, "/")
	if !ok {
		return false
	}
	return strings.EqualFold(d.GetKind(), kind) && d.GetName() == name
}

func (k *Kubectl) previewDocuments(data string) ([]*unstructured.Unstructured, error) {
	var objects []map[string]any
	if err := json.Unmarshal([]byte(preview(data, k.vars)), &objects); err != nil {
		return nil, err
	}
	docs := make([]*unstructured.Unstructured, len(objects))
	for i, o := range objects {
		docs[i] = &unstructured.Unstructured{Object: o}
	}
	return docs, nil
}
