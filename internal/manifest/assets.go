package manifest

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"text/template"

	"github.com/Masterminds/semver/v3"
	"github.com/Masterminds/sprig/v3"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

//go:embed assets
var assets embed.FS

// Asset returns the raw content of an embedded asset such as "rbac-role.yaml".
func Asset(name string) ([]byte, error) {
	data, err := assets.ReadFile(path.Join("assets", name))
	if err != nil {
		return nil, fmt.Errorf("asset %s: %w", name, err)
	}
	return data, nil
}

// LoadAsset parses an embedded YAML asset. The content is applied as it was
// authored; placeholders in upstream files are not substituted.
func LoadAsset(name string) ([]*unstructured.Unstructured, error) {
	data, err := Asset(name)
	if err != nil {
		return nil, err
	}
	docs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("asset %s: %w", name, err)
	}
	return docs, nil
}

// Render executes an embedded template from assets/templates with the sprig
// function set and parses the result.
func Render(name string, values any) ([]*unstructured.Unstructured, error) {
	data, err := Asset(path.Join("templates", name))
	if err != nil {
		return nil, err
	}
	tmpl, err := template.New(name).Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parsing template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, values); err != nil {
		return nil, fmt.Errorf("rendering template %s: %w", name, err)
	}
	docs, err := Parse(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", name, err)
	}
	return docs, nil
}

// ConfigMapFromDir builds a ConfigMap holding every file of an embedded
// directory, keyed by file name.
func ConfigMapFromDir(name, namespace, dir string) (*unstructured.Unstructured, error) {
	root := path.Join("assets", dir)
	entries, err := fs.ReadDir(assets, root)
	if err != nil {
		return nil, fmt.Errorf("asset directory %s: %w", dir, err)
	}
	data := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		content, err := assets.ReadFile(path.Join(root, e.Name()))
		if err != nil {
			return nil, err
		}
		data[e.Name()] = string(content)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("asset directory %s is empty", dir)
	}

	return FromObject(&corev1.ConfigMap{
		TypeMeta:   metav1.TypeMeta{APIVersion: "v1", Kind: "ConfigMap"},
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
		Data:       data,
	})
}

var ingressV1 = semver.MustParse("1.19.0-0")

// IngressAPIVersion returns the Ingress apiVersion served by a cluster of
// the given Kubernetes version.
func IngressAPIVersion(kubernetesVersion string) (string, error) {
	v, err := semver.NewVersion(kubernetesVersion)
	if err != nil {
		return "", fmt.Errorf("invalid kubernetes version %q: %w", kubernetesVersion, err)
	}
	if v.LessThan(ingressV1) {
		return "extensions/v1beta1", nil
	}
	return "networking.k8s.io/v1", nil
}
