// Package manifest builds the Kubernetes documents applied to the cluster.
//
// Documents are *unstructured.Unstructured values. They come from typed
// k8s.io/api objects (FromObject), from embedded upstream YAML assets
// (LoadAsset) or from embedded templates (Render).
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/yaml"
)

// keepEmpty lists keys whose empty object value is meaningful.
var keepEmpty = map[string]bool{
	"emptyDir":    true,
	"podSelector": true,
}

// FromObject converts a typed object into a document. TypeMeta must be set.
// Null fields, empty objects and the status block are dropped so the
// document reads like a hand written manifest.
func FromObject(obj runtime.Object) (*unstructured.Unstructured, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("marshaling %T: %w", obj, err)
	}
	var content map[string]any
	if err := json.Unmarshal(data, &content); err != nil {
		return nil, err
	}
	delete(content, "status")
	prune(content)

	u := &unstructured.Unstructured{Object: content}
	if u.GetKind() == "" || u.GetAPIVersion() == "" {
		return nil, fmt.Errorf("%T has no apiVersion/kind set", obj)
	}
	return u, nil
}

func prune(m map[string]any) {
	for k, v := range m {
		switch val := v.(type) {
		case nil:
			delete(m, k)
		case map[string]any:
			prune(val)
			if len(val) == 0 && !keepEmpty[k] {
				delete(m, k)
			}
		case []any:
			for _, elem := range val {
				if child, ok := elem.(map[string]any); ok {
					prune(child)
				}
			}
		}
	}
}

var docSeparator = regexp.MustCompile(`(?m)^---\s*$`)

// Parse splits a multi document YAML stream. Empty and comment only
// documents are skipped.
func Parse(data []byte) ([]*unstructured.Unstructured, error) {
	var docs []*unstructured.Unstructured
	for i, part := range docSeparator.Split(string(data), -1) {
		if len(bytes.TrimSpace([]byte(part))) == 0 {
			continue
		}
		var content map[string]any
		if err := yaml.Unmarshal([]byte(part), &content); err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		if len(content) == 0 {
			continue
		}
		u := &unstructured.Unstructured{Object: content}
		if u.GetKind() == "" {
			return nil, fmt.Errorf("document %d has no kind", i)
		}
		docs = append(docs, u)
	}
	return docs, nil
}

// ToYAML renders documents as a multi document YAML stream.
func ToYAML(docs []*unstructured.Unstructured) ([]byte, error) {
	var buf bytes.Buffer
	for i, d := range docs {
		if i > 0 {
			buf.WriteString("---\n")
		}
		out, err := yaml.Marshal(d.Object)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", d.GetKind(), d.GetName(), err)
		}
		buf.Write(out)
	}
	return buf.Bytes(), nil
}

// Predicate selects documents.
type Predicate func(*unstructured.Unstructured) bool

// Filter returns the documents matching keep, in order.
func Filter(docs []*unstructured.Unstructured, keep Predicate) []*unstructured.Unstructured {
	var out []*unstructured.Unstructured
	for _, d := range docs {
		if keep(d) {
			out = append(out, d)
		}
	}
	return out
}

// ExcludeKinds matches documents whose kind is not listed.
func ExcludeKinds(kinds ...string) Predicate {
	return func(u *unstructured.Unstructured) bool {
		for _, k := range kinds {
			if u.GetKind() == k {
				return false
			}
		}
		return true
	}
}

// Named matches documents with one of the given names.
func Named(names ...string) Predicate {
	return func(u *unstructured.Unstructured) bool {
		for _, n := range names {
			if u.GetName() == n {
				return true
			}
		}
		return false
	}
}

// Ref identifies a document as kind/name, the form kubectl uses.
func Ref(u *unstructured.Unstructured) string {
	ref := u.GetKind() + "/" + u.GetName()
	if ns := u.GetNamespace(); ns != "" {
		ref = ns + "/" + ref
	}
	return ref
}
