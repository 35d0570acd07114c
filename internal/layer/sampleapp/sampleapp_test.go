package sampleapp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/lex00/eks-gitops-go/internal/eks"
	"github.com/lex00/eks-gitops-go/internal/layer/cluster"
	"github.com/lex00/eks-gitops-go/internal/stack"
)

func documents(t *testing.T, version string) map[string]*unstructured.Unstructured {
	t.Helper()
	c, err := Chart(version)
	require.NoError(t, err)
	docs, err := c.Documents()
	require.NoError(t, err)
	require.Len(t, docs, 4)

	byKind := make(map[string]*unstructured.Unstructured, len(docs))
	for _, d := range docs {
		byKind[d.GetKind()] = d
	}
	assert.Equal(t, "Namespace", docs[0].GetKind(), "namespace is applied first")
	return byKind
}

func TestChart_Namespace(t *testing.T) {
	ns := documents(t, "1.29")["Namespace"]
	assert.Equal(t, Namespace, ns.GetName())
	assert.Equal(t, map[string]string{"workloadcategory": "test"}, ns.GetLabels())
}

func TestChart_Deployment(t *testing.T) {
	d := documents(t, "1.29")["Deployment"]
	assert.Equal(t, Deployment, d.GetName())
	assert.Equal(t, Namespace, d.GetNamespace())

	replicas, _, _ := unstructured.NestedFloat64(d.Object, "spec", "replicas")
	assert.Equal(t, float64(2), replicas)

	containers, _, _ := unstructured.NestedSlice(d.Object, "spec", "template", "spec", "containers")
	require.Len(t, containers, 1)
	c := containers[0].(map[string]any)
	assert.Equal(t, Image, c["image"])
	assert.Equal(t, []any{map[string]any{"containerPort": float64(8080)}}, c["ports"])
}

func TestChart_Service(t *testing.T) {
	svc := documents(t, "1.29")["Service"]
	assert.Equal(t, Service, svc.GetName())

	typ, _, _ := unstructured.NestedString(svc.Object, "spec", "type")
	assert.Equal(t, "NodePort", typ)
	ports, _, _ := unstructured.NestedSlice(svc.Object, "spec", "ports")
	require.Len(t, ports, 1)
	port := ports[0].(map[string]any)
	assert.Equal(t, float64(80), port["port"])
	assert.Equal(t, float64(8080), port["targetPort"])
	selector, _, _ := unstructured.NestedStringMap(svc.Object, "spec", "selector")
	assert.Equal(t, map[string]string{"app": "backend"}, selector)
}

func TestChart_Ingress(t *testing.T) {
	tests := []struct {
		version    string
		apiVersion string
		backend    []string
	}{
		{"1.29", "networking.k8s.io/v1", []string{"service", "name"}},
		{"1.19", "networking.k8s.io/v1", []string{"service", "name"}},
		{"1.18", "extensions/v1beta1", []string{"serviceName"}},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			ing := documents(t, tt.version)["Ingress"]
			require.NotNil(t, ing)
			assert.Equal(t, tt.apiVersion, ing.GetAPIVersion())
			assert.Equal(t, IngressName, ing.GetName())
			assert.Equal(t, Namespace, ing.GetNamespace())
			assert.Equal(t, map[string]string{
				"kubernetes.io/ingress.class":     "alb",
				"alb.ingress.kubernetes.io/scheme": "internet-facing",
			}, ing.GetAnnotations())

			rules, _, _ := unstructured.NestedSlice(ing.Object, "spec", "rules")
			require.Len(t, rules, 1)
			paths, _, _ := unstructured.NestedSlice(rules[0].(map[string]any), "http", "paths")
			require.Len(t, paths, 1)
			path := paths[0].(map[string]any)
			assert.Equal(t, "/*", path["path"])
			name, found, err := unstructured.NestedString(path, append([]string{"backend"}, tt.backend...)...)
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, Service, name)
		})
	}
}

func TestChart_InvalidVersion(t *testing.T) {
	_, err := Chart("not-a-version")
	assert.Error(t, err)
}

func TestBuild(t *testing.T) {
	s := stack.New(StackID, "dev-demo-backend-application-setup", "111111111111", "eu-central-1", "", nil)
	cl := &cluster.Cluster{
		Name:               "dev-demo-container-runtime",
		Version:            "1.29",
		NameExport:         "dev-demo-EKS-CLUSTER-NAME",
		AdminRoleArnExport: "dev-demo-EKS-CLUSTER-ADMIN-ROLE-ARN",
	}
	require.NoError(t, Build(s, cl, "/token"))

	r, err := s.Render()
	require.NoError(t, err)
	require.Contains(t, r.Template.Resources, ChartID)
	res := r.Template.Resources[ChartID]
	assert.Equal(t, eks.ManifestResourceType, res.Type)
	assert.Equal(t, map[string]any{"Fn::ImportValue": "dev-demo-EKS-CLUSTER-NAME"}, res.Properties["ClusterName"])

	require.Len(t, r.Manifests, 1)
	assert.Len(t, r.Manifests[0].Documents, 4)
}
