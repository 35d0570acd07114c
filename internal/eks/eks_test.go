package eks

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/lex00/eks-gitops-go/internal/manifest"
	"github.com/lex00/eks-gitops-go/internal/template"
	"github.com/lex00/eks-gitops-go/intrinsics"
)

func newKubectl(t *testing.T) *Kubectl {
	t.Helper()
	b := template.NewBuilder("test")
	return NewKubectl(b, Cluster{Name: "dev-demo-container-runtime", AdminRoleArn: "arn:aws:iam::111111111111:role/admin"}, "/eks-gitops/kubectl-provider/service-token")
}

func configMap(t *testing.T, name, namespace string, data map[string]string) *unstructured.Unstructured {
	t.Helper()
	doc, err := manifest.FromObject(&corev1.ConfigMap{
		TypeMeta:   metav1.TypeMeta{APIVersion: "v1", Kind: "ConfigMap"},
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
		Data:       data,
	})
	require.NoError(t, err)
	return doc
}

func TestSubstitute(t *testing.T) {
	vars := map[string]any{
		"ClusterName": intrinsics.ImportValue{ExportName: "dev-demo-EKS-CLUSTER-NAME"},
		"VpcId":       intrinsics.ImportValue{ExportName: "dev-demo-EKS-VPC-ID"},
	}

	tests := []struct {
		name     string
		input    string
		expected any
	}{
		{
			name:     "no tokens",
			input:    `{"a":"b"}`,
			expected: `{"a":"b"}`,
		},
		{
			name:     "unbound token stays",
			input:    `region #{ENV.fetch('REGION')} #{Other}`,
			expected: `region #{ENV.fetch('REGION')} #{Other}`,
		},
		{
			name:  "bound token",
			input: `--cluster-name=#{ClusterName}`,
			expected: intrinsics.SubWithMap{
				String:    `--cluster-name=${ClusterName}`,
				Variables: map[string]any{"ClusterName": vars["ClusterName"]},
			},
		},
		{
			name:  "literal dollar brace escaped",
			input: `${HOME} #{VpcId} #{Other}`,
			expected: intrinsics.SubWithMap{
				String:    `${!HOME} ${VpcId} #{Other}`,
				Variables: map[string]any{"VpcId": vars["VpcId"]},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, substitute(tt.input, vars))
		})
	}
}

func TestPreview(t *testing.T) {
	vars := map[string]any{"ClusterName": "x"}
	assert.Equal(t, "${HOME} ${ClusterName} #{Other}", preview("${HOME} #{ClusterName} #{Other}", vars))
}

func TestNewKubectl_AddsServiceTokenParameter(t *testing.T) {
	k := newKubectl(t)
	_, err := k.AddManifest("Ns", []*unstructured.Unstructured{configMap(t, "a", "default", nil)})
	require.NoError(t, err)

	tmpl, err := k.Template().Build()
	require.NoError(t, err)
	require.Contains(t, tmpl.Parameters, ServiceTokenParameter)
	p := tmpl.Parameters[ServiceTokenParameter]
	assert.Equal(t, "AWS::SSM::Parameter::Value<String>", p.Type)
	assert.Equal(t, "/eks-gitops/kubectl-provider/service-token", p.Default)
}

func TestAddManifest(t *testing.T) {
	k := newKubectl(t)
	k.Bind("ClusterName", intrinsics.ImportValue{ExportName: "dev-demo-EKS-CLUSTER-NAME"})

	first := configMap(t, "cluster-info", "amazon-cloudwatch", map[string]string{"cluster.name": Token("ClusterName")})
	second := configMap(t, "plain", "amazon-cloudwatch", map[string]string{"k": "v"})

	id, err := k.AddManifest("ClusterInfo", []*unstructured.Unstructured{first, second}, DependsOn("Namespace"), Overwrite())
	require.NoError(t, err)
	assert.Equal(t, "ClusterInfo", id)

	res := k.Template().Resource(id)
	require.NotNil(t, res)
	assert.Equal(t, ManifestResourceType, res.Type)
	assert.Equal(t, []string{"Namespace"}, res.DependsOn)

	props := res.Properties.(map[string]any)
	assert.Equal(t, intrinsics.Ref{LogicalName: ServiceTokenParameter}, props["ServiceToken"])
	assert.Equal(t, "dev-demo-container-runtime", props["ClusterName"])
	assert.Equal(t, true, props["Overwrite"])

	sub, ok := props["Manifest"].(intrinsics.SubWithMap)
	require.True(t, ok, "manifest with a bound token is a Fn::Sub")
	assert.Contains(t, sub.String, `"cluster.name":"${ClusterName}"`)
	assert.Len(t, sub.Variables, 1)

	var docs []map[string]any
	require.NoError(t, json.Unmarshal([]byte(sub.String), &docs))
	require.Len(t, docs, 2)
	assert.Equal(t, "cluster-info", docs[0]["metadata"].(map[string]any)["name"])
	assert.Equal(t, "plain", docs[1]["metadata"].(map[string]any)["name"])

	applied := k.Applied()
	require.Len(t, applied, 1)
	assert.False(t, applied[0].Patch)
	require.Len(t, applied[0].Documents, 2)
	data, _, err := unstructured.NestedStringMap(applied[0].Documents[0].Object, "data")
	require.NoError(t, err)
	assert.Equal(t, "${ClusterName}", data["cluster.name"])
}

func TestAddManifest_PlainStringWithoutTokens(t *testing.T) {
	k := newKubectl(t)
	k.Bind("ClusterName", "unused")

	_, err := k.AddManifest("Plain", []*unstructured.Unstructured{configMap(t, "a", "default", map[string]string{"k": "v"})})
	require.NoError(t, err)

	props := k.Template().Resource("Plain").Properties.(map[string]any)
	assert.IsType(t, "", props["Manifest"])
	assert.NotContains(t, props, "Overwrite")
}

func TestAddManifest_NoDocuments(t *testing.T) {
	k := newKubectl(t)
	_, err := k.AddManifest("Empty", nil)
	assert.Error(t, err)
}

func TestAddChart(t *testing.T) {
	k := newKubectl(t)
	chart := manifest.NewChart("sample").
		Add("b", configMap(t, "b", "default", nil), "a").
		Add("a", configMap(t, "a", "default", nil))

	_, err := k.AddChart("SampleChart", chart)
	require.NoError(t, err)

	docs := k.Applied()[0].Documents
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].GetName())
	assert.Equal(t, "b", docs[1].GetName())
}

func TestAddPatch(t *testing.T) {
	k := newKubectl(t)
	k.Bind("ClusterName", intrinsics.ImportValue{ExportName: "dev-demo-EKS-CLUSTER-NAME"})

	_, err := k.AddManifest("AgentConfig", []*unstructured.Unstructured{
		configMap(t, "cwagentconfig", "amazon-cloudwatch", map[string]string{"cwagentconfig.json": `{"cluster_name":"{{cluster_name}}"}`}),
	})
	require.NoError(t, err)

	patch := map[string]any{"data": map[string]any{"cwagentconfig.json": `{"cluster_name":"` + Token("ClusterName") + `"}`}}
	id, err := k.AddPatch("AgentConfigPatch", Patch{
		ResourceName: "configmap/cwagentconfig",
		Namespace:    "amazon-cloudwatch",
		Apply:        patch,
		Restore:      patch,
	}, DependsOn("AgentConfig"))
	require.NoError(t, err)

	res := k.Template().Resource(id)
	assert.Equal(t, PatchResourceType, res.Type)
	props := res.Properties.(map[string]any)
	assert.Equal(t, "configmap/cwagentconfig", props["ResourceName"])
	assert.Equal(t, "amazon-cloudwatch", props["ResourceNamespace"])
	assert.Equal(t, "strategic", props["PatchType"])
	_, ok := props["ApplyPatchJson"].(intrinsics.SubWithMap)
	assert.True(t, ok)

	applied := k.Applied()
	require.Len(t, applied, 2)
	assert.True(t, applied[1].Patch)
	require.Len(t, applied[1].Documents, 1)
	data, _, err := unstructured.NestedStringMap(applied[1].Documents[0].Object, "data")
	require.NoError(t, err)
	assert.Equal(t, `{"cluster_name":"${ClusterName}"}`, data["cwagentconfig.json"])
}

func TestAddPatch_UnknownTargetHasNoPreview(t *testing.T) {
	k := newKubectl(t)
	_, err := k.AddPatch("Patch", Patch{ResourceName: "deployment/missing", Apply: map[string]any{}, Restore: map[string]any{}, Type: manifest.MergePatch})
	require.NoError(t, err)

	applied := k.Applied()
	require.Len(t, applied, 1)
	assert.Empty(t, applied[0].Documents)
	assert.Equal(t, "merge", k.Template().Resource("Patch").Properties.(map[string]any)["PatchType"])
}

func TestAddPatch_JSONPatch(t *testing.T) {
	k := newKubectl(t)
	_, err := k.AddManifest("AgentConfig", []*unstructured.Unstructured{
		configMap(t, "cwagentconfig", "amazon-cloudwatch", map[string]string{"cwagentconfig.json": "{}"}),
	})
	require.NoError(t, err)

	_, err = k.AddPatch("Patch", Patch{
		ResourceName: "configmap/cwagentconfig",
		Namespace:    "amazon-cloudwatch",
		Apply:        []map[string]any{{"op": "replace", "path": "/data/cwagentconfig.json", "value": `{"logs":{}}`}},
		Restore:      []map[string]any{{"op": "replace", "path": "/data/cwagentconfig.json", "value": "{}"}},
		Type:         manifest.JSONPatch,
	})
	require.NoError(t, err)

	assert.Equal(t, "json", k.Template().Resource("Patch").Properties.(map[string]any)["PatchType"])
	applied := k.Applied()
	require.Len(t, applied[1].Documents, 1)
	data, _, err := unstructured.NestedStringMap(applied[1].Documents[0].Object, "data")
	require.NoError(t, err)
	assert.Equal(t, `{"logs":{}}`, data["cwagentconfig.json"])
}

func TestAddPatch_JSONPatchNeedsOperations(t *testing.T) {
	k := newKubectl(t)
	_, err := k.AddManifest("AgentConfig", []*unstructured.Unstructured{
		configMap(t, "cwagentconfig", "amazon-cloudwatch", map[string]string{"cwagentconfig.json": "{}"}),
	})
	require.NoError(t, err)

	_, err = k.AddPatch("Patch", Patch{
		ResourceName: "configmap/cwagentconfig",
		Namespace:    "amazon-cloudwatch",
		Apply:        map[string]any{"data": map[string]any{}},
		Type:         manifest.JSONPatch,
	})
	assert.Error(t, err)
}

func TestAddPatch_UnknownType(t *testing.T) {
	k := newKubectl(t)
	_, err := k.AddPatch("Patch", Patch{ResourceName: "configmap/x", Type: "replace"})
	assert.EqualError(t, err, `patch Patch: unknown patch type "replace"`)
}

func TestAddPatch_RequiresResourceName(t *testing.T) {
	k := newKubectl(t)
	_, err := k.AddPatch("Patch", Patch{})
	assert.Error(t, err)
}

func TestMatchesResourceName(t *testing.T) {
	doc := configMap(t, "cwagentconfig", "amazon-cloudwatch", nil)
	assert.True(t, matchesResourceName(doc, "configmap/cwagentconfig"))
	assert.True(t, matchesResourceName(doc, "ConfigMap/cwagentconfig"))
	assert.False(t, matchesResourceName(doc, "configmap/other"))
	assert.False(t, matchesResourceName(doc, "cwagentconfig"))
}
