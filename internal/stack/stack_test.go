package stack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/lex00/eks-gitops-go/internal/eks"
	"github.com/lex00/eks-gitops-go/internal/manifest"
)

func TestNew(t *testing.T) {
	s := New("BaseNetworkStack", "dev-demo-BaseNetworkStack", "111111111111", "eu-central-1", "network",
		map[string]string{"environment": "development", "context": "demo"})

	assert.Equal(t, "aws://111111111111/eu-central-1", s.Environment())
	s.Template.AddResource("VPC", "AWS::EC2::VPC", map[string]any{"CidrBlock": "10.0.0.0/16"})

	r, err := s.Render()
	require.NoError(t, err)
	assert.Equal(t, "dev-demo-BaseNetworkStack", r.Name)
	assert.Equal(t, map[string]string{"environment": "development", "context": "demo"}, r.Tags)
	assert.Equal(t, []any{
		map[string]any{"Key": "context", "Value": "demo"},
		map[string]any{"Key": "environment", "Value": "development"},
	}, r.Template.Resources["VPC"].Properties["Tags"])
	assert.Empty(t, r.Manifests)
}

func TestAddDependency(t *testing.T) {
	network := New("BaseNetworkStack", "dev-demo-BaseNetworkStack", "1", "r", "", nil)
	cluster := New("EksCoreStack", "dev-demo-EksCoreStack", "1", "r", "", nil)

	cluster.AddDependency(network)
	cluster.AddDependency(network)

	assert.Equal(t, []string{"dev-demo-BaseNetworkStack"}, cluster.Dependencies())
	assert.Empty(t, network.Dependencies())
}

func TestKubectl_ReusedAndRendered(t *testing.T) {
	s := New("EksCoreStack", "dev-demo-EksCoreStack", "1", "r", "", nil)
	cluster := eks.Cluster{Name: "demo", AdminRoleArn: "arn"}

	k := s.Kubectl(cluster, "/token")
	assert.Same(t, k, s.Kubectl(cluster, "/token"))

	ns, err := manifest.FromObject(&corev1.Namespace{
		TypeMeta:   metav1.TypeMeta{APIVersion: "v1", Kind: "Namespace"},
		ObjectMeta: metav1.ObjectMeta{Name: "test-backend"},
	})
	require.NoError(t, err)
	_, err = k.AddManifest("Namespace", []*unstructured.Unstructured{ns})
	require.NoError(t, err)

	r, err := s.Render()
	require.NoError(t, err)
	require.Len(t, r.Manifests, 1)
	assert.Equal(t, "Namespace", r.Manifests[0].ID)
}

func TestRender_Error(t *testing.T) {
	s := New("Broken", "dev-demo-Broken", "1", "r", "", nil)
	s.Template.AddResource("A", "AWS::SNS::Topic", map[string]any{"TopicName": map[string]any{"Ref": "Missing"}})

	_, err := s.Render()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dev-demo-Broken")
}
