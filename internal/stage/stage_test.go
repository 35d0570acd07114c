package stage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lex00/eks-gitops-go/internal/config"
	"github.com/lex00/eks-gitops-go/internal/layer/cluster"
	"github.com/lex00/eks-gitops-go/internal/layer/observability"
	"github.com/lex00/eks-gitops-go/internal/stack"
)

const demoContext = `
common:
  longContext: demo
  repositoryName: eks-gitops-demo
tools:
  account: "222222222222"
  region: eu-central-1
  environmentTag: tools
development:
  account: "111111111111"
  region: eu-central-1
  shortPrefix: dev
`

func testContext(t *testing.T, overrides ...string) *config.Context {
	t.Helper()
	ctx, err := config.Parse([]byte(demoContext))
	require.NoError(t, err)
	require.NoError(t, ctx.Apply(overrides))
	require.NoError(t, ctx.Validate())
	return ctx
}

func newStage(t *testing.T, ctx *config.Context) *Stage {
	t.Helper()
	s, err := New(Options{Context: ctx, Env: ctx.Development})
	require.NoError(t, err)
	return s
}

func names(stacks []*stack.Stack) []string {
	out := make([]string, len(stacks))
	for i, s := range stacks {
		out[i] = s.Name
	}
	return out
}

func TestNew_Stacks(t *testing.T) {
	s := newStage(t, testContext(t))

	assert.Equal(t, "dev-demo", s.Name)
	assert.Equal(t, []string{
		"dev-demo-BaseNetworkStack",
		"dev-demo-EksCoreStack",
		"dev-demo-alb-ingress-controller",
		"dev-demo-aws-container-insights",
		"dev-demo-backend-application-setup",
	}, names(s.Stacks()))

	for _, st := range s.Stacks() {
		assert.Equal(t, "aws://111111111111/eu-central-1", st.Environment())
		assert.Equal(t, map[string]string{"environment": "dev", "context": "demo"}, st.Template.Tags(), st.Name)
	}
}

func TestNew_ExportsUseStageName(t *testing.T) {
	s := newStage(t, testContext(t, "development.environmentTag=development"))
	rendered, err := s.Render()
	require.NoError(t, err)

	assert.Equal(t, "dev-demo-EKS-VPC-ID", rendered[0].Template.Outputs["VPCID"].Export.Name)
	assert.Equal(t, "development", rendered[0].Tags["environment"])
	assert.Equal(t, "dev-demo-container-runtime", s.Cluster.Name)
}

func TestNew_Dependencies(t *testing.T) {
	s := newStage(t, testContext(t))

	tests := []struct {
		step string
		deps []string
	}{
		{StepNetwork, nil},
		{StepCluster, []string{"dev-demo-BaseNetworkStack"}},
		{StepIngress, []string{"dev-demo-BaseNetworkStack", "dev-demo-EksCoreStack"}},
		{StepObservability, []string{"dev-demo-EksCoreStack"}},
		{StepSampleApp, []string{"dev-demo-EksCoreStack"}},
	}
	for _, tt := range tests {
		t.Run(tt.step, func(t *testing.T) {
			assert.Equal(t, tt.deps, s.Stack(tt.step).Dependencies())
		})
	}

	waves, err := s.Waves()
	require.NoError(t, err)
	require.Len(t, waves, 3)
	assert.Equal(t, []string{"dev-demo-BaseNetworkStack"}, names(waves[0]))
	assert.Equal(t, []string{"dev-demo-EksCoreStack"}, names(waves[1]))
	assert.Equal(t, []string{
		"dev-demo-alb-ingress-controller",
		"dev-demo-aws-container-insights",
		"dev-demo-backend-application-setup",
	}, names(waves[2]))
}

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		mode string
	}{
		{"charts", config.InsightsModeCharts},
		{"manifests", config.InsightsModeManifests},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStage(t, testContext(t, "common.containerInsightsMode="+tt.mode))
			rendered, err := s.Render()
			require.NoError(t, err)
			require.Len(t, rendered, 5)
			assert.Contains(t, rendered[0].Template.Outputs, "VPCID")
			assert.NotEmpty(t, s.Rules())
		})
	}
}

func TestRender_SubnetTagsFromIngress(t *testing.T) {
	s := newStage(t, testContext(t))
	rendered, err := s.Render()
	require.NoError(t, err)

	props := rendered[0].Template.Resources["PrivateSubnet1"].Properties
	assert.Contains(t, props["Tags"], map[string]any{"Key": "kubernetes.io/role/internal-elb", "Value": "1"})
}

func TestRender_MissingFoundationEdgeFails(t *testing.T) {
	s := newStage(t, testContext(t))

	st := s.Stack(StepObservability)
	res := st.Template.Resource(s.Insights.Fluentd.RoleID())
	require.NotNil(t, res)
	require.Contains(t, res.DependsOn, observability.FoundationChartID)
	res.DependsOn = nil

	_, err := s.Render()
	require.Error(t, err)
	assert.ErrorContains(t, err, s.Insights.Fluentd.RoleID()+" must be created after "+observability.FoundationChartID)
}

func TestRender_MissingAdminRoleEdgeFails(t *testing.T) {
	s := newStage(t, testContext(t))
	s.Stack(StepCluster).Template.Resource(cluster.ClusterID).DependsOn = nil

	_, err := s.Render()
	assert.ErrorContains(t, err, "Cluster must be created after ClusterAdminRole")
}

func TestVerify_StackRule(t *testing.T) {
	rendered := []*stack.Rendered{{Name: "b"}}
	err := Verify(rendered, []Rule{{From: "b", To: "a", Reason: "imports"}})
	assert.ErrorContains(t, err, "stack b must deploy after a")

	rendered[0].Dependencies = []string{"a"}
	assert.NoError(t, Verify(rendered, []Rule{{From: "b", To: "a"}}))
}

func TestNew_RequiresContext(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestNew_LayerErrorIsWrapped(t *testing.T) {
	ctx := testContext(t)
	ctx.Common.KubernetesVersion = ""
	_, err := New(Options{Context: ctx, Env: ctx.Development})
	require.Error(t, err)
	assert.ErrorContains(t, err, "stage dev-demo: step cluster")
}
