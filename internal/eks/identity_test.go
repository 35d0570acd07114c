package eks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lex00/eks-gitops-go/internal/template"
	"github.com/lex00/eks-gitops-go/intrinsics"
)

func TestAddServiceIdentity(t *testing.T) {
	k := newKubectl(t)
	k.Template().AddResource("Namespace", ManifestResourceType, map[string]any{})

	sa, err := k.AddServiceIdentity("Fluentd", "fluentd", "amazon-cloudwatch", DependsOn("Namespace"))
	require.NoError(t, err)
	assert.Equal(t, "fluentd", sa.Name)
	assert.Equal(t, "amazon-cloudwatch", sa.Namespace)
	assert.Empty(t, sa.PolicyID(), "no policy before a statement is added")
	assert.Nil(t, sa.Statements())

	tmpl, err := k.Template().Build()
	require.NoError(t, err)

	role := tmpl.Resources["FluentdRole"]
	assert.Equal(t, "AWS::IAM::Role", role.Type)
	assert.Equal(t, []string{"Namespace"}, role.DependsOn)
	trust := role.Properties["AssumeRolePolicyDocument"].(map[string]any)
	stmt := trust["Statement"].([]any)[0].(map[string]any)
	assert.Equal(t, map[string]any{"Service": PodIdentityPrincipal}, stmt["Principal"])
	assert.Equal(t, []any{"sts:AssumeRole", "sts:TagSession"}, stmt["Action"])

	assoc := tmpl.Resources["FluentdPodIdentityAssociation"]
	assert.Equal(t, "AWS::EKS::PodIdentityAssociation", assoc.Type)
	assert.Equal(t, "fluentd", assoc.Properties["ServiceAccount"])
	assert.Equal(t, "amazon-cloudwatch", assoc.Properties["Namespace"])
	assert.Equal(t, map[string]any{"Fn::GetAtt": []any{"FluentdRole", "Arn"}}, assoc.Properties["RoleArn"])

	sam := tmpl.Resources["FluentdServiceAccountManifest"]
	assert.Equal(t, ManifestResourceType, sam.Type)
	assert.Equal(t, []string{"FluentdPodIdentityAssociation", "Namespace"}, sam.DependsOn)

	docs := k.Applied()[0].Documents
	require.Len(t, docs, 1)
	assert.Equal(t, "ServiceAccount", docs[0].GetKind())
	assert.Equal(t, "fluentd", docs[0].GetName())
	assert.Equal(t, "amazon-cloudwatch", docs[0].GetNamespace())

	assert.NotContains(t, tmpl.Resources, "FluentdRoleDefaultPolicy")
}

func TestServiceIdentity_AddToPolicy(t *testing.T) {
	k := newKubectl(t)
	sa, err := k.AddServiceIdentity("Agent", "cloudwatch-agent", "amazon-cloudwatch")
	require.NoError(t, err)

	sa.AddToPolicy(intrinsics.Allow([]string{"cloudwatch:PutMetricData"}, "*"))
	sa.AddToPolicy(intrinsics.Allow([]string{"ssm:GetParameter"}, "arn:aws:ssm:*:*:parameter/AmazonCloudWatch-*"))

	assert.Equal(t, "AgentRoleDefaultPolicy", sa.PolicyID())
	require.Len(t, sa.Statements(), 2)
	assert.Equal(t, []string{"ssm:GetParameter"}, sa.Statements()[1].Actions())

	k.Template().AddResource("Workload", ManifestResourceType, map[string]any{}, template.DependsOn(sa.PolicyID()))

	tmpl, err := k.Template().Build()
	require.NoError(t, err)

	policy := tmpl.Resources["AgentRoleDefaultPolicy"]
	assert.Equal(t, "AWS::IAM::Policy", policy.Type)
	assert.Equal(t, []any{map[string]any{"Ref": "AgentRole"}}, policy.Properties["Roles"])
	doc := policy.Properties["PolicyDocument"].(map[string]any)
	assert.Len(t, doc["Statement"], 2, "statements added after the policy was created are serialized")

	order, err := template.Order(tmpl)
	require.NoError(t, err)
	assert.Less(t, indexOf(order, "AgentRole"), indexOf(order, "AgentRoleDefaultPolicy"))
	assert.Less(t, indexOf(order, "AgentRoleDefaultPolicy"), indexOf(order, "Workload"))
}

func TestAddServiceIdentity_RequiresNames(t *testing.T) {
	k := newKubectl(t)
	_, err := k.AddServiceIdentity("Bad", "", "ns")
	assert.Error(t, err)
	_, err = k.AddServiceIdentity("Bad", "sa", "")
	assert.Error(t, err)
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
