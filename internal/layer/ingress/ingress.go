// Package ingress installs the AWS ALB ingress controller into the cluster.
package ingress

import (
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/lex00/eks-gitops-go/internal/eks"
	"github.com/lex00/eks-gitops-go/internal/layer/cluster"
	"github.com/lex00/eks-gitops-go/internal/layer/network"
	"github.com/lex00/eks-gitops-go/internal/manifest"
	"github.com/lex00/eks-gitops-go/internal/stack"
	"github.com/lex00/eks-gitops-go/intrinsics"
)

// StackID is the construct id of the ingress controller stack.
const StackID = "alb-ingress-controller"

const (
	Namespace      = "alb-ingress"
	ServiceAccount = "alb-ingress-controller"
	Image          = "docker.io/amazon/aws-alb-ingress-controller:v1.1.9"

	NamespaceID  = "AlbIngressNamespaceManifest"
	IdentityID   = "AlbIngressServiceAccount"
	RBACID       = "AlbIngressControllerRbacManifest"
	DeploymentID = "AlbIngressControllerDeploymentManifest"
)

// Controller is the installed ingress controller.
type Controller struct {
	Identity *eks.ServiceIdentity
}

// Build tags the network's subnets for load balancer discovery and adds the
// controller to s.
func Build(s *stack.Stack, net *network.Network, cl *cluster.Cluster, serviceTokenParameter string) (*Controller, error) {
	net.TagSubnets(network.Public, "kubernetes.io/role/elb", "1")
	net.TagSubnets(network.Private, "kubernetes.io/role/internal-elb", "1")

	target := cl.Import()
	k := s.Kubectl(target, serviceTokenParameter)
	k.Bind("ClusterName", target.Name)
	k.Bind("VpcId", net.ImportVPCID())

	ns, err := manifest.FromObject(&corev1.Namespace{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "Namespace"},
		ObjectMeta: metav1.ObjectMeta{
			Name:   Namespace,
			Labels: map[string]string{"name": Namespace},
		},
	})
	if err != nil {
		return nil, err
	}
	if _, err := k.AddManifest(NamespaceID, []*unstructured.Unstructured{ns}); err != nil {
		return nil, err
	}

	sa, err := k.AddServiceIdentity(IdentityID, ServiceAccount, Namespace, eks.DependsOn(NamespaceID))
	if err != nil {
		return nil, err
	}
	sa.AddToPolicy(Statements()...)

	rbac, err := manifest.LoadAsset("rbac-role.yaml")
	if err != nil {
		return nil, err
	}
	if _, err := k.AddManifest(RBACID, rbac, eks.DependsOn(NamespaceID)); err != nil {
		return nil, err
	}

	deployment, err := manifest.FromObject(controllerDeployment())
	if err != nil {
		return nil, err
	}
	if _, err := k.AddManifest(DeploymentID, []*unstructured.Unstructured{deployment},
		eks.DependsOn(NamespaceID, sa.PolicyID())); err != nil {
		return nil, err
	}
	return &Controller{Identity: sa}, nil
}

func controllerDeployment() *appsv1.Deployment {
	labels := map[string]string{"app.kubernetes.io/name": ServiceAccount}
	return &appsv1.Deployment{
		TypeMeta: metav1.TypeMeta{APIVersion: "apps/v1", Kind: "Deployment"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      ServiceAccount,
			Namespace: Namespace,
			Labels:    labels,
		},
		Spec: appsv1.DeploymentSpec{
			Selector: &metav1.LabelSelector{MatchLabels: labels},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					ServiceAccountName: ServiceAccount,
					Containers: []corev1.Container{{
						Name:  ServiceAccount,
						Image: Image,
						Args: []string{
							"--ingress-class=alb",
							"--cluster-name=" + eks.Token("ClusterName"),
							"--aws-vpc-id=" + eks.Token("VpcId"),
						},
					}},
				},
			},
		},
	}
}

// Statements returns the permissions the controller needs to manage load
// balancers and their attachments.
func Statements() []intrinsics.PolicyStatement {
	all := func(actions ...string) intrinsics.PolicyStatement {
		return intrinsics.Allow(actions, "*")
	}
	return []intrinsics.PolicyStatement{
		all(
			"acm:DescribeCertificate",
			"acm:ListCertificates",
			"acm:GetCertificate",
		),
		all(
			"ec2:AuthorizeSecurityGroupIngress",
			"ec2:CreateSecurityGroup",
			"ec2:CreateTags",
			"ec2:DeleteTags",
			"ec2:DeleteSecurityGroup",
			"ec2:DescribeAccountAttributes",
			"ec2:DescribeAddresses",
			"ec2:DescribeInstances",
			"ec2:DescribeInstanceStatus",
			"ec2:DescribeInternetGateways",
			"ec2:DescribeNetworkInterfaces",
			"ec2:DescribeSecurityGroups",
			"ec2:DescribeSubnets",
			"ec2:DescribeTags",
			"ec2:DescribeVpcs",
			"ec2:ModifyInstanceAttribute",
			"ec2:ModifyNetworkInterfaceAttribute",
			"ec2:RevokeSecurityGroupIngress",
		),
		all(
			"elasticloadbalancing:AddListenerCertificates",
			"elasticloadbalancing:AddTags",
			"elasticloadbalancing:CreateListener",
			"elasticloadbalancing:CreateLoadBalancer",
			"elasticloadbalancing:CreateRule",
			"elasticloadbalancing:CreateTargetGroup",
			"elasticloadbalancing:DeleteListener",
			"elasticloadbalancing:DeleteLoadBalancer",
			"elasticloadbalancing:DeleteRule",
			"elasticloadbalancing:DeleteTargetGroup",
			"elasticloadbalancing:DeregisterTargets",
			"elasticloadbalancing:DescribeListenerCertificates",
			"elasticloadbalancing:DescribeListeners",
			"elasticloadbalancing:DescribeLoadBalancers",
			"elasticloadbalancing:DescribeLoadBalancerAttributes",
			"elasticloadbalancing:DescribeRules",
			"elasticloadbalancing:DescribeSSLPolicies",
			"elasticloadbalancing:DescribeTags",
			"elasticloadbalancing:DescribeTargetGroups",
			"elasticloadbalancing:DescribeTargetGroupAttributes",
			"elasticloadbalancing:DescribeTargetHealth",
			"elasticloadbalancing:ModifyListener",
			"elasticloadbalancing:ModifyLoadBalancerAttributes",
			"elasticloadbalancing:ModifyRule",
			"elasticloadbalancing:ModifyTargetGroup",
			"elasticloadbalancing:ModifyTargetGroupAttributes",
			"elasticloadbalancing:RegisterTargets",
			"elasticloadbalancing:RemoveListenerCertificates",
			"elasticloadbalancing:RemoveTags",
			"elasticloadbalancing:SetIpAddressType",
			"elasticloadbalancing:SetSecurityGroups",
			"elasticloadbalancing:SetSubnets",
			"elasticloadbalancing:SetWebACL",
		),
		all(
			"iam:CreateServiceLinkedRole",
			"iam:GetServerCertificate",
			"iam:ListServerCertificates",
		),
		all(
			"cognito-idp:DescribeUserPoolClient",
		),
		all(
			"wafv2:GetWebACL",
			"wafv2:GetWebACLForResource",
			"wafv2:AssociateWebACL",
			"wafv2:DisassociateWebACL",
		),
		all(
			"waf-regional:GetWebACLForResource",
			"waf-regional:GetWebACL",
			"waf-regional:AssociateWebACL",
			"waf-regional:DisassociateWebACL",
		),
		all(
			"waf:GetWebACL",
		),
		all(
			"tag:GetResources",
			"tag:TagResources",
		),
		all(
			"shield:DescribeProtection",
			"shield:GetSubscriptionState",
			"shield:DeleteProtection",
			"shield:CreateProtection",
			"shield:DescribeSubscription",
			"shield:ListProtections",
		),
	}
}
