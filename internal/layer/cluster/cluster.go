// Package cluster builds the EKS core stack: the cluster, its managed node
// group, the identities that administer it and the key that encrypts its
// secrets.
package cluster

import (
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/yaml"

	eksgitops "github.com/lex00/eks-gitops-go"
	"github.com/lex00/eks-gitops-go/internal/eks"
	"github.com/lex00/eks-gitops-go/internal/layer/network"
	"github.com/lex00/eks-gitops-go/internal/manifest"
	"github.com/lex00/eks-gitops-go/internal/stack"
	"github.com/lex00/eks-gitops-go/internal/template"
	"github.com/lex00/eks-gitops-go/intrinsics"
)

// StackID is the construct id of the cluster stack.
const StackID = "EksCoreStack"

// Logical ids of the core resources.
const (
	AdminRoleID      = "ClusterAdminRole"
	ServiceRoleID    = "ClusterServiceRole"
	NodeRoleID       = "WorkerNodeRole"
	TeamMemberRoleID = "TeamMemberRole"
	KeyID            = "EtcdSecretsKey"
	SecurityGroupID  = "ControlPlaneSecurityGroup"
	ClusterID        = "Cluster"
	NodegroupID      = "ManagedNodegroup"
	AccessEntryID    = "AdminAccessEntry"
	AwsAuthID        = "AwsAuthManifest"
)

// Config holds the cluster settings of one stage.
type Config struct {
	// Prefix is the stage name, <short prefix>-<long context>.
	Prefix            string
	Account           string
	KubernetesVersion string
	// ServiceTokenParameter is the SSM parameter holding the kubectl
	// provider service token.
	ServiceTokenParameter string
}

// Cluster describes the built cluster for the add-on stacks.
type Cluster struct {
	Name          string
	NodegroupName string
	KeyAlias      string
	Version       string

	NameExport         string
	AdminRoleArnExport string
}

// Import returns the cluster as seen from another stack of the stage.
func (c *Cluster) Import() eks.Cluster {
	return eks.Cluster{
		Name:         intrinsics.ImportValue{ExportName: c.NameExport},
		AdminRoleArn: intrinsics.ImportValue{ExportName: c.AdminRoleArnExport},
	}
}

// Build adds the cluster resources to s. The subnets are imported from the
// network stack.
func Build(s *stack.Stack, net *network.Network, cfg Config) (*Cluster, error) {
	if cfg.KubernetesVersion == "" {
		return nil, fmt.Errorf("cluster %s: kubernetes version is required", cfg.Prefix)
	}
	c := &Cluster{
		Name:               cfg.Prefix + "-container-runtime",
		NodegroupName:      cfg.Prefix + "-managed-nodegroup",
		KeyAlias:           "alias/" + cfg.Prefix + "-etcd-secrets-key",
		Version:            cfg.KubernetesVersion,
		NameExport:         cfg.Prefix + "-EKS-CLUSTER-NAME",
		AdminRoleArnExport: cfg.Prefix + "-EKS-ADMIN-ROLE-ARN",
	}
	b := s.Template

	addRoles(b, cfg)

	b.AddResource(KeyID, "AWS::KMS::Key", map[string]any{
		"Description": cfg.Prefix + "-etcd-secrets-key",
		"KeyPolicy": intrinsics.NewPolicyDocument(intrinsics.PolicyStatement{
			Effect:    "Allow",
			Principal: intrinsics.AccountRootPrincipal(),
			Action:    "kms:*",
			Resource:  "*",
		}),
	}, template.Retain())
	b.AddResource(KeyID+"Alias", "AWS::KMS::Alias", map[string]any{
		"AliasName":   c.KeyAlias,
		"TargetKeyId": intrinsics.Ref{LogicalName: KeyID},
	})

	b.AddResource(SecurityGroupID, "AWS::EC2::SecurityGroup", map[string]any{
		"GroupDescription": "EKS control plane security group",
		"VpcId":            net.ImportVPCID(),
	})

	allSubnets := intrinsics.Split{
		Delimiter: ",",
		Source: intrinsics.Join{Delimiter: ",", Values: []any{
			intrinsics.ImportValue{ExportName: net.PublicSubnetsExport},
			intrinsics.ImportValue{ExportName: net.PrivateSubnetsExport},
		}},
	}
	b.AddResource(ClusterID, "AWS::EKS::Cluster", map[string]any{
		"Name":    c.Name,
		"Version": cfg.KubernetesVersion,
		"RoleArn": intrinsics.GetAtt{LogicalName: ServiceRoleID, Attribute: "Arn"},
		"ResourcesVpcConfig": map[string]any{
			"SubnetIds":             allSubnets,
			"SecurityGroupIds":      []any{intrinsics.Ref{LogicalName: SecurityGroupID}},
			"EndpointPublicAccess":  true,
			"EndpointPrivateAccess": true,
		},
		"EncryptionConfig": []any{map[string]any{
			"Provider":  map[string]any{"KeyArn": intrinsics.GetAtt{LogicalName: KeyID, Attribute: "Arn"}},
			"Resources": []any{"secrets"},
		}},
		"AccessConfig": map[string]any{
			"AuthenticationMode":                      "API_AND_CONFIG_MAP",
			"BootstrapClusterCreatorAdminPermissions": true,
		},
	}, template.DependsOn(AdminRoleID))

	clusterRef := intrinsics.Ref{LogicalName: ClusterID}
	b.AddResource(NodegroupID, "AWS::EKS::Nodegroup", map[string]any{
		"ClusterName":   clusterRef,
		"NodegroupName": c.NodegroupName,
		"NodeRole":      intrinsics.GetAtt{LogicalName: NodeRoleID, Attribute: "Arn"},
		"Subnets":       net.ImportSubnetIDs(network.Private),
		"InstanceTypes": []any{"t3.small"},
		"ScalingConfig": map[string]any{"MinSize": 1, "MaxSize": 3, "DesiredSize": 1},
		"Labels":        map[string]any{"workload-type": "constant"},
	})

	b.AddResource("PodIdentityAgentAddon", "AWS::EKS::Addon", map[string]any{
		"AddonName":        "eks-pod-identity-agent",
		"ClusterName":      clusterRef,
		"ResolveConflicts": "OVERWRITE",
	})
	b.AddResource(AccessEntryID, "AWS::EKS::AccessEntry", map[string]any{
		"ClusterName":  clusterRef,
		"PrincipalArn": intrinsics.GetAtt{LogicalName: AdminRoleID, Attribute: "Arn"},
		"Type":         "STANDARD",
		"AccessPolicies": []any{map[string]any{
			"PolicyArn":   intrinsics.Sub{String: "arn:${AWS::Partition}:eks::aws:cluster-access-policy/AmazonEKSClusterAdminPolicy"},
			"AccessScope": map[string]any{"Type": "cluster"},
		}},
	})

	if err := addAwsAuth(s, cfg); err != nil {
		return nil, err
	}

	b.AddOutput("ClusterName", eksgitops.Output{
		Value:  clusterRef,
		Export: &eksgitops.Export{Name: c.NameExport},
	})
	b.AddOutput("ClusterAdminRoleArn", eksgitops.Output{
		Value:  intrinsics.GetAtt{LogicalName: AdminRoleID, Attribute: "Arn"},
		Export: &eksgitops.Export{Name: c.AdminRoleArnExport},
	})
	b.AddOutput("ClusterConfigCommand", eksgitops.Output{
		Description: "Updates the local kubeconfig for the cluster",
		Value:       intrinsics.Sub{String: "aws eks update-kubeconfig --name ${Cluster} --region ${AWS::Region} --role-arn ${ClusterAdminRole.Arn}"},
	})
	return c, nil
}

func addRoles(b *template.Builder, cfg Config) {
	b.AddResource(AdminRoleID, "AWS::IAM::Role", map[string]any{
		"Description":              cfg.Prefix + " cluster super admin",
		"AssumeRolePolicyDocument": intrinsics.AssumeRolePolicy(intrinsics.AccountRootPrincipal()),
		"ManagedPolicyArns": []any{
			intrinsics.ManagedPolicyArn("AmazonEKSClusterPolicy"),
			intrinsics.ManagedPolicyArn("AmazonEKSServicePolicy"),
		},
	})
	b.AddResource(ServiceRoleID, "AWS::IAM::Role", map[string]any{
		"AssumeRolePolicyDocument": intrinsics.AssumeRolePolicy(intrinsics.ServicePrincipal{"eks.amazonaws.com"}),
		"ManagedPolicyArns": []any{
			intrinsics.ManagedPolicyArn("AmazonEKSClusterPolicy"),
		},
	})
	b.AddResource(NodeRoleID, "AWS::IAM::Role", map[string]any{
		"Description":              cfg.Prefix + " worker nodes",
		"AssumeRolePolicyDocument": intrinsics.AssumeRolePolicy(intrinsics.ServicePrincipal{"ec2.amazonaws.com"}),
		"ManagedPolicyArns": []any{
			intrinsics.ManagedPolicyArn("AmazonEKSWorkerNodePolicy"),
			intrinsics.ManagedPolicyArn("AmazonEKS_CNI_Policy"),
			intrinsics.ManagedPolicyArn("AmazonEC2ContainerRegistryReadOnly"),
		},
	})
	b.AddResource(TeamMemberRoleID, "AWS::IAM::Role", map[string]any{
		"Description":              cfg.Prefix + " team member kubectl access",
		"AssumeRolePolicyDocument": intrinsics.AssumeRolePolicy(intrinsics.AccountPrincipal(cfg.Account)),
		"ManagedPolicyArns": []any{
			intrinsics.ManagedPolicyArn("AdministratorAccess"),
		},
	})
}

// roleMapping is one entry of the aws-auth mapRoles list.
type roleMapping struct {
	RoleArn  string   `json:"rolearn"`
	Username string   `json:"username"`
	Groups   []string `json:"groups"`
}

// addAwsAuth maps the node, admin and team member roles in the aws-auth
// ConfigMap. EKS creates the map when the node group joins, so the manifest
// overwrites it.
func addAwsAuth(s *stack.Stack, cfg Config) error {
	k := s.Kubectl(eks.Cluster{
		Name:         intrinsics.Ref{LogicalName: ClusterID},
		AdminRoleArn: intrinsics.GetAtt{LogicalName: AdminRoleID, Attribute: "Arn"},
	}, cfg.ServiceTokenParameter)
	for _, id := range []string{NodeRoleID, AdminRoleID, TeamMemberRoleID} {
		k.Bind(id+"Arn", intrinsics.GetAtt{LogicalName: id, Attribute: "Arn"})
	}

	mapRoles, err := yaml.Marshal([]roleMapping{
		{
			RoleArn:  eks.Token(NodeRoleID + "Arn"),
			Username: "system:node:{{EC2PrivateDNSName}}",
			Groups:   []string{"system:bootstrappers", "system:nodes"},
		},
		{
			RoleArn:  eks.Token(AdminRoleID + "Arn"),
			Username: eks.Token(AdminRoleID + "Arn"),
			Groups:   []string{"system:masters"},
		},
		{
			RoleArn:  eks.Token(TeamMemberRoleID + "Arn"),
			Username: eks.Token(TeamMemberRoleID + "Arn"),
			Groups:   []string{"system:masters"},
		},
	})
	if err != nil {
		return fmt.Errorf("aws-auth: %w", err)
	}

	doc, err := manifest.FromObject(&corev1.ConfigMap{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "ConfigMap"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      "aws-auth",
			Namespace: "kube-system",
		},
		Data: map[string]string{
			"mapRoles": string(mapRoles),
			"mapUsers": "[]\n",
		},
	})
	if err != nil {
		return err
	}
	_, err = k.AddManifest(AwsAuthID, []*unstructured.Unstructured{doc}, eks.Overwrite(), eks.DependsOn(AccessEntryID, NodegroupID))
	return err
}
