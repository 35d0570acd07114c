package eks

import (
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/lex00/eks-gitops-go/internal/manifest"
	"github.com/lex00/eks-gitops-go/internal/template"
	"github.com/lex00/eks-gitops-go/intrinsics"
)

// PodIdentityPrincipal is the service principal of the EKS Pod Identity agent.
const PodIdentityPrincipal = "pods.eks.amazonaws.com"

// ServiceIdentity is a Kubernetes service account bound to an IAM role
// through EKS Pod Identity.
//
// It consists of the IAM role, the pod identity association, the service
// account manifest and, once statements are added, an IAM policy attached
// to the role. Workloads that need the permissions should depend on
// PolicyID.
type ServiceIdentity struct {
	Name      string
	Namespace string

	id        string
	k         *Kubectl
	policy    *intrinsics.PolicyDocument
	dependsOn []string
}

// AddServiceIdentity creates the role, association and service account for
// name in namespace. Options order all three after other resources, such as
// the namespace manifest.
func (k *Kubectl) AddServiceIdentity(id, name, namespace string, opts ...Option) (*ServiceIdentity, error) {
	if name == "" || namespace == "" {
		return nil, fmt.Errorf("service identity %s needs a name and a namespace", id)
	}
	o := collect(opts)
	s := &ServiceIdentity{Name: name, Namespace: namespace, id: id, k: k, dependsOn: o.dependsOn}

	k.tmpl.AddResource(s.RoleID(), "AWS::IAM::Role", map[string]any{
		"AssumeRolePolicyDocument": intrinsics.AssumeRolePolicy(
			intrinsics.ServicePrincipal{PodIdentityPrincipal},
			"sts:AssumeRole", "sts:TagSession",
		),
		"Description": fmt.Sprintf("Pod identity of %s/%s", namespace, name),
	}, template.DependsOn(o.dependsOn...))

	k.tmpl.AddResource(s.AssociationID(), "AWS::EKS::PodIdentityAssociation", map[string]any{
		"ClusterName":    k.cluster.Name,
		"Namespace":      namespace,
		"ServiceAccount": name,
		"RoleArn":        intrinsics.GetAtt{LogicalName: s.RoleID(), Attribute: "Arn"},
	}, template.DependsOn(o.dependsOn...))

	sa, err := manifest.FromObject(&corev1.ServiceAccount{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "ServiceAccount"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels:    map[string]string{"app.kubernetes.io/name": name},
		},
	})
	if err != nil {
		return nil, err
	}
	saOpts := append([]Option{DependsOn(s.AssociationID())}, opts...)
	if _, err := k.AddManifest(s.ManifestID(), []*unstructured.Unstructured{sa}, saOpts...); err != nil {
		return nil, err
	}
	return s, nil
}

// RoleID is the logical id of the IAM role.
func (s *ServiceIdentity) RoleID() string { return s.id + "Role" }

// AssociationID is the logical id of the pod identity association.
func (s *ServiceIdentity) AssociationID() string { return s.id + "PodIdentityAssociation" }

// ManifestID is the logical id of the service account manifest.
func (s *ServiceIdentity) ManifestID() string { return s.id + "ServiceAccountManifest" }

// PolicyID is the logical id of the permission grant. It is empty until a
// statement has been added.
func (s *ServiceIdentity) PolicyID() string {
	if s.policy == nil {
		return ""
	}
	return s.policyID()
}

func (s *ServiceIdentity) policyID() string { return s.id + "RoleDefaultPolicy" }

// RoleArn returns the role ARN as an intrinsic.
func (s *ServiceIdentity) RoleArn() intrinsics.GetAtt {
	return intrinsics.GetAtt{LogicalName: s.RoleID(), Attribute: "Arn"}
}

// AddToPolicy grants statements to the identity. The first call creates the
// policy resource.
func (s *ServiceIdentity) AddToPolicy(statements ...intrinsics.PolicyStatement) {
	if s.policy == nil {
		doc := intrinsics.NewPolicyDocument()
		s.policy = &doc
		s.k.tmpl.AddResource(s.policyID(), "AWS::IAM::Policy", map[string]any{
			"PolicyName":     s.policyID(),
			"PolicyDocument": s.policy,
			"Roles":          []any{intrinsics.Ref{LogicalName: s.RoleID()}},
		}, template.DependsOn(s.dependsOn...))
	}
	for _, st := range statements {
		s.policy.Statement = append(s.policy.Statement, st)
	}
}

// Statements returns the granted statements.
func (s *ServiceIdentity) Statements() []intrinsics.PolicyStatement {
	if s.policy == nil {
		return nil
	}
	out := make([]intrinsics.PolicyStatement, 0, len(s.policy.Statement))
	for _, st := range s.policy.Statement {
		if ps, ok := st.(intrinsics.PolicyStatement); ok {
			out = append(out, ps)
		}
	}
	return out
}
