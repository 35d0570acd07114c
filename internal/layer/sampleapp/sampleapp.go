// Package sampleapp deploys the hello-kubernetes backend behind an ALB
// ingress to show the platform working end to end.
package sampleapp

import (
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"

	"github.com/lex00/eks-gitops-go/internal/layer/cluster"
	"github.com/lex00/eks-gitops-go/internal/manifest"
	"github.com/lex00/eks-gitops-go/internal/stack"
)

// StackID is the construct id of the sample workload stack.
const StackID = "backend-application-setup"

// ChartID is the logical id of the manifest holding the whole application.
const ChartID = "BackendApplicationChartAssignment"

const (
	Namespace   = "test-backend"
	Deployment  = "backend-deployment"
	Service     = "service-hello-kubernetes"
	IngressName = "service-hello-kubernetes-ingress-rule"
	Image       = "paulbouwer/hello-kubernetes:1.7"

	servicePort   = 80
	containerPort = 8080
)

// IngressValues feeds the backend ingress template.
type IngressValues struct {
	KubernetesVersion string
	Name              string
	Namespace         string
	IngressClass      string
	Scheme            string
	Path              string
	ServiceName       string
	ServicePort       int
}

// Build adds the backend application to s.
func Build(s *stack.Stack, cl *cluster.Cluster, serviceTokenParameter string) error {
	chart, err := Chart(cl.Version)
	if err != nil {
		return err
	}
	k := s.Kubectl(cl.Import(), serviceTokenParameter)
	_, err = k.AddChart(ChartID, chart)
	return err
}

// Chart returns the application documents for a cluster running
// kubernetesVersion.
func Chart(kubernetesVersion string) (*manifest.Chart, error) {
	labels := map[string]string{"app": "backend"}
	replicas := int32(2)

	c := manifest.NewChart("backend-application")
	c.AddObject("namespace", &corev1.Namespace{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "Namespace"},
		ObjectMeta: metav1.ObjectMeta{
			Name:   Namespace,
			Labels: map[string]string{"workloadcategory": "test"},
		},
	})
	c.AddObject("deployment", &appsv1.Deployment{
		TypeMeta:   metav1.TypeMeta{APIVersion: "apps/v1", Kind: "Deployment"},
		ObjectMeta: metav1.ObjectMeta{Name: Deployment, Namespace: Namespace},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: labels},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{{
						Name:  "hello-kubernetes",
						Image: Image,
						Ports: []corev1.ContainerPort{{ContainerPort: containerPort}},
					}},
				},
			},
		},
	}, "namespace")
	c.AddObject("service", &corev1.Service{
		TypeMeta:   metav1.TypeMeta{APIVersion: "v1", Kind: "Service"},
		ObjectMeta: metav1.ObjectMeta{Name: Service, Namespace: Namespace},
		Spec: corev1.ServiceSpec{
			Type:     corev1.ServiceTypeNodePort,
			Ports:    []corev1.ServicePort{{Port: servicePort, TargetPort: intstr.FromInt32(containerPort)}},
			Selector: labels,
		},
	}, "namespace")

	ingress, err := manifest.Render("backend-ingress.yaml.tmpl", IngressValues{
		KubernetesVersion: kubernetesVersion,
		Name:              IngressName,
		Namespace:         Namespace,
		IngressClass:      "alb",
		Scheme:            "internet-facing",
		Path:              "/*",
		ServiceName:       Service,
		ServicePort:       servicePort,
	})
	if err != nil {
		return nil, err
	}
	if len(ingress) != 1 {
		return nil, fmt.Errorf("backend ingress template rendered %d documents", len(ingress))
	}
	c.Add("ingress", ingress[0], "namespace", "service")
	return c, nil
}
