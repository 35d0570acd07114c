package observability

import (
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	rbacv1 "k8s.io/api/rbac/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/lex00/eks-gitops-go/internal/eks"
	"github.com/lex00/eks-gitops-go/internal/manifest"
)

// Logical ids of the chart build.
const (
	FoundationChartID   = "ContainerInsightsFoundation"
	AgentIdentityID     = "CloudWatchAgentServiceAccount"
	FluentdIdentityID   = "FluentdServiceAccount"
	AgentAssignmentID   = "CloudWatchAgentAssignment"
	FluentdAssignmentID = "FluentDAssignment"
)

func buildCharts(k *eks.Kubectl, region string) (*Insights, error) {
	in := &Insights{FoundationID: FoundationChartID}

	if _, err := k.AddChart(FoundationChartID, foundationChart()); err != nil {
		return nil, err
	}
	in.Manifests = append(in.Manifests, FoundationChartID)

	var err error
	in.Fluentd, err = k.AddServiceIdentity(FluentdIdentityID, FluentdServiceAccount, Namespace, eks.DependsOn(FoundationChartID))
	if err != nil {
		return nil, err
	}
	in.Fluentd.AddToPolicy(CloudWatchStatement(), SSMStatement())

	in.Agent, err = k.AddServiceIdentity(AgentIdentityID, AgentServiceAccount, Namespace, eks.DependsOn(FoundationChartID))
	if err != nil {
		return nil, err
	}
	in.Agent.AddToPolicy(CloudWatchStatement(), SSMStatement())

	agent, err := agentChart()
	if err != nil {
		return nil, err
	}
	if _, err := k.AddChart(AgentAssignmentID, agent,
		eks.DependsOn(FoundationChartID, in.Agent.ManifestID(), in.Agent.PolicyID())); err != nil {
		return nil, err
	}

	fluentd, err := fluentdChart(region)
	if err != nil {
		return nil, err
	}
	if _, err := k.AddChart(FluentdAssignmentID, fluentd,
		eks.DependsOn(FoundationChartID, in.Fluentd.ManifestID(), in.Fluentd.PolicyID())); err != nil {
		return nil, err
	}
	in.Manifests = append(in.Manifests,
		in.Fluentd.ManifestID(), in.Agent.ManifestID(), AgentAssignmentID, FluentdAssignmentID)
	return in, nil
}

func foundationChart() *manifest.Chart {
	return manifest.NewChart("container-insights-foundation").
		AddObject("namespace", &corev1.Namespace{
			TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "Namespace"},
			ObjectMeta: metav1.ObjectMeta{
				Name:   Namespace,
				Labels: map[string]string{"workloadcategory": "essential"},
			},
		})
}

// agentConfig is the CloudWatch agent configuration for the cluster.
func agentConfig(clusterName string) string {
	return fmt.Sprintf(`{
  "logs": {
    "metrics_collected": {
      "kubernetes": {
        "cluster_name": "%s",
        "metrics_collection_interval": 60
      }
    },
    "force_flush_interval": 5
  }
}
`, clusterName)
}

func agentChart() (*manifest.Chart, error) {
	c := manifest.NewChart("cloudwatch-agent")
	c.AddObject("configmap", &corev1.ConfigMap{
		TypeMeta:   metav1.TypeMeta{APIVersion: "v1", Kind: "ConfigMap"},
		ObjectMeta: metav1.ObjectMeta{Name: "cwagentconfig", Namespace: Namespace},
		Data:       map[string]string{"cwagentconfig.json": agentConfig(eks.Token("ClusterName"))},
	})
	c.AddObject("role", &rbacv1.ClusterRole{
		TypeMeta:   metav1.TypeMeta{APIVersion: "rbac.authorization.k8s.io/v1", Kind: "ClusterRole"},
		ObjectMeta: metav1.ObjectMeta{Name: "cloudwatch-agent-role"},
		Rules: []rbacv1.PolicyRule{
			{APIGroups: []string{""}, Resources: []string{"pods", "nodes", "endpoints"}, Verbs: []string{"list", "watch"}},
			{APIGroups: []string{"apps"}, Resources: []string{"replicasets"}, Verbs: []string{"list", "watch"}},
			{APIGroups: []string{"batch"}, Resources: []string{"jobs"}, Verbs: []string{"list", "watch"}},
			{APIGroups: []string{""}, Resources: []string{"nodes/proxy"}, Verbs: []string{"get"}},
			{APIGroups: []string{""}, Resources: []string{"nodes/stats", "configmaps", "events"}, Verbs: []string{"create"}},
			{APIGroups: []string{""}, Resources: []string{"configmaps"}, ResourceNames: []string{"cwagent-clusterleader"}, Verbs: []string{"get", "update"}},
		},
	})
	c.AddObject("binding", clusterRoleBinding("cloudwatch-agent-role-binding", "cloudwatch-agent-role", AgentServiceAccount), "role")

	ds, err := agentDaemonSet()
	if err != nil {
		return nil, err
	}
	c.AddObject("daemonset", ds, "configmap")
	return c, nil
}

func fluentdChart(region string) (*manifest.Chart, error) {
	c := manifest.NewChart("fluentd")
	c.AddObject("role", &rbacv1.ClusterRole{
		TypeMeta:   metav1.TypeMeta{APIVersion: "rbac.authorization.k8s.io/v1", Kind: "ClusterRole"},
		ObjectMeta: metav1.ObjectMeta{Name: "fluentd-role"},
		Rules: []rbacv1.PolicyRule{
			{APIGroups: []string{""}, Resources: []string{"namespaces", "pods", "pods/logs"}, Verbs: []string{"get", "list", "watch"}},
		},
	})
	c.AddObject("binding", clusterRoleBinding("fluentd-role-binding", "fluentd-role", FluentdServiceAccount), "role")
	c.AddObject("cluster-info", clusterInfo(region))

	conf, err := manifest.ConfigMapFromDir("fluentd-config", Namespace, "fluentd")
	if err != nil {
		return nil, err
	}
	c.Add("fluentd-config", conf)

	ds, err := fluentdDaemonSet()
	if err != nil {
		return nil, err
	}
	c.AddObject("daemonset", ds, "cluster-info", "fluentd-config")
	return c, nil
}

func clusterInfo(region string) *corev1.ConfigMap {
	return &corev1.ConfigMap{
		TypeMeta:   metav1.TypeMeta{APIVersion: "v1", Kind: "ConfigMap"},
		ObjectMeta: metav1.ObjectMeta{Name: "cluster-info", Namespace: Namespace},
		Data: map[string]string{
			"cluster.name": eks.Token("ClusterName"),
			"logs.region":  region,
		},
	}
}

func clusterRoleBinding(name, role, serviceAccount string) *rbacv1.ClusterRoleBinding {
	return &rbacv1.ClusterRoleBinding{
		TypeMeta:   metav1.TypeMeta{APIVersion: "rbac.authorization.k8s.io/v1", Kind: "ClusterRoleBinding"},
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Subjects: []rbacv1.Subject{{
			Kind:      "ServiceAccount",
			Name:      serviceAccount,
			Namespace: Namespace,
		}},
		RoleRef: rbacv1.RoleRef{
			APIGroup: "rbac.authorization.k8s.io",
			Kind:     "ClusterRole",
			Name:     role,
		},
	}
}

func resources(limitCPU, limitMem, reqCPU, reqMem string) (corev1.ResourceRequirements, error) {
	parse := func(values ...string) ([]resource.Quantity, error) {
		out := make([]resource.Quantity, len(values))
		for i, v := range values {
			q, err := resource.ParseQuantity(v)
			if err != nil {
				return nil, fmt.Errorf("quantity %q: %w", v, err)
			}
			out[i] = q
		}
		return out, nil
	}
	q, err := parse(limitCPU, limitMem, reqCPU, reqMem)
	if err != nil {
		return corev1.ResourceRequirements{}, err
	}
	return corev1.ResourceRequirements{
		Limits:   corev1.ResourceList{corev1.ResourceCPU: q[0], corev1.ResourceMemory: q[1]},
		Requests: corev1.ResourceList{corev1.ResourceCPU: q[2], corev1.ResourceMemory: q[3]},
	}, nil
}

func fieldEnv(name, path string) corev1.EnvVar {
	return corev1.EnvVar{
		Name:      name,
		ValueFrom: &corev1.EnvVarSource{FieldRef: &corev1.ObjectFieldSelector{FieldPath: path}},
	}
}

func configMapEnv(name, configMap, key string) corev1.EnvVar {
	return corev1.EnvVar{
		Name: name,
		ValueFrom: &corev1.EnvVarSource{ConfigMapKeyRef: &corev1.ConfigMapKeySelector{
			LocalObjectReference: corev1.LocalObjectReference{Name: configMap},
			Key:                  key,
		}},
	}
}

func hostPath(name, path string) corev1.Volume {
	return corev1.Volume{
		Name:         name,
		VolumeSource: corev1.VolumeSource{HostPath: &corev1.HostPathVolumeSource{Path: path}},
	}
}

func configMapVolume(name, configMap string) corev1.Volume {
	return corev1.Volume{
		Name: name,
		VolumeSource: corev1.VolumeSource{ConfigMap: &corev1.ConfigMapVolumeSource{
			LocalObjectReference: corev1.LocalObjectReference{Name: configMap},
		}},
	}
}

func daemonSet(name string, grace int64, pod corev1.PodSpec) *appsv1.DaemonSet {
	labels := map[string]string{"name": name}
	pod.TerminationGracePeriodSeconds = &grace
	return &appsv1.DaemonSet{
		TypeMeta:   metav1.TypeMeta{APIVersion: "apps/v1", Kind: "DaemonSet"},
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: Namespace},
		Spec: appsv1.DaemonSetSpec{
			Selector: &metav1.LabelSelector{MatchLabels: labels},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec:       pod,
			},
		},
	}
}

func agentDaemonSet() (*appsv1.DaemonSet, error) {
	res, err := resources("200m", "200Mi", "200m", "200Mi")
	if err != nil {
		return nil, err
	}
	return daemonSet("cloudwatch-agent", 60, corev1.PodSpec{
		ServiceAccountName: AgentServiceAccount,
		Containers: []corev1.Container{{
			Name:      "cloudwatch-agent",
			Image:     AgentImage,
			Resources: res,
			Env: []corev1.EnvVar{
				fieldEnv("HOST_IP", "status.hostIP"),
				fieldEnv("HOST_NAME", "spec.nodeName"),
				fieldEnv("K8S_NAMESPACE", "metadata.namespace"),
				{Name: "CI_VERSION", Value: "k8s/1.2.1"},
			},
			VolumeMounts: []corev1.VolumeMount{
				{Name: "cwagentconfig", MountPath: "/etc/cwagentconfig"},
				{Name: "rootfs", MountPath: "/rootfs", ReadOnly: true},
				{Name: "dockersock", MountPath: "/var/run/docker.sock", ReadOnly: true},
				{Name: "varlibdocker", MountPath: "/var/lib/docker", ReadOnly: true},
				{Name: "sys", MountPath: "/sys", ReadOnly: true},
				{Name: "devdisk", MountPath: "/dev/disk", ReadOnly: true},
			},
		}},
		Volumes: []corev1.Volume{
			configMapVolume("cwagentconfig", "cwagentconfig"),
			hostPath("rootfs", "/"),
			hostPath("dockersock", "/var/run/docker.sock"),
			hostPath("varlibdocker", "/var/lib/docker"),
			hostPath("sys", "/sys"),
			hostPath("devdisk", "/dev/disk/"),
		},
	}), nil
}

func fluentdDaemonSet() (*appsv1.DaemonSet, error) {
	res, err := resources("200m", "400Mi", "100m", "200Mi")
	if err != nil {
		return nil, err
	}
	configMounts := []corev1.VolumeMount{
		{Name: "config-volume", MountPath: "/config-volume"},
		{Name: "fluentdconf", MountPath: "/fluentd/etc"},
	}
	return daemonSet("fluentd-cloudwatch", 30, corev1.PodSpec{
		ServiceAccountName: FluentdServiceAccount,
		InitContainers: []corev1.Container{
			{
				Name:         "copy-fluentd-config",
				Image:        "busybox",
				Command:      []string{"sh", "-c", "cp /config-volume/..data/* /fluentd/etc"},
				VolumeMounts: configMounts,
			},
			{
				Name:    "update-log-driver",
				Image:   "busybox",
				Command: []string{"sh", "-c", ""},
			},
		},
		Containers: []corev1.Container{{
			Name:      "fluentd-cloudwatch",
			Image:     FluentdImage,
			Resources: res,
			Env: []corev1.EnvVar{
				configMapEnv("REGION", "cluster-info", "logs.region"),
				configMapEnv("CLUSTER_NAME", "cluster-info", "cluster.name"),
				{Name: "CI_VERSION", Value: "k8s/1.2.2"},
			},
			VolumeMounts: append(append([]corev1.VolumeMount(nil), configMounts...),
				corev1.VolumeMount{Name: "varlog", MountPath: "/var/log"},
				corev1.VolumeMount{Name: "varlibdockercontainers", MountPath: "/var/lib/docker/containers", ReadOnly: true},
				corev1.VolumeMount{Name: "runlogjournal", MountPath: "/run/log/journal", ReadOnly: true},
				corev1.VolumeMount{Name: "dmesg", MountPath: "/var/log/dmesg", ReadOnly: true},
			),
		}},
		Volumes: []corev1.Volume{
			configMapVolume("config-volume", "fluentd-config"),
			{Name: "fluentdconf", VolumeSource: corev1.VolumeSource{EmptyDir: &corev1.EmptyDirVolumeSource{}}},
			hostPath("varlog", "/var/log"),
			hostPath("varlibdockercontainers", "/var/lib/docker/containers"),
			hostPath("runlogjournal", "/run/log/journal"),
			hostPath("dmesg", "/var/log/dmesg"),
		},
	}), nil
}
