package observability

import (
	"fmt"

	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/lex00/eks-gitops-go/internal/eks"
	"github.com/lex00/eks-gitops-go/internal/manifest"
)

// Logical ids of the manifest build.
const (
	CompositeID        = "ContainerInsightsNamespaceManifest"
	AgentConfigID      = "ContainerInsightsConfigMapManifest"
	AgentPatchID       = "ContainerInsightsSetupPatch"
	AgentSAID          = "ContainerInsightsServiceAccount"
	FluentdSAID        = "ContainerInsightsFluentdServiceAccount"
	ClusterInfoID      = "ContainerInsightsFluentdConfigMapManifest"
	FluentdCompositeID = "ContainerInsightsFluentdSetupManifest"
)

const quickstartAsset = "cwagent-fluentd-quickstart.yaml"

func buildManifests(k *eks.Kubectl, region string, log *zap.SugaredLogger) (*Insights, error) {
	in := &Insights{FoundationID: CompositeID}
	afterComposite := eks.DependsOn(CompositeID)

	composite, err := loadAll(
		asset{name: "cloudwatch-namespace.yaml"},
		// The service account comes from the agent identity below.
		asset{name: "cwagent-serviceaccount.yaml", keep: manifest.ExcludeKinds("ServiceAccount")},
		asset{name: "cwagent-daemonset.yaml"},
	)
	if err != nil {
		return nil, err
	}
	if _, err := k.AddManifest(CompositeID, composite); err != nil {
		return nil, err
	}

	cm, err := manifest.LoadAsset("cwagent-configmap.yaml")
	if err != nil {
		return nil, err
	}
	if _, err := k.AddManifest(AgentConfigID, cm, afterComposite); err != nil {
		return nil, err
	}

	in.Agent, err = k.AddServiceIdentity(AgentSAID, AgentServiceAccount, Namespace, afterComposite)
	if err != nil {
		return nil, err
	}
	in.Agent.AddToPolicy(CloudWatchStatement(), SSMStatement())

	// The cluster name stays wrapped in the doubled braces of the quickstart
	// placeholder. The agent reads the value literally.
	patch := map[string]any{
		"data": map[string]any{
			"cwagentconfig.json": agentConfig("{{" + eks.Token("ClusterName") + "}}"),
		},
	}
	log.Warnw("container insights patch keeps the cluster name inside doubled braces; verify the agent resolves it",
		"patch", AgentPatchID,
		"resource", "configmap/cwagentconfig",
	)
	if _, err := k.AddPatch(AgentPatchID, eks.Patch{
		ResourceName: "configmap/cwagentconfig",
		Namespace:    Namespace,
		Apply:        patch,
		Restore:      patch,
	}, eks.DependsOn(CompositeID, AgentConfigID)); err != nil {
		return nil, err
	}

	in.Fluentd, err = k.AddServiceIdentity(FluentdSAID, FluentdServiceAccount, Namespace, afterComposite)
	if err != nil {
		return nil, err
	}
	in.Fluentd.AddToPolicy(CloudWatchStatement())

	info, err := manifest.FromObject(clusterInfo(region))
	if err != nil {
		return nil, err
	}
	if _, err := k.AddManifest(ClusterInfoID, []*unstructured.Unstructured{info}, afterComposite); err != nil {
		return nil, err
	}

	setup, err := loadAll(
		asset{name: quickstartAsset, keep: manifest.ExcludeKinds("ConfigMap", "ServiceAccount")},
		asset{name: quickstartAsset, keep: manifest.Named("fluentd-config")},
	)
	if err != nil {
		return nil, err
	}
	if _, err := k.AddManifest(FluentdCompositeID, setup, afterComposite); err != nil {
		return nil, err
	}

	in.Manifests = []string{
		CompositeID, AgentConfigID, in.Agent.ManifestID(), AgentPatchID,
		in.Fluentd.ManifestID(), ClusterInfoID, FluentdCompositeID,
	}
	return in, nil
}

type asset struct {
	name string
	keep manifest.Predicate
}

func loadAll(assets ...asset) ([]*unstructured.Unstructured, error) {
	var out []*unstructured.Unstructured
	for _, a := range assets {
		docs, err := manifest.LoadAsset(a.name)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", a.name, err)
		}
		if a.keep != nil {
			docs = manifest.Filter(docs, a.keep)
		}
		out = append(out, docs...)
	}
	return out, nil
}
