// Package observability installs CloudWatch Container Insights: the
// CloudWatch agent for metrics and FluentD for logs.
//
// Two builds exist. The chart build (the default) generates every document
// in code. The manifest build applies the upstream quickstart files and
// patches the agent configuration afterwards.
package observability

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/lex00/eks-gitops-go/internal/config"
	"github.com/lex00/eks-gitops-go/internal/eks"
	"github.com/lex00/eks-gitops-go/internal/layer/cluster"
	"github.com/lex00/eks-gitops-go/internal/stack"
	"github.com/lex00/eks-gitops-go/intrinsics"
)

// StackID is the construct id of the container insights stack.
const StackID = "aws-container-insights"

// Namespace holds every container insights workload.
const Namespace = "amazon-cloudwatch"

const (
	AgentServiceAccount   = "cloudwatch-agent"
	FluentdServiceAccount = "fluentd"

	AgentImage   = "amazon/cloudwatch-agent:1.245315.0"
	FluentdImage = "fluent/fluentd-kubernetes-daemonset:v1.7.3-debian-cloudwatch-1.0"
)

// Config selects the build.
type Config struct {
	Mode                  string
	ServiceTokenParameter string
}

// Insights is the installed add-on.
type Insights struct {
	// FoundationID is the manifest every other resource is ordered after.
	FoundationID string
	Agent        *eks.ServiceIdentity
	Fluentd      *eks.ServiceIdentity
	// Manifests lists the manifest and patch ids in the order they were added.
	Manifests []string
}

// Build adds container insights to s.
func Build(s *stack.Stack, cl *cluster.Cluster, cfg Config, log *zap.SugaredLogger) (*Insights, error) {
	target := cl.Import()
	k := s.Kubectl(target, cfg.ServiceTokenParameter)
	k.Bind("ClusterName", target.Name)

	switch cfg.Mode {
	case config.InsightsModeCharts, "":
		return buildCharts(k, s.Region)
	case config.InsightsModeManifests:
		return buildManifests(k, s.Region, log)
	default:
		return nil, fmt.Errorf("unknown container insights mode %q", cfg.Mode)
	}
}

// CloudWatchStatement grants publishing metrics and logs.
func CloudWatchStatement() intrinsics.PolicyStatement {
	return intrinsics.Allow([]string{
		"cloudwatch:PutMetricData",
		"ec2:DescribeVolumes",
		"ec2:DescribeTags",
		"logs:PutLogEvents",
		"logs:DescribeLogStreams",
		"logs:DescribeLogGroups",
		"logs:CreateLogStream",
		"logs:CreateLogGroup",
	}, "*")
}

// SSMStatement grants reading agent configurations stored in SSM.
func SSMStatement() intrinsics.PolicyStatement {
	return intrinsics.Allow([]string{"ssm:GetParameter"}, "arn:aws:ssm:*:*:parameter/AmazonCloudWatch-*")
}
