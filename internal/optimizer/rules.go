package optimizer

import (
	eksgitops "github.com/lex00/eks-gitops-go"
)

// s3BucketRules contains optimization rules for S3 buckets.
var s3BucketRules = []Rule{
	{
		ID:       "OPT-S3-001",
		Category: "security",
		Severity: "high",
		Title:    "Enable S3 bucket encryption",
		Check: missing("BucketEncryption", Suggestion{
			Description: "S3 buckets should have server-side encryption enabled to protect data at rest.",
			Suggestion:  "Add BucketEncryption with SSE-S3 or SSE-KMS configuration.",
		}),
	},
	{
		ID:       "OPT-S3-002",
		Category: "security",
		Severity: "high",
		Title:    "Block public access",
		Check: missing("PublicAccessBlockConfiguration", Suggestion{
			Description: "S3 buckets should have PublicAccessBlockConfiguration to prevent accidental public exposure.",
			Suggestion:  "Add PublicAccessBlockConfiguration with BlockPublicAcls, BlockPublicPolicy, IgnorePublicAcls and RestrictPublicBuckets set to true.",
		}),
	},
	{
		ID:       "OPT-S3-003",
		Category: "reliability",
		Severity: "medium",
		Title:    "Enable versioning",
		Check: missing("VersioningConfiguration", Suggestion{
			Description: "S3 bucket versioning protects against accidental deletion and allows recovery of previous versions.",
			Suggestion:  "Add VersioningConfiguration with Status set to 'Enabled'.",
		}),
	},
}

// kmsKeyRules contains optimization rules for KMS keys.
var kmsKeyRules = []Rule{
	{
		ID:       "OPT-KMS-001",
		Category: "security",
		Severity: "medium",
		Title:    "Enable key rotation",
		Check: func(name string, res eksgitops.ResourceDef) *Suggestion {
			if res.Properties["EnableKeyRotation"] == true {
				return nil
			}
			return &Suggestion{
				Resource:    name,
				Description: "Automatic rotation limits the amount of data encrypted under one key version.",
				Suggestion:  "Set EnableKeyRotation to true.",
			}
		},
	},
}

// iamRules contains optimization rules for IAM roles and policies.
var iamRules = []Rule{
	{
		ID:       "OPT-IAM-001",
		Category: "security",
		Severity: "high",
		Title:    "Avoid wildcard actions on all resources",
		Check: func(name string, res eksgitops.ResourceDef) *Suggestion {
			var docs []any
			if doc, ok := res.Properties["PolicyDocument"]; ok {
				docs = append(docs, doc)
			}
			if policies, ok := res.Properties["Policies"].([]any); ok {
				for _, p := range policies {
					if m, ok := p.(map[string]any); ok {
						docs = append(docs, m["PolicyDocument"])
					}
				}
			}
			for _, doc := range docs {
				if allowsEverything(doc) {
					return &Suggestion{
						Resource:    name,
						Description: "A statement allowing Action \"*\" on Resource \"*\" grants full administrative access.",
						Suggestion:  "Scope the statement to the actions and resources the principal needs.",
					}
				}
			}
			return nil
		},
	},
}

// eksClusterRules contains optimization rules for EKS clusters.
var eksClusterRules = []Rule{
	{
		ID:       "OPT-EKS-001",
		Category: "security",
		Severity: "medium",
		Title:    "Restrict the public API endpoint",
		Check: func(name string, res eksgitops.ResourceDef) *Suggestion {
			vpc, _ := res.Properties["ResourcesVpcConfig"].(map[string]any)
			// The endpoint is public unless explicitly disabled.
			if v, ok := vpc["EndpointPublicAccess"]; ok && v == false {
				return nil
			}
			if cidrs, ok := vpc["PublicAccessCidrs"].([]any); ok && len(cidrs) > 0 && !contains(cidrs, "0.0.0.0/0") {
				return nil
			}
			return &Suggestion{
				Resource:    name,
				Description: "The Kubernetes API endpoint is reachable from any address.",
				Suggestion:  "Set PublicAccessCidrs to the networks that administer the cluster, or disable EndpointPublicAccess.",
			}
		},
	},
	{
		ID:       "OPT-EKS-002",
		Category: "reliability",
		Severity: "low",
		Title:    "Enable control plane logging",
		Check: missing("Logging", Suggestion{
			Description: "Control plane logs are needed to audit and troubleshoot the API server and authenticator.",
			Suggestion:  "Add Logging.ClusterLogging.EnabledTypes with at least api, audit and authenticator.",
		}),
	},
}

// nodegroupRules contains optimization rules for managed node groups.
var nodegroupRules = []Rule{
	{
		ID:       "OPT-EKS-003",
		Category: "reliability",
		Severity: "medium",
		Title:    "Run at least two nodes",
		Check: func(name string, res eksgitops.ResourceDef) *Suggestion {
			scaling, _ := res.Properties["ScalingConfig"].(map[string]any)
			if n, ok := number(scaling["MinSize"]); ok && n >= 2 {
				return nil
			}
			return &Suggestion{
				Resource:    name,
				Description: "A node group with fewer than two nodes cannot tolerate the loss of an instance or zone.",
				Suggestion:  "Set ScalingConfig.MinSize to 2 or more.",
			}
		},
	},
}

// genericRules apply to all resources.
var genericRules = []Rule{
	{
		ID:       "OPT-GEN-001",
		Category: "reliability",
		Severity: "low",
		Title:    "Retain stateful resources",
		Check: func(name string, res eksgitops.ResourceDef) *Suggestion {
			if !statefulTypes[res.Type] || res.DeletionPolicy == "Retain" || res.DeletionPolicy == "Snapshot" {
				return nil
			}
			return &Suggestion{
				Resource:    name,
				Description: "Deleting the stack deletes " + res.Type + " and the data it holds.",
				Suggestion:  "Set DeletionPolicy and UpdateReplacePolicy to Retain.",
			}
		},
	},
}

// templateRules inspect a template as a whole.
var templateRules = []Rule{
	{
		ID:       "OPT-NET-001",
		Category: "reliability",
		Severity: "medium",
		Title:    "Single NAT gateway",
		CheckTemplate: func(tmpl *eksgitops.Template) *Suggestion {
			var nat string
			nats, subnets := 0, 0
			for name, res := range tmpl.Resources {
				switch res.Type {
				case "AWS::EC2::NatGateway":
					nats++
					nat = name
				case "AWS::EC2::Subnet":
					subnets++
				}
			}
			if nats != 1 || subnets <= 2 {
				return nil
			}
			return &Suggestion{
				Resource:    nat,
				Description: "Private subnets in every zone route through one NAT gateway, so losing its zone cuts egress for all of them.",
				Suggestion:  "Add a NAT gateway per availability zone when egress availability outweighs its cost.",
			}
		},
	},
}

var statefulTypes = map[string]bool{
	"AWS::S3::Bucket": true,
	"AWS::KMS::Key":   true,
}

// missing returns a check raising s when the property is absent.
func missing(property string, s Suggestion) func(string, eksgitops.ResourceDef) *Suggestion {
	return func(name string, res eksgitops.ResourceDef) *Suggestion {
		if _, ok := res.Properties[property]; ok {
			return nil
		}
		out := s
		out.Resource = name
		return &out
	}
}

// allowsEverything reports whether a policy document has an Allow statement
// with Action "*" and Resource "*".
func allowsEverything(doc any) bool {
	m, ok := doc.(map[string]any)
	if !ok {
		return false
	}
	var statements []any
	switch s := m["Statement"].(type) {
	case []any:
		statements = s
	case map[string]any:
		statements = []any{s}
	}
	for _, st := range statements {
		sm, ok := st.(map[string]any)
		if !ok || sm["Effect"] != "Allow" {
			continue
		}
		if matchesAll(sm["Action"]) && matchesAll(sm["Resource"]) {
			return true
		}
	}
	return false
}

func matchesAll(v any) bool {
	switch v := v.(type) {
	case string:
		return v == "*"
	case []any:
		return contains(v, "*")
	}
	return false
}

func contains(values []any, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}
