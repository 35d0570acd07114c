// Package pipeline builds the self-mutating delivery pipeline that
// synthesizes this repository and deploys the stage stacks.
package pipeline

import (
	"fmt"

	"go.uber.org/zap"

	eksgitops "github.com/lex00/eks-gitops-go"
	"github.com/lex00/eks-gitops-go/internal/config"
	"github.com/lex00/eks-gitops-go/internal/stack"
	"github.com/lex00/eks-gitops-go/internal/stage"
	"github.com/lex00/eks-gitops-go/internal/template"
	"github.com/lex00/eks-gitops-go/intrinsics"
)

// Logical ids of the pipeline resources.
const (
	KeyID               = "ArtifactsBucketEncryptionKey"
	BucketID            = "ArtifactsBucket"
	BucketPolicyID      = "ArtifactsBucketPolicy"
	PipelineRoleID      = "PipelineRole"
	BuildRoleID         = "BuildProjectRole"
	SynthProjectID      = "SynthProject"
	SelfMutationID      = "SelfMutationProject"
	PipelineID          = "Pipeline"
	EventRuleID         = "SourceEventRule"
	EventRoleID         = "SourceEventRole"
	SourceArtifact      = "SourceArtifact"
	CloudAssemblyOutput = "CloudAssemblyArtifact"
)

// Target is one application stage of the pipeline.
type Target struct {
	// Env names the environment, e.g. development.
	Env     string
	Enabled bool
	// Stage is nil for targets that were never built.
	Stage *stage.Stage
	// ManualApproval puts an approval action ahead of the deployments.
	ManualApproval bool
}

// Config holds the pipeline inputs.
type Config struct {
	Common  config.Common
	Targets []Target
}

// Pipeline describes the built pipeline.
type Pipeline struct {
	Name           string
	RepositoryName string
	Branch         string
	// Stages lists the pipeline stage names in execution order.
	Stages []string
	// Skipped lists the environments of disabled targets.
	Skipped []string
}

// Build adds the pipeline to s. Disabled targets contribute nothing.
func Build(s *stack.Stack, cfg Config, log *zap.SugaredLogger) (*Pipeline, error) {
	if cfg.Common.RepositoryName == "" {
		return nil, fmt.Errorf("pipeline: repository name is required")
	}
	p := &Pipeline{
		Name:           cfg.Common.PipelineName,
		RepositoryName: cfg.Common.RepositoryName,
		Branch:         cfg.Common.Branch,
	}

	var targets []Target
	for _, t := range cfg.Targets {
		if !t.Enabled {
			p.Skipped = append(p.Skipped, t.Env)
			log.Infow("pipeline target disabled", "environment", t.Env)
			continue
		}
		if t.Stage == nil {
			return nil, fmt.Errorf("pipeline: enabled target %s has no stage", t.Env)
		}
		targets = append(targets, t)
	}

	b := s.Template
	addArtifactStore(b, s.Account, targets)
	addRoles(b, cfg.Common, targets)
	addProjects(b, s.Name, cfg.Common.GoVersion)

	stages := []any{
		sourceStage(cfg.Common),
		buildStage(),
		selfMutationStage(),
	}
	p.Stages = append(p.Stages, "Source", "Build", "UpdatePipeline")
	for _, t := range targets {
		st, err := deployStage(t, cfg.Common.BootstrapQualifier)
		if err != nil {
			return nil, err
		}
		stages = append(stages, st)
		p.Stages = append(p.Stages, t.Stage.Name)
	}

	b.AddResource(PipelineID, "AWS::CodePipeline::Pipeline", map[string]any{
		"Name":    p.Name,
		"RoleArn": intrinsics.GetAtt{LogicalName: PipelineRoleID, Attribute: "Arn"},
		"ArtifactStore": map[string]any{
			"Type":     "S3",
			"Location": intrinsics.Ref{LogicalName: BucketID},
			"EncryptionKey": map[string]any{
				"Id":   intrinsics.GetAtt{LogicalName: KeyID, Attribute: "Arn"},
				"Type": "KMS",
			},
		},
		"RestartExecutionOnUpdate": true,
		"Stages":                   stages,
	}, template.DependsOn(PipelineRoleID+"DefaultPolicy"))

	addSourceTrigger(b, cfg.Common)

	b.AddOutput("PipelineName", eksgitops.Output{
		Description: "Name of the delivery pipeline",
		Value:       intrinsics.Ref{LogicalName: PipelineID},
	})
	return p, nil
}

// repositoryArn is the ARN of the pre-existing source repository.
func repositoryArn(name string) intrinsics.Sub {
	return intrinsics.Sub{String: "arn:${AWS::Partition}:codecommit:${AWS::Region}:${AWS::AccountId}:" + name}
}

func pipelineArn() intrinsics.Sub {
	return intrinsics.Sub{String: "arn:${AWS::Partition}:codepipeline:${AWS::Region}:${AWS::AccountId}:${" + PipelineID + "}"}
}

// bootstrapRole returns the ARN of a role created by cdk bootstrap in the
// target environment.
func bootstrapRole(qualifier, purpose string, env config.Environment) intrinsics.Sub {
	return intrinsics.Sub{String: fmt.Sprintf("arn:${AWS::Partition}:iam::%s:role/cdk-%s-%s-%s-%s",
		env.Account, qualifier, purpose, env.Account, env.Region)}
}

func addArtifactStore(b *template.Builder, account string, targets []Target) {
	keyPolicy := intrinsics.NewPolicyDocument(intrinsics.PolicyStatement{
		Effect:    "Allow",
		Principal: intrinsics.AccountRootPrincipal(),
		Action:    "kms:*",
		Resource:  "*",
	})
	bucketPolicy := intrinsics.NewPolicyDocument()
	for _, acct := range targetAccounts(account, targets) {
		keyPolicy.Statement = append(keyPolicy.Statement, intrinsics.PolicyStatement{
			Effect:    "Allow",
			Principal: intrinsics.AccountPrincipal(acct),
			Action:    []any{"kms:Decrypt", "kms:DescribeKey"},
			Resource:  "*",
		})
		bucketPolicy.Statement = append(bucketPolicy.Statement, intrinsics.PolicyStatement{
			Effect:    "Allow",
			Principal: intrinsics.AccountPrincipal(acct),
			Action:    []any{"s3:GetObject*", "s3:GetBucket*", "s3:List*"},
			Resource: []any{
				intrinsics.GetAtt{LogicalName: BucketID, Attribute: "Arn"},
				intrinsics.Sub{String: "${" + BucketID + ".Arn}/*"},
			},
		})
	}

	b.AddResource(KeyID, "AWS::KMS::Key", map[string]any{
		"Description":       "Encrypts the pipeline artifacts",
		"EnableKeyRotation": true,
		"KeyPolicy":         keyPolicy,
	}, template.Retain())
	b.AddResource(BucketID, "AWS::S3::Bucket", map[string]any{
		"BucketEncryption": map[string]any{
			"ServerSideEncryptionConfiguration": []any{map[string]any{
				"ServerSideEncryptionByDefault": map[string]any{
					"SSEAlgorithm":   "aws:kms",
					"KMSMasterKeyID": intrinsics.GetAtt{LogicalName: KeyID, Attribute: "Arn"},
				},
			}},
		},
		"PublicAccessBlockConfiguration": map[string]any{
			"BlockPublicAcls":       true,
			"BlockPublicPolicy":     true,
			"IgnorePublicAcls":      true,
			"RestrictPublicBuckets": true,
		},
	}, template.Retain())
	if len(bucketPolicy.Statement) > 0 {
		b.AddResource(BucketPolicyID, "AWS::S3::BucketPolicy", map[string]any{
			"Bucket":         intrinsics.Ref{LogicalName: BucketID},
			"PolicyDocument": bucketPolicy,
		})
	}
}

// targetAccounts returns the distinct target accounts other than the
// pipeline's own.
func targetAccounts(own string, targets []Target) []string {
	seen := map[string]bool{own: true}
	var out []string
	for _, t := range targets {
		acct := t.Stage.Env.Account
		if !seen[acct] {
			seen[acct] = true
			out = append(out, acct)
		}
	}
	return out
}

func addRoles(b *template.Builder, common config.Common, targets []Target) {
	artifactAccess := []intrinsics.PolicyStatement{
		intrinsics.Allow([]string{"s3:GetObject*", "s3:GetBucket*", "s3:List*", "s3:PutObject*", "s3:DeleteObject*", "s3:Abort*"},
			intrinsics.GetAtt{LogicalName: BucketID, Attribute: "Arn"},
			intrinsics.Sub{String: "${" + BucketID + ".Arn}/*"}),
		intrinsics.Allow([]string{"kms:Decrypt", "kms:DescribeKey", "kms:Encrypt", "kms:ReEncrypt*", "kms:GenerateDataKey*"},
			intrinsics.GetAtt{LogicalName: KeyID, Attribute: "Arn"}),
	}

	var deployRoles []any
	for _, t := range targets {
		deployRoles = append(deployRoles, bootstrapRole(common.BootstrapQualifier, "deploy-role", t.Stage.Env))
	}
	pipelineStatements := append([]intrinsics.PolicyStatement{}, artifactAccess...)
	pipelineStatements = append(pipelineStatements,
		intrinsics.Allow([]string{"codecommit:GetBranch", "codecommit:GetCommit", "codecommit:UploadArchive",
			"codecommit:GetUploadArchiveStatus", "codecommit:CancelUploadArchive"}, repositoryArn(common.RepositoryName)),
		intrinsics.Allow([]string{"codebuild:BatchGetBuilds", "codebuild:StartBuild", "codebuild:StopBuild"},
			intrinsics.GetAtt{LogicalName: SynthProjectID, Attribute: "Arn"},
			intrinsics.GetAtt{LogicalName: SelfMutationID, Attribute: "Arn"}),
	)
	if len(deployRoles) > 0 {
		pipelineStatements = append(pipelineStatements, intrinsics.Allow([]string{"sts:AssumeRole"}, deployRoles...))
	}
	addRole(b, PipelineRoleID, "codepipeline.amazonaws.com", pipelineStatements)

	buildStatements := append([]intrinsics.PolicyStatement{}, artifactAccess...)
	buildStatements = append(buildStatements,
		intrinsics.Allow([]string{"logs:CreateLogGroup", "logs:CreateLogStream", "logs:PutLogEvents"},
			intrinsics.Sub{String: "arn:${AWS::Partition}:logs:${AWS::Region}:${AWS::AccountId}:log-group:/aws/codebuild/*"}),
		// Self mutation deploys the pipeline stack through the bootstrap roles
		// and synth looks up availability zones.
		intrinsics.Allow([]string{"sts:AssumeRole"},
			intrinsics.Sub{String: "arn:${AWS::Partition}:iam::*:role/cdk-" + common.BootstrapQualifier + "-*"}),
		intrinsics.Allow([]string{"ec2:DescribeAvailabilityZones", "sts:GetCallerIdentity"}, "*"),
	)
	addRole(b, BuildRoleID, "codebuild.amazonaws.com", buildStatements)
}

func addRole(b *template.Builder, id, service string, statements []intrinsics.PolicyStatement) {
	b.AddResource(id, "AWS::IAM::Role", map[string]any{
		"AssumeRolePolicyDocument": intrinsics.AssumeRolePolicy(intrinsics.ServicePrincipal{service}),
	})
	b.AddResource(id+"DefaultPolicy", "AWS::IAM::Policy", map[string]any{
		"PolicyName":     id + "DefaultPolicy",
		"PolicyDocument": intrinsics.NewPolicyDocument(statements...),
		"Roles":          []any{intrinsics.Ref{LogicalName: id}},
	})
}
