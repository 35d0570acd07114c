package pipeline

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/lex00/eks-gitops-go/internal/config"
	"github.com/lex00/eks-gitops-go/internal/template"
	"github.com/lex00/eks-gitops-go/intrinsics"
)

// BuildImage is the CodeBuild image of both projects.
const BuildImage = "aws/codebuild/standard:7.0"

// ChangeSetName is the change set prepared and executed for each stack.
const ChangeSetName = "PipelineChange"

// buildSpec is a CodeBuild build specification.
type buildSpec struct {
	Version string                `yaml:"version"`
	Env     *buildSpecEnv         `yaml:"env,omitempty"`
	Phases  map[string]buildPhase `yaml:"phases"`
	// Artifacts is only set for projects producing an output artifact.
	Artifacts *buildArtifacts `yaml:"artifacts,omitempty"`
}

type buildSpecEnv struct {
	Variables map[string]string `yaml:"variables,omitempty"`
}

type buildPhase struct {
	RuntimeVersions map[string]string `yaml:"runtime-versions,omitempty"`
	Commands        []string          `yaml:"commands"`
}

type buildArtifacts struct {
	BaseDirectory string   `yaml:"base-directory"`
	Files         []string `yaml:"files"`
}

func (s buildSpec) String() string {
	data, err := yaml.Marshal(s)
	if err != nil {
		panic(fmt.Sprintf("marshaling buildspec: %v", err))
	}
	return string(data)
}

func synthSpec(goVersion string) buildSpec {
	return buildSpec{
		Version: "0.2",
		Phases: map[string]buildPhase{
			"install": {
				RuntimeVersions: map[string]string{"golang": goVersion},
				Commands:        []string{"go mod download"},
			},
			"build": {
				Commands: []string{
					"go test ./...",
					"go run ./cmd/eks-gitops synth --output cdk.out",
				},
			},
		},
		Artifacts: &buildArtifacts{BaseDirectory: "cdk.out", Files: []string{"**/*"}},
	}
}

func selfMutationSpec(pipelineStack string) buildSpec {
	return buildSpec{
		Version: "0.2",
		Env:     &buildSpecEnv{Variables: map[string]string{"PIPELINE_STACK": pipelineStack}},
		Phases: map[string]buildPhase{
			"install": {Commands: []string{"npm install -g aws-cdk@2"}},
			"build": {Commands: []string{
				"cdk -a . deploy $PIPELINE_STACK --require-approval=never --verbose",
			}},
		},
	}
}

func addProjects(b *template.Builder, pipelineStack, goVersion string) {
	project := func(id, description string, spec buildSpec) {
		b.AddResource(id, "AWS::CodeBuild::Project", map[string]any{
			"Description": description,
			"ServiceRole": intrinsics.GetAtt{LogicalName: BuildRoleID, Attribute: "Arn"},
			"Source": map[string]any{
				"Type":      "CODEPIPELINE",
				"BuildSpec": spec.String(),
			},
			"Artifacts": map[string]any{"Type": "CODEPIPELINE"},
			"Environment": map[string]any{
				"Type":           "LINUX_CONTAINER",
				"ComputeType":    "BUILD_GENERAL1_SMALL",
				"Image":          BuildImage,
				"PrivilegedMode": false,
			},
			"EncryptionKey": intrinsics.GetAtt{LogicalName: KeyID, Attribute: "Arn"},
		}, template.DependsOn(BuildRoleID+"DefaultPolicy"))
	}
	project(SynthProjectID, "Synthesizes the cloud assembly", synthSpec(goVersion))
	project(SelfMutationID, "Updates the pipeline stack", selfMutationSpec(pipelineStack))
}

func actionType(category, owner, provider string) map[string]any {
	return map[string]any{
		"Category": category,
		"Owner":    owner,
		"Provider": provider,
		"Version":  "1",
	}
}

func artifacts(names ...string) []any {
	out := make([]any, len(names))
	for i, n := range names {
		out[i] = map[string]any{"Name": n}
	}
	return out
}

func sourceStage(common config.Common) map[string]any {
	return map[string]any{
		"Name": "Source",
		"Actions": []any{map[string]any{
			"Name":         "CodeCommit",
			"ActionTypeId": actionType("Source", "AWS", "CodeCommit"),
			"Configuration": map[string]any{
				"RepositoryName":       common.RepositoryName,
				"BranchName":           common.Branch,
				"PollForSourceChanges": false,
			},
			"OutputArtifacts": artifacts(SourceArtifact),
			"RunOrder":        1,
		}},
	}
}

func buildStage() map[string]any {
	return map[string]any{
		"Name": "Build",
		"Actions": []any{map[string]any{
			"Name":            "Synth",
			"ActionTypeId":    actionType("Build", "AWS", "CodeBuild"),
			"Configuration":   map[string]any{"ProjectName": intrinsics.Ref{LogicalName: SynthProjectID}},
			"InputArtifacts":  artifacts(SourceArtifact),
			"OutputArtifacts": artifacts(CloudAssemblyOutput),
			"RunOrder":        1,
		}},
	}
}

func selfMutationStage() map[string]any {
	return map[string]any{
		"Name": "UpdatePipeline",
		"Actions": []any{map[string]any{
			"Name":           "SelfMutate",
			"ActionTypeId":   actionType("Build", "AWS", "CodeBuild"),
			"Configuration":  map[string]any{"ProjectName": intrinsics.Ref{LogicalName: SelfMutationID}},
			"InputArtifacts": artifacts(CloudAssemblyOutput),
			"RunOrder":       1,
		}},
	}
}

// deployStage prepares and executes a change set per stack. Stacks of one
// wave share run orders, so independent stacks deploy in parallel.
func deployStage(t Target, qualifier string) (map[string]any, error) {
	waves, err := t.Stage.Waves()
	if err != nil {
		return nil, err
	}
	env := t.Stage.Env
	deployRole := bootstrapRole(qualifier, "deploy-role", env)
	execRole := bootstrapRole(qualifier, "cfn-exec-role", env)

	var actions []any
	runOrder := 1
	if t.ManualApproval {
		actions = append(actions, map[string]any{
			"Name":         "PromoteTo" + t.Stage.Name,
			"ActionTypeId": actionType("Approval", "AWS", "Manual"),
			"RunOrder":     runOrder,
		})
		runOrder++
	}
	for _, wave := range waves {
		for _, st := range wave {
			common := map[string]any{
				"StackName":     st.Name,
				"ChangeSetName": ChangeSetName,
			}
			prepare := map[string]any{
				"ActionMode":   "CHANGE_SET_REPLACE",
				"TemplatePath": CloudAssemblyOutput + "::" + st.Name + ".template.json",
				"Capabilities": "CAPABILITY_NAMED_IAM,CAPABILITY_AUTO_EXPAND",
				"RoleArn":      execRole,
			}
			execute := map[string]any{"ActionMode": "CHANGE_SET_EXECUTE"}
			for k, v := range common {
				prepare[k] = v
				execute[k] = v
			}

			actions = append(actions,
				map[string]any{
					"Name":           st.ID + ".Prepare",
					"ActionTypeId":   actionType("Deploy", "AWS", "CloudFormation"),
					"Configuration":  prepare,
					"InputArtifacts": artifacts(CloudAssemblyOutput),
					"RoleArn":        deployRole,
					"Region":         env.Region,
					"RunOrder":       runOrder,
				},
				map[string]any{
					"Name":          st.ID + ".Deploy",
					"ActionTypeId":  actionType("Deploy", "AWS", "CloudFormation"),
					"Configuration": execute,
					"RoleArn":       deployRole,
					"Region":        env.Region,
					"RunOrder":      runOrder + 1,
				},
			)
		}
		runOrder += 2
	}
	return map[string]any{"Name": t.Stage.Name, "Actions": actions}, nil
}

func addSourceTrigger(b *template.Builder, common config.Common) {
	b.AddResource(EventRoleID, "AWS::IAM::Role", map[string]any{
		"AssumeRolePolicyDocument": intrinsics.AssumeRolePolicy(intrinsics.ServicePrincipal{"events.amazonaws.com"}),
		"Policies": []any{map[string]any{
			"PolicyName": "StartPipeline",
			"PolicyDocument": intrinsics.NewPolicyDocument(
				intrinsics.Allow([]string{"codepipeline:StartPipelineExecution"}, pipelineArn()),
			),
		}},
	})
	b.AddResource(EventRuleID, "AWS::Events::Rule", map[string]any{
		"Description": "Starts the pipeline on pushes to " + common.Branch,
		"EventPattern": map[string]any{
			"source":      []any{"aws.codecommit"},
			"resources":   []any{repositoryArn(common.RepositoryName)},
			"detail-type": []any{"CodeCommit Repository State Change"},
			"detail": map[string]any{
				"event":         []any{"referenceCreated", "referenceUpdated"},
				"referenceName": []any{common.Branch},
			},
		},
		"State": "ENABLED",
		"Targets": []any{map[string]any{
			"Id":      "Pipeline",
			"Arn":     pipelineArn(),
			"RoleArn": intrinsics.GetAtt{LogicalName: EventRoleID, Attribute: "Arn"},
		}},
	})
}
