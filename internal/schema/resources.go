package schema

var (
	str     = PropertySchema{Type: "String"}
	integer = PropertySchema{Type: "Integer"}
	boolean = PropertySchema{Type: "Boolean"}
	list    = PropertySchema{Type: "List"}
	object  = PropertySchema{Type: "Map"}
	jsonDoc = PropertySchema{Type: "Json"}
)

func oneOf(values ...string) PropertySchema {
	return PropertySchema{Type: "String", AllowedValues: values}
}

var kubernetesResource = ResourceSchema{
	Required: []string{"ServiceToken", "ClusterName", "Manifest"},
	Properties: map[string]PropertySchema{
		"ServiceToken": str,
		"ClusterName":  str,
		"RoleArn":      str,
		"Manifest":     str,
		"Overwrite":    boolean,
	},
}

var kubernetesPatch = ResourceSchema{
	Required: []string{"ServiceToken", "ClusterName", "ResourceName", "ApplyPatchJson", "RestorePatchJson"},
	Properties: map[string]PropertySchema{
		"ServiceToken":      str,
		"ClusterName":       str,
		"RoleArn":           str,
		"ResourceName":      str,
		"ResourceNamespace": str,
		"ApplyPatchJson":    str,
		"RestorePatchJson":  str,
		"PatchType":         oneOf("json", "merge", "strategic"),
	},
}

// resourceSchemas covers the resource types the synthesizer emits.
var resourceSchemas = map[string]ResourceSchema{
	"AWS::EC2::VPC": {
		Properties: map[string]PropertySchema{
			"CidrBlock":          str,
			"EnableDnsHostnames": boolean,
			"EnableDnsSupport":   boolean,
			"InstanceTenancy":    oneOf("default", "dedicated", "host"),
			"Tags":               list,
		},
	},
	"AWS::EC2::InternetGateway": {
		Properties: map[string]PropertySchema{"Tags": list},
	},
	"AWS::EC2::VPCGatewayAttachment": {
		Required: []string{"VpcId"},
		Properties: map[string]PropertySchema{
			"VpcId":             str,
			"InternetGatewayId": str,
			"VpnGatewayId":      str,
		},
	},
	"AWS::EC2::Subnet": {
		Required: []string{"VpcId"},
		Properties: map[string]PropertySchema{
			"VpcId":               str,
			"CidrBlock":           str,
			"AvailabilityZone":    str,
			"MapPublicIpOnLaunch": boolean,
			"Tags":                list,
		},
	},
	"AWS::EC2::RouteTable": {
		Required: []string{"VpcId"},
		Properties: map[string]PropertySchema{
			"VpcId": str,
			"Tags":  list,
		},
	},
	"AWS::EC2::SubnetRouteTableAssociation": {
		Required: []string{"RouteTableId", "SubnetId"},
		Properties: map[string]PropertySchema{
			"RouteTableId": str,
			"SubnetId":     str,
		},
	},
	"AWS::EC2::Route": {
		Required: []string{"RouteTableId"},
		Properties: map[string]PropertySchema{
			"RouteTableId":         str,
			"DestinationCidrBlock": str,
			"GatewayId":            str,
			"NatGatewayId":         str,
		},
	},
	"AWS::EC2::EIP": {
		Properties: map[string]PropertySchema{
			"Domain": oneOf("vpc", "standard"),
			"Tags":   list,
		},
	},
	"AWS::EC2::NatGateway": {
		Required: []string{"SubnetId"},
		Properties: map[string]PropertySchema{
			"AllocationId": str,
			"SubnetId":     str,
			"Tags":         list,
		},
	},
	"AWS::EC2::SecurityGroup": {
		Required: []string{"GroupDescription"},
		Properties: map[string]PropertySchema{
			"GroupDescription":     str,
			"VpcId":                str,
			"SecurityGroupIngress": list,
			"SecurityGroupEgress":  list,
			"Tags":                 list,
		},
	},
	"AWS::EKS::Cluster": {
		Required: []string{"RoleArn", "ResourcesVpcConfig"},
		Properties: map[string]PropertySchema{
			"Name":               str,
			"Version":            str,
			"RoleArn":            str,
			"ResourcesVpcConfig": object,
			"EncryptionConfig":   list,
			"AccessConfig":       object,
			"Logging":            object,
			"Tags":               list,
		},
	},
	"AWS::EKS::Nodegroup": {
		Required: []string{"ClusterName", "NodeRole", "Subnets"},
		Properties: map[string]PropertySchema{
			"ClusterName":   str,
			"NodegroupName": str,
			"NodeRole":      str,
			"Subnets":       list,
			"InstanceTypes": list,
			"ScalingConfig": object,
			"Labels":        object,
			"AmiType":       str,
			"DiskSize":      integer,
			"CapacityType":  oneOf("ON_DEMAND", "SPOT"),
			"Tags":          object,
		},
	},
	"AWS::EKS::Addon": {
		Required: []string{"AddonName", "ClusterName"},
		Properties: map[string]PropertySchema{
			"AddonName":        str,
			"ClusterName":      str,
			"AddonVersion":     str,
			"ResolveConflicts": oneOf("NONE", "OVERWRITE", "PRESERVE"),
			"Tags":             list,
		},
	},
	"AWS::EKS::AccessEntry": {
		Required: []string{"ClusterName", "PrincipalArn"},
		Properties: map[string]PropertySchema{
			"ClusterName":      str,
			"PrincipalArn":     str,
			"Type":             oneOf("STANDARD", "EC2_LINUX", "EC2_WINDOWS", "FARGATE_LINUX"),
			"AccessPolicies":   list,
			"KubernetesGroups": list,
			"Username":         str,
			"Tags":             list,
		},
	},
	"AWS::EKS::PodIdentityAssociation": {
		Required: []string{"ClusterName", "Namespace", "RoleArn", "ServiceAccount"},
		Properties: map[string]PropertySchema{
			"ClusterName":    str,
			"Namespace":      str,
			"RoleArn":        str,
			"ServiceAccount": str,
			"Tags":           list,
		},
	},
	"AWS::IAM::Role": {
		Required: []string{"AssumeRolePolicyDocument"},
		Properties: map[string]PropertySchema{
			"AssumeRolePolicyDocument": jsonDoc,
			"Description":              str,
			"ManagedPolicyArns":        list,
			"Policies":                 list,
			"RoleName":                 str,
			"Tags":                     list,
		},
	},
	"AWS::IAM::Policy": {
		Required: []string{"PolicyDocument", "PolicyName"},
		Properties: map[string]PropertySchema{
			"PolicyDocument": jsonDoc,
			"PolicyName":     str,
			"Roles":          list,
		},
	},
	"AWS::KMS::Key": {
		Properties: map[string]PropertySchema{
			"Description":       str,
			"EnableKeyRotation": boolean,
			"KeyPolicy":         jsonDoc,
			"Tags":              list,
		},
	},
	"AWS::KMS::Alias": {
		Required: []string{"AliasName", "TargetKeyId"},
		Properties: map[string]PropertySchema{
			"AliasName":   str,
			"TargetKeyId": str,
		},
	},
	"AWS::S3::Bucket": {
		Properties: map[string]PropertySchema{
			"BucketEncryption":               object,
			"PublicAccessBlockConfiguration": object,
			"VersioningConfiguration":        object,
			"Tags":                           list,
		},
	},
	"AWS::S3::BucketPolicy": {
		Required: []string{"Bucket", "PolicyDocument"},
		Properties: map[string]PropertySchema{
			"Bucket":         str,
			"PolicyDocument": jsonDoc,
		},
	},
	"AWS::CodeBuild::Project": {
		Required: []string{"Artifacts", "Environment", "ServiceRole", "Source"},
		Properties: map[string]PropertySchema{
			"Description":   str,
			"ServiceRole":   str,
			"Source":        object,
			"Artifacts":     object,
			"Environment":   object,
			"EncryptionKey": str,
			"Tags":          list,
		},
	},
	"AWS::CodePipeline::Pipeline": {
		Required: []string{"RoleArn", "Stages"},
		Properties: map[string]PropertySchema{
			"Name":                     str,
			"RoleArn":                  str,
			"ArtifactStore":            object,
			"RestartExecutionOnUpdate": boolean,
			"Stages":                   list,
			"Tags":                     list,
		},
	},
	"AWS::Events::Rule": {
		Properties: map[string]PropertySchema{
			"Description":  str,
			"EventPattern": jsonDoc,
			"State":        oneOf("ENABLED", "DISABLED"),
			"Targets":      list,
		},
	},
	"Custom::AWSCDK-EKS-KubernetesResource": kubernetesResource,
	"Custom::AWSCDK-EKS-KubernetesPatch":    kubernetesPatch,
}
