// Package intrinsics provides CloudFormation intrinsic functions and IAM
// policy helpers used by the stack layers.
//
// The core intrinsic types are re-exported from cloudformation-schema-go:
//
//	Ref{"VPC"}                         → {"Ref": "VPC"}
//	GetAtt{"Cluster", "Arn"}            → {"Fn::GetAtt": ["Cluster", "Arn"]}
//	ImportValue{"dev-demo-EKS-VPC-ID"}  → {"Fn::ImportValue": "dev-demo-EKS-VPC-ID"}
package intrinsics

import (
	"github.com/lex00/cloudformation-schema-go/intrinsics"
)

type (
	// Ref represents a CloudFormation Ref intrinsic function.
	Ref = intrinsics.Ref

	// GetAtt represents a CloudFormation Fn::GetAtt intrinsic function.
	GetAtt = intrinsics.GetAtt

	// Sub represents a CloudFormation Fn::Sub intrinsic function.
	Sub = intrinsics.Sub

	// SubWithMap is Fn::Sub with a variable map.
	SubWithMap = intrinsics.SubWithMap

	// Join represents a CloudFormation Fn::Join intrinsic function.
	Join = intrinsics.Join

	// Select represents a CloudFormation Fn::Select intrinsic function.
	Select = intrinsics.Select

	// GetAZs represents a CloudFormation Fn::GetAZs intrinsic function.
	GetAZs = intrinsics.GetAZs

	// ImportValue represents a CloudFormation Fn::ImportValue intrinsic function.
	ImportValue = intrinsics.ImportValue

	// Split represents a CloudFormation Fn::Split intrinsic function.
	Split = intrinsics.Split

	// Tag represents a CloudFormation resource tag.
	Tag = intrinsics.Tag
)
