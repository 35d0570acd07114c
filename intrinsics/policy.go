package intrinsics

import (
	"encoding/json"
)

// Json is a shorthand for map[string]any.
type Json = map[string]any

// PolicyDocument represents an IAM policy document.
type PolicyDocument struct {
	Version   string `json:"Version,omitempty"`
	Statement []any  `json:"Statement"`
}

// NewPolicyDocument creates a PolicyDocument with the default version.
func NewPolicyDocument(statements ...PolicyStatement) PolicyDocument {
	doc := PolicyDocument{Version: "2012-10-17", Statement: []any{}}
	for _, s := range statements {
		doc.Statement = append(doc.Statement, s)
	}
	return doc
}

// PolicyStatement represents an IAM policy statement.
type PolicyStatement struct {
	Sid       string `json:"Sid,omitempty"`
	Effect    string `json:"Effect"`
	Principal any    `json:"Principal,omitempty"`
	Action    any    `json:"Action,omitempty"`
	Resource  any    `json:"Resource,omitempty"`
	Condition Json   `json:"Condition,omitempty"`
}

// Allow returns an Allow statement for actions on resources.
// A single action or resource is serialized as a scalar.
func Allow(actions []string, resources ...any) PolicyStatement {
	return PolicyStatement{
		Effect:   "Allow",
		Action:   scalarOrList(actions),
		Resource: scalarOrAnyList(resources),
	}
}

// Actions returns the statement actions as a string slice.
func (s PolicyStatement) Actions() []string {
	switch a := s.Action.(type) {
	case string:
		return []string{a}
	case []string:
		return a
	case []any:
		out := make([]string, 0, len(a))
		for _, v := range a {
			if str, ok := v.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

// AssumeRolePolicy returns a trust policy letting principal assume the role.
// Without explicit actions the trust grants sts:AssumeRole.
func AssumeRolePolicy(principal any, actions ...string) PolicyDocument {
	if len(actions) == 0 {
		actions = []string{"sts:AssumeRole"}
	}
	return NewPolicyDocument(PolicyStatement{
		Effect:    "Allow",
		Principal: principal,
		Action:    scalarOrList(actions),
	})
}

// ManagedPolicyArn returns the ARN of an AWS managed policy.
func ManagedPolicyArn(name string) Sub {
	return Sub{String: "arn:${AWS::Partition}:iam::aws:policy/" + name}
}

// ServicePrincipal represents a service principal (e.g., eks.amazonaws.com).
// Serializes to {"Service": ...} format.
type ServicePrincipal []any

// MarshalJSON serializes to {"Service": ...} format.
func (p ServicePrincipal) MarshalJSON() ([]byte, error) {
	if len(p) == 1 {
		return json.Marshal(map[string]any{"Service": p[0]})
	}
	return json.Marshal(map[string]any{"Service": []any(p)})
}

// AWSPrincipal represents an AWS account/role/user principal.
// Serializes to {"AWS": ...} format.
type AWSPrincipal []any

// MarshalJSON serializes to {"AWS": ...} format.
func (p AWSPrincipal) MarshalJSON() ([]byte, error) {
	if len(p) == 1 {
		return json.Marshal(map[string]any{"AWS": p[0]})
	}
	return json.Marshal(map[string]any{"AWS": []any(p)})
}

// AccountRootPrincipal is the root of the account the stack is deployed to.
func AccountRootPrincipal() AWSPrincipal {
	return AWSPrincipal{Sub{String: "arn:${AWS::Partition}:iam::${AWS::AccountId}:root"}}
}

// AccountPrincipal is the root of a named account.
func AccountPrincipal(account string) AWSPrincipal {
	return AWSPrincipal{Sub{String: "arn:${AWS::Partition}:iam::" + account + ":root"}}
}

func scalarOrList(items []string) any {
	switch len(items) {
	case 0:
		return nil
	case 1:
		return items[0]
	}
	out := make([]any, len(items))
	for i, v := range items {
		out[i] = v
	}
	return out
}

func scalarOrAnyList(items []any) any {
	switch len(items) {
	case 0:
		return nil
	case 1:
		return items[0]
	}
	return items
}
