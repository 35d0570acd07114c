// Package network builds the base network stack: a VPC with one public and
// one private subnet per availability zone and a single NAT gateway.
package network

import (
	"fmt"
	"net/netip"
	"strconv"

	eksgitops "github.com/lex00/eks-gitops-go"
	"github.com/lex00/eks-gitops-go/internal/stack"
	"github.com/lex00/eks-gitops-go/internal/template"
	"github.com/lex00/eks-gitops-go/intrinsics"
)

// StackID is the construct id of the network stack.
const StackID = "BaseNetworkStack"

// SubnetType is the routing type of a subnet group.
type SubnetType string

const (
	Public  SubnetType = "Public"
	Private SubnetType = "Private"
)

// Config describes the network.
type Config struct {
	// Prefix is the stage name, <short prefix>-<long context>, used for export names.
	Prefix string
	CIDR   string
	MaxAZs int
	// SubnetMask is the prefix length of every subnet.
	SubnetMask int
	// AvailabilityZones are looked up zone names. Without them zones are
	// selected with Fn::GetAZs at deploy time.
	AvailabilityZones []string
}

// DefaultConfig returns the network of every stage: 10.0.0.0/16 over up to
// three zones with /20 subnets.
func DefaultConfig(prefix string, zones []string) Config {
	return Config{
		Prefix:            prefix,
		CIDR:              "10.0.0.0/16",
		MaxAZs:            3,
		SubnetMask:        20,
		AvailabilityZones: zones,
	}
}

// Subnet is one subnet of the network.
type Subnet struct {
	ID               string
	Type             SubnetType
	CIDR             netip.Prefix
	AvailabilityZone any

	props map[string]any
}

// Network is the built network.
type Network struct {
	VPCID        string
	CIDR         netip.Prefix
	Subnets      []*Subnet
	NATGatewayID string

	VPCExport            string
	PublicSubnetsExport  string
	PrivateSubnetsExport string
}

// Build adds the network resources to s.
func Build(s *stack.Stack, cfg Config) (*Network, error) {
	base, err := netip.ParsePrefix(cfg.CIDR)
	if err != nil {
		return nil, fmt.Errorf("network cidr: %w", err)
	}
	if base != base.Masked() {
		return nil, fmt.Errorf("network cidr %s has host bits set", cfg.CIDR)
	}
	if cfg.MaxAZs < 1 {
		return nil, fmt.Errorf("max availability zones must be positive, got %d", cfg.MaxAZs)
	}
	newbits := cfg.SubnetMask - base.Bits()
	if newbits < 0 {
		return nil, fmt.Errorf("subnet mask /%d is wider than the network %s", cfg.SubnetMask, base)
	}

	zones := zoneRefs(cfg)
	n := &Network{
		VPCID:                "VPC",
		CIDR:                 base,
		NATGatewayID:         "PublicSubnet1NATGateway",
		VPCExport:            cfg.Prefix + "-EKS-VPC-ID",
		PublicSubnetsExport:  cfg.Prefix + "-EKS-PUBLIC-SUBNET-IDS",
		PrivateSubnetsExport: cfg.Prefix + "-EKS-PRIVATE-SUBNET-IDS",
	}
	b := s.Template
	vpc := intrinsics.Ref{LogicalName: n.VPCID}

	b.AddResource(n.VPCID, "AWS::EC2::VPC", map[string]any{
		"CidrBlock":          base.String(),
		"EnableDnsHostnames": true,
		"EnableDnsSupport":   true,
		"InstanceTenancy":    "default",
		"Tags":               []any{intrinsics.Tag{Key: "Name", Value: s.Name + "/VPC"}},
	})
	b.AddResource("InternetGateway", "AWS::EC2::InternetGateway", map[string]any{
		"Tags": []any{intrinsics.Tag{Key: "Name", Value: s.Name + "/VPC"}},
	})
	b.AddResource("VPCGatewayAttachment", "AWS::EC2::VPCGatewayAttachment", map[string]any{
		"VpcId":             vpc,
		"InternetGatewayId": intrinsics.Ref{LogicalName: "InternetGateway"},
	})

	netnum := 0
	for _, typ := range []SubnetType{Public, Private} {
		for i, zone := range zones {
			prefix, err := cidrSubnet(base, newbits, netnum)
			if err != nil {
				return nil, fmt.Errorf("allocating %s subnet %d: %w", typ, i+1, err)
			}
			netnum++

			sub := &Subnet{
				ID:               string(typ) + "Subnet" + strconv.Itoa(i+1),
				Type:             typ,
				CIDR:             prefix,
				AvailabilityZone: zone,
			}
			sub.props = map[string]any{
				"VpcId":               vpc,
				"CidrBlock":           prefix.String(),
				"AvailabilityZone":    zone,
				"MapPublicIpOnLaunch": typ == Public,
				"Tags": []any{
					intrinsics.Tag{Key: "Name", Value: s.Name + "/VPC/" + sub.ID},
					intrinsics.Tag{Key: "subnet-type", Value: string(typ)},
				},
			}
			b.AddResource(sub.ID, "AWS::EC2::Subnet", sub.props)
			n.Subnets = append(n.Subnets, sub)

			rt := sub.ID + "RouteTable"
			b.AddResource(rt, "AWS::EC2::RouteTable", map[string]any{
				"VpcId": vpc,
				"Tags":  []any{intrinsics.Tag{Key: "Name", Value: s.Name + "/VPC/" + sub.ID}},
			})
			b.AddResource(sub.ID+"RouteTableAssociation", "AWS::EC2::SubnetRouteTableAssociation", map[string]any{
				"RouteTableId": intrinsics.Ref{LogicalName: rt},
				"SubnetId":     intrinsics.Ref{LogicalName: sub.ID},
			})

			route := map[string]any{
				"RouteTableId":         intrinsics.Ref{LogicalName: rt},
				"DestinationCidrBlock": "0.0.0.0/0",
			}
			switch typ {
			case Public:
				route["GatewayId"] = intrinsics.Ref{LogicalName: "InternetGateway"}
				b.AddResource(sub.ID+"DefaultRoute", "AWS::EC2::Route", route, template.DependsOn("VPCGatewayAttachment"))
				if i == 0 {
					addNAT(b, s.Name, sub.ID, n.NATGatewayID)
				}
			case Private:
				route["NatGatewayId"] = intrinsics.Ref{LogicalName: n.NATGatewayID}
				b.AddResource(sub.ID+"DefaultRoute", "AWS::EC2::Route", route)
			}
		}
	}

	b.AddOutput("VPCID", eksgitops.Output{
		Description: "VPC of the EKS cluster",
		Value:       vpc,
		Export:      &eksgitops.Export{Name: n.VPCExport},
	})
	b.AddOutput("PublicSubnetIds", eksgitops.Output{
		Value:  n.joinedIDs(Public),
		Export: &eksgitops.Export{Name: n.PublicSubnetsExport},
	})
	b.AddOutput("PrivateSubnetIds", eksgitops.Output{
		Value:  n.joinedIDs(Private),
		Export: &eksgitops.Export{Name: n.PrivateSubnetsExport},
	})
	return n, nil
}

// addNAT adds the single NAT gateway of the network to the given public subnet.
func addNAT(b *template.Builder, stackName, subnetID, natID string) {
	eip := subnetID + "EIP"
	b.AddResource(eip, "AWS::EC2::EIP", map[string]any{
		"Domain": "vpc",
		"Tags":   []any{intrinsics.Tag{Key: "Name", Value: stackName + "/VPC/" + subnetID}},
	})
	b.AddResource(natID, "AWS::EC2::NatGateway", map[string]any{
		"AllocationId": intrinsics.GetAtt{LogicalName: eip, Attribute: "AllocationId"},
		"SubnetId":     intrinsics.Ref{LogicalName: subnetID},
		"Tags":         []any{intrinsics.Tag{Key: "Name", Value: stackName + "/VPC/" + subnetID}},
	}, template.DependsOn(subnetID+"DefaultRoute", subnetID+"RouteTableAssociation"))
}

func zoneRefs(cfg Config) []any {
	count := cfg.MaxAZs
	if len(cfg.AvailabilityZones) > 0 && len(cfg.AvailabilityZones) < count {
		count = len(cfg.AvailabilityZones)
	}
	zones := make([]any, count)
	for i := range zones {
		if len(cfg.AvailabilityZones) > 0 {
			zones[i] = cfg.AvailabilityZones[i]
			continue
		}
		zones[i] = intrinsics.Select{Index: i, List: intrinsics.GetAZs{}}
	}
	return zones
}

// SubnetsOfType returns the subnets of one type in zone order.
func (n *Network) SubnetsOfType(typ SubnetType) []*Subnet {
	var out []*Subnet
	for _, s := range n.Subnets {
		if s.Type == typ {
			out = append(out, s)
		}
	}
	return out
}

// TagSubnets sets a tag on every subnet of one type. It must be called
// before the network stack is rendered.
func (n *Network) TagSubnets(typ SubnetType, key, value string) {
	for _, s := range n.SubnetsOfType(typ) {
		tags, _ := s.props["Tags"].([]any)
		replaced := false
		for i, t := range tags {
			if tag, ok := t.(intrinsics.Tag); ok && tag.Key == key {
				tags[i] = intrinsics.Tag{Key: key, Value: value}
				replaced = true
			}
		}
		if !replaced {
			tags = append(tags, intrinsics.Tag{Key: key, Value: value})
		}
		s.props["Tags"] = tags
	}
}

// ImportVPCID returns the VPC id as seen from another stack.
func (n *Network) ImportVPCID() intrinsics.ImportValue {
	return intrinsics.ImportValue{ExportName: n.VPCExport}
}

// ImportSubnetIDs returns the subnet ids of one type as seen from another stack.
func (n *Network) ImportSubnetIDs(typ SubnetType) intrinsics.Split {
	export := n.PrivateSubnetsExport
	if typ == Public {
		export = n.PublicSubnetsExport
	}
	return intrinsics.Split{Delimiter: ",", Source: intrinsics.ImportValue{ExportName: export}}
}

func (n *Network) joinedIDs(typ SubnetType) intrinsics.Join {
	var refs []any
	for _, s := range n.SubnetsOfType(typ) {
		refs = append(refs, intrinsics.Ref{LogicalName: s.ID})
	}
	return intrinsics.Join{Delimiter: ",", Values: refs}
}
