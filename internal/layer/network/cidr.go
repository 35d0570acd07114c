package network

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

// cidrSubnet returns subnet netnum of base, newbits longer than base. It
// follows Terraform's cidrsubnet. Only IPv4 is supported.
func cidrSubnet(base netip.Prefix, newbits, netnum int) (netip.Prefix, error) {
	if !base.Addr().Is4() {
		return netip.Prefix{}, fmt.Errorf("only IPv4 prefixes are supported, got %s", base)
	}
	newLen := base.Bits() + newbits
	if newbits < 0 || newLen > 32 {
		return netip.Prefix{}, fmt.Errorf("prefix extension of %d bits is too large for %s", newbits, base)
	}
	if netnum < 0 || netnum >= 1<<newbits {
		return netip.Prefix{}, fmt.Errorf("subnet number %d does not fit in %d bits", netnum, newbits)
	}

	a := base.Masked().Addr().As4()
	v := binary.BigEndian.Uint32(a[:])
	// #nosec G115
	v += uint32(netnum) << (32 - newLen)
	binary.BigEndian.PutUint32(a[:], v)
	return netip.PrefixFrom(netip.AddrFrom4(a), newLen), nil
}
