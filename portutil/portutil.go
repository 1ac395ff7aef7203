// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2020 SONiC Project
// Use of this source code is governed by an Apache-2.0
// license that can be found in the LICENSE file.

package portutil

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/sonic-net/go-swsssdk/connector"
	"github.com/sonic-net/go-swsssdk/fault"
)

// interface name shapes with their index bases
//
// object identifiers are 1-based where interfaces are 0-based, hence
// the offset of one for front panel ports; aggregates and management
// ports get their own ranges
const (
	EthernetBaseIndex    = 1
	PortChannelBaseIndex = 1000
	ManagementBaseIndex  = 10000
)

var (
	ethernetRegexp    = regexp.MustCompile(`^Ethernet(\d+)$`)
	portChannelRegexp = regexp.MustCompile(`^PortChannel(\d+)$`)
	managementRegexp  = regexp.MustCompile(`^eth(\d+)$`)
)

// counter name map hashes in COUNTERS_DB
const (
	portNameMap = "COUNTERS_PORT_NAME_MAP"
	lagNameMap  = "COUNTERS_LAG_NAME_MAP"
)

// object id string prefix as stored by the switch abstraction layer
const oidPrefix = "oid:0x"

// ASIC_DB key prefixes
const (
	bridgePortPrefix = "ASIC_STATE:SAI_OBJECT_TYPE_BRIDGE_PORT:"
	vlanPrefix       = "ASIC_STATE:SAI_OBJECT_TYPE_VLAN:"
)

// ASIC_DB attribute fields
const (
	bridgePortIDField = "SAI_BRIDGE_PORT_ATTR_PORT_ID"
	vlanIDField       = "SAI_VLAN_ATTR_VLAN_ID"
)

// Index - the 1-based numeric index of an interface name
//
// returns ok false for a name of an unrecognised shape
func Index(name string) (int, bool) {
	patterns := []struct {
		re   *regexp.Regexp
		base int
	}{
		{ethernetRegexp, EthernetBaseIndex},
		{portChannelRegexp, PortChannelBaseIndex},
		{managementRegexp, ManagementBaseIndex},
	}

	for _, p := range patterns {
		m := p.re.FindStringSubmatch(name)
		if nil == m {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if nil != err {
			continue
		}
		return n + p.base, true
	}
	return 0, false
}

// strip the object id prefix; unprefixed values pass through
func stripOID(value string) string {
	return strings.TrimPrefix(value, oidPrefix)
}

// InterfaceOIDMap - interface name to object id and back
//
// reads the port and aggregate counter name maps from COUNTERS_DB,
// blocking until they are populated.  The reverse map only carries
// names of a recognised interface shape.
func InterfaceOIDMap(ctx context.Context, conn *connector.Connector) (map[string]string, map[string]string, error) {
	if err := conn.Connect(ctx, "COUNTERS_DB", false); nil != err {
		return nil, nil, err
	}

	nameMap, _, err := conn.GetAll(ctx, "COUNTERS_DB", portNameMap, true)
	if nil != err {
		return nil, nil, err
	}
	lagMap, _, err := conn.GetAll(ctx, "COUNTERS_DB", lagNameMap, true)
	if nil != err {
		return nil, nil, err
	}

	nameToOID := make(map[string]string, len(nameMap)+len(lagMap))
	for name, oid := range nameMap {
		nameToOID[name] = stripOID(oid)
	}
	for name, oid := range lagMap {
		nameToOID[name] = stripOID(oid)
	}

	oidToName := make(map[string]string, len(nameToOID))
	for name, oid := range nameToOID {
		if _, ok := Index(name); !ok {
			continue
		}
		oidToName[oid] = name
	}

	return nameToOID, oidToName, nil
}

// BridgePortMap - bridge port object id to port object id
//
// enumerates the bridge port objects in ASIC_DB; entries without a
// port id attribute are skipped
func BridgePortMap(ctx context.Context, conn *connector.Connector) (map[string]string, error) {
	if err := conn.Connect(ctx, "ASIC_DB", false); nil != err {
		return nil, err
	}

	keys, err := conn.Keys(ctx, "ASIC_DB", bridgePortPrefix+"*", false)
	if nil != err {
		return nil, err
	}
	if 0 == len(keys) {
		return map[string]string{}, nil
	}

	bridgeToPort := make(map[string]string, len(keys))
	for _, key := range keys {
		// key layout: ASIC_STATE:SAI_OBJECT_TYPE_BRIDGE_PORT:oid:0x3a000000000616
		bridgePortID := stripOID(strings.TrimPrefix(key, bridgePortPrefix))

		entry, _, err := conn.GetAll(ctx, "ASIC_DB", key, true)
		if nil != err {
			return nil, err
		}
		portID, ok := entry[bridgePortIDField]
		if !ok {
			continue
		}
		bridgeToPort[bridgePortID] = stripOID(portID)
	}
	return bridgeToPort, nil
}

// VlanIDFromBVID - the VLAN number behind a bridge VLAN object id
func VlanIDFromBVID(ctx context.Context, conn *connector.Connector, bvid string) (string, error) {
	if err := conn.Connect(ctx, "ASIC_DB", false); nil != err {
		return "", err
	}

	keys, err := conn.Keys(ctx, "ASIC_DB", vlanPrefix+bvid, false)
	if nil != err {
		return "", err
	}
	if 0 == len(keys) {
		return "", fault.DataUnavailable
	}

	entry, _, err := conn.GetAll(ctx, "ASIC_DB", keys[0], true)
	if nil != err {
		return "", err
	}
	vlanID, ok := entry[vlanIDField]
	if !ok {
		return "", fault.DataUnavailable
	}
	return vlanID, nil
}
