//
//  Copyright 2023 PayPal Inc.
//
//  Licensed to the Apache Software Foundation (ASF) under one or more
//  contributor license agreements.  See the NOTICE file distributed with
//  this work for additional information regarding copyright ownership.
//  The ASF licenses this file to You under the Apache License, Version 2.0
//  (the "License"); you may not use this file except in compliance with
//  the License.  You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.
//

package member

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strings"

	uuid "github.com/satori/go.uuid"

	"github.com/oracle/coherence-sub033/pkg/util"
)

const (
	UUIDLength       = 32
	LegacyUUIDLength = 16

	maskGenerated = int32(-1 << 31)
	maskRealAddr  = int32(1 << 30)
	maskIPv6Addr  = int32(1 << 29)
	maskAllFlags  = int32(-0x10000000)
)

// UUID is the immutable 32 byte identity of a member: creation time,
// address, port and machine id. The flag bits live in the top nibble of
// the port word.
type UUID struct {
	timestamp int64
	addr      [16]byte
	port      int32
	count     int32
}

// NewUUID builds the identity of a member created at ts (milliseconds)
// listening on ip:port.
func NewUUID(ts int64, ip net.IP, port int, machineId int) UUID {
	u := UUID{
		timestamp: ts,
		port:      int32(port) &^ maskAllFlags,
		count:     int32(machineId),
	}
	if ip == nil || ip.IsUnspecified() {
		return u
	}
	u.port |= maskRealAddr
	if v4 := ip.To4(); v4 != nil {
		copy(u.addr[:4], v4)
	} else {
		u.port |= maskIPv6Addr
		copy(u.addr[:], ip.To16())
	}
	return u
}

// NewGeneratedUUID returns an identity without a real address, used by
// peers that never join as members (listeners, tools). The random part
// comes from a version 4 uuid.
func NewGeneratedUUID(ts int64) UUID {
	r := uuid.NewV4()
	u := UUID{timestamp: ts, port: maskGenerated}
	copy(u.addr[:], r.Bytes())
	u.count = int32(binary.BigEndian.Uint32(r.Bytes()[12:]))
	return u
}

// LocalMachineId derives a 16 bit machine id from the first non loopback
// hardware address, falling back to a random value.
func LocalMachineId() int {
	if ifs, err := net.Interfaces(); err == nil {
		for _, ifc := range ifs {
			if ifc.Flags&net.FlagLoopback != 0 || len(ifc.HardwareAddr) < 2 {
				continue
			}
			hw := ifc.HardwareAddr
			return int(hw[len(hw)-2])<<8 | int(hw[len(hw)-1])
		}
	}
	return int(binary.BigEndian.Uint16(uuid.NewV4().Bytes()))
}

// ReadUUID reads the 32 byte form.
func ReadUUID(r io.Reader) (u UUID, err error) {
	var b [UUIDLength]byte
	if _, err = io.ReadFull(r, b[:]); err != nil {
		return
	}
	u.timestamp = int64(binary.BigEndian.Uint64(b[0:8]))
	copy(u.addr[:], b[8:24])
	u.port = int32(binary.BigEndian.Uint32(b[24:28]))
	u.count = int32(binary.BigEndian.Uint32(b[28:32]))
	return
}

// ReadLegacyUUID reads the 16 byte form: timestamp, IPv4 address and a
// word packing the port (low 16 bits) with the machine id (high 16 bits).
func ReadLegacyUUID(r io.Reader) (u UUID, err error) {
	var b [LegacyUUIDLength]byte
	if _, err = io.ReadFull(r, b[:]); err != nil {
		return
	}
	u.timestamp = int64(binary.BigEndian.Uint64(b[0:8]))
	copy(u.addr[:4], b[8:12])
	packed := binary.BigEndian.Uint32(b[12:16])
	u.port = int32(packed & 0xFFFF)
	u.count = int32(packed >> 16)
	if u.addr != [16]byte{} {
		u.port |= maskRealAddr
	}
	return
}

func (u UUID) Bytes() []byte {
	b := make([]byte, UUIDLength)
	binary.BigEndian.PutUint64(b[0:8], uint64(u.timestamp))
	copy(b[8:24], u.addr[:])
	binary.BigEndian.PutUint32(b[24:28], uint32(u.port))
	binary.BigEndian.PutUint32(b[28:32], uint32(u.count))
	return b
}

func (u UUID) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(u.Bytes())
	return int64(n), err
}

func (u UUID) Timestamp() int64 {
	return u.timestamp
}

func (u UUID) IsGenerated() bool {
	return u.port&maskGenerated != 0
}

func (u UUID) IsAddressIncluded() bool {
	return u.port&maskRealAddr != 0
}

// Address returns nil when no real address is included.
func (u UUID) Address() net.IP {
	if !u.IsAddressIncluded() {
		return nil
	}
	if u.port&maskIPv6Addr != 0 {
		ip := make(net.IP, net.IPv6len)
		copy(ip, u.addr[:])
		return ip
	}
	return net.IPv4(u.addr[0], u.addr[1], u.addr[2], u.addr[3])
}

func (u UUID) Port() int {
	return int(u.port &^ maskAllFlags)
}

// Count is the machine id for member identities.
func (u UUID) Count() int {
	return int(u.count)
}

func (u UUID) IsZero() bool {
	return u == UUID{}
}

func (u UUID) Equals(o UUID) bool {
	return u == o
}

// Compare orders by timestamp, then the address words, the port word and
// the count, each as a signed value.
func (u UUID) Compare(o UUID) int {
	if c := cmp64(u.timestamp, o.timestamp); c != 0 {
		return c
	}
	for i := 0; i < 16; i += 4 {
		a := int32(binary.BigEndian.Uint32(u.addr[i:]))
		b := int32(binary.BigEndian.Uint32(o.addr[i:]))
		if c := cmp64(int64(a), int64(b)); c != 0 {
			return c
		}
	}
	if c := cmp64(int64(u.port), int64(o.port)); c != 0 {
		return c
	}
	return cmp64(int64(u.count), int64(o.count))
}

func cmp64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (u UUID) HashCode() uint32 {
	return util.Murmur3Hash(u.Bytes())
}

func (u UUID) String() string {
	return "0x" + strings.ToUpper(util.ToHexString(u.Bytes()))
}

// Describe renders the identity fields for log lines.
func (u UUID) Describe() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "UUID(Timestamp=%d", u.timestamp)
	if addr := u.Address(); addr != nil {
		fmt.Fprintf(&buf, ", Address=%s:%d", addr, u.Port())
	}
	fmt.Fprintf(&buf, ", MachineId=%d)", u.count)
	return buf.String()
}
