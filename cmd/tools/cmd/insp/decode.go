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


package insp

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/oracle/coherence-sub033/pkg/cmd"
	"github.com/oracle/coherence-sub033/pkg/packet"
	"github.com/oracle/coherence-sub033/pkg/util"
)

type cmdDecodeT struct {
	cmd.Command
	memberId int
	dgram    []byte
}

func (c *cmdDecodeT) Init(name string, desc string) {
	c.Command.Init(name, desc)
	c.IntOption(&c.memberId, "m|member", 1, "id of the member the datagram is read by")
	c.SetSynopsis("[-m <member id>] <hex-string>")
	c.AddExample(name+" -m 2 <hex-string>", "print the packets of a datagram that member 2 would extract")
}

func (c *cmdDecodeT) Parse(args []string) (err error) {
	if err = c.Command.Parse(args); err != nil {
		return
	}
	if c.NArg() < 1 {
		err = fmt.Errorf("missing hex datagram")
		return
	}
	c.dgram, err = hex.DecodeString(strings.Join(c.Args(), ""))
	return
}

func (c *cmdDecodeT) Exec() {
	c.Validate()
	out, err := decodeDatagram(c.dgram, c.memberId)
	fmt.Print(out)
	if err != nil {
		fmt.Println(err)
	}
}

// decodeDatagram lists the packets in b that memberId would extract, one
// per line.
func decodeDatagram(b []byte, memberId int) (string, error) {
	packets, err := packet.Extract(nil, b, util.HeapBufferManager{}, memberId)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	for i, p := range packets {
		fmt.Fprintf(&buf, "[%d] %s\n", i, p)
	}
	if len(packets) == 0 {
		fmt.Fprintf(&buf, "no packet for member %d\n", memberId)
	}
	return buf.String(), nil
}
