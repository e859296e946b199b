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
	"strconv"

	"github.com/oracle/coherence-sub033/pkg/cmd"
	"github.com/oracle/coherence-sub033/pkg/memberset"
)

type cmdMemberSetT struct {
	cmd.Command
	decode bool
}

func (c *cmdMemberSetT) Init(name string, desc string) {
	c.Command.Init(name, desc)
	c.BoolOption(&c.decode, "d|decode", false, "decode a hex member set instead of encoding ids")
	c.SetSynopsis("<id>... | -d <hex-string>")
	c.AddExample(name+" 1 2 40", "encode a set of three members")
	c.AddExample(name+" -d <hex-string>", "decode a member set")
}

func (c *cmdMemberSetT) Exec() {
	c.Validate()
	var (
		out string
		err error
	)
	if c.decode {
		if c.NArg() < 1 {
			fmt.Println("missing hex member set")
			return
		}
		out, err = decodeMemberSet(c.Arg(0))
	} else {
		out, err = encodeMemberSet(c.Args())
	}
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(out)
}

func encodeMemberSet(args []string) (string, error) {
	set := memberset.NewMemberSet()
	for _, a := range args {
		id, err := strconv.Atoi(a)
		if err != nil {
			return "", err
		}
		if id < 1 {
			return "", fmt.Errorf("member id %d out of range", id)
		}
		set.Add(id)
	}
	var buf bytes.Buffer
	if err := set.WriteExternal(&buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

func decodeMemberSet(s string) (string, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return "", err
	}
	set, err := memberset.ReadMemberSet(bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	return set.String(), nil
}
