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
	"fmt"
	"strconv"

	"github.com/oracle/coherence-sub033/pkg/cmd"
	"github.com/oracle/coherence-sub033/pkg/packet"
)

type cmdTrintT struct {
	cmd.Command
	current int64
}

func (c *cmdTrintT) Init(name string, desc string) {
	c.Command.Init(name, desc)
	c.ValueOption(int64Value{&c.current}, "c|current", "translate the trints against this full value")
	c.SetSynopsis("[-c <current>] <value>...")
	c.AddExample(name+" 0x1000002", "truncate a value to its trint")
	c.AddExample(name+" -c 0x1FFFFFF 3", "translate a trint relative to the current value")
}

func (c *cmdTrintT) Exec() {
	c.Validate()
	for _, a := range c.Args() {
		n, err := strconv.ParseInt(a, 0, 64)
		if err != nil {
			fmt.Println(err)
			continue
		}
		fmt.Println(formatTrint(n, c.current))
	}
}

func formatTrint(n int64, current int64) string {
	if current == 0 {
		t := packet.MakeTrint(n)
		return fmt.Sprintf("%d (0x%x) -> trint %d (0x%06x)", n, n, t, t)
	}
	t := packet.MakeTrint(n)
	v := packet.TranslateTrint(t, current)
	return fmt.Sprintf("trint %d (0x%06x) @ %d -> %d (0x%x)", t, t, current, v, v)
}

type int64Value struct {
	p *int64
}

func (v int64Value) String() string {
	if v.p == nil {
		return "0"
	}
	return strconv.FormatInt(*v.p, 10)
}

func (v int64Value) Set(s string) (err error) {
	*v.p, err = strconv.ParseInt(s, 0, 64)
	return
}
