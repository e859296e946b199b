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


// Package cfg holds the command that writes a default configuration.
package cfg

import (
	"bufio"
	"fmt"
	"os"

	"github.com/oracle/coherence-sub033/pkg/cfg"
	"github.com/oracle/coherence-sub033/pkg/cmd"
)

type cmdCfgGenT struct {
	cmd.Command
	outFileName string
}

func (c *cmdCfgGenT) Init(name string, desc string) {
	c.Command.Init(name, desc)
	c.StringOption(&c.outFileName, "f|file-name", "tcmp.toml", "output filename, - for stdout")
	c.SetSynopsis("[<filename-option>] [<Section.Key=value>...]")
	c.AddExample(name+" -f node1.toml Node.MemberId=1 Datagram.ListenAddr=:8088",
		"write the defaults with two overrides")
}

func (c *cmdCfgGenT) Exec() {
	c.Validate()
	conf, err := cfg.Load("", c.Args()...)
	if err != nil {
		fmt.Println(err)
		return
	}
	if c.outFileName == "-" {
		conf.WriteTo(os.Stdout)
		return
	}
	file, err := os.Create(c.outFileName)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer file.Close()
	w := bufio.NewWriter(file)
	if err = conf.WriteTo(w); err == nil {
		err = w.Flush()
	}
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Printf("%s written\n", c.outFileName)
}

func init() {
	c := &cmdCfgGenT{}
	c.Init("cfggen", "generate a default TOML config")
	cmd.Register(c)
}
