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


package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

type testCmd struct {
	Command
	file string
	wait time.Duration
	ran  bool
}

func (c *testCmd) Init(name string, desc string) {
	c.Command.Init(name, desc)
	c.StringOption(&c.file, "f|file", "a.toml", "input file")
	c.DurationOption(&c.wait, "d|duration", time.Second, "how long")
}

func (c *testCmd) Exec() { c.ran = true }

func TestOptionAliases(t *testing.T) {
	c := &testCmd{}
	c.Init("test-aliases", "test command")
	if err := c.Parse([]string{"-file", "b.toml", "-d", "3s", "extra"}); err != nil {
		t.Fatal(err)
	}
	if c.file != "b.toml" || c.wait != 3*time.Second {
		t.Errorf("got file=%s wait=%v", c.file, c.wait)
	}
	if c.NArg() != 1 || c.Arg(0) != "extra" {
		t.Errorf("unexpected args %v", c.Args())
	}
	desc := c.GetOptionDesc()
	for _, s := range []string{"-f, -file string", `(default "a.toml")`, "-d, -duration duration", "-log-level"} {
		if !strings.Contains(desc, s) {
			t.Errorf("option help %q missing %q", desc, s)
		}
	}
}

func TestParseCommandLine(t *testing.T) {
	c := &testCmd{}
	c.Init("test-parse", "test command")
	if !Register(c) {
		t.Fatal("not registered")
	}
	if Register(c) {
		t.Error("registered twice")
	}
	cmd, args := ParseCommandLine([]string{"-x", "test-parse", "-f", "c.toml"})
	if cmd != c {
		t.Fatalf("got %v", cmd)
	}
	if strings.Join(args, " ") != "-x -f c.toml" {
		t.Errorf("got %v", args)
	}
	if cmd, _ := ParseCommandLine([]string{"nothing"}); cmd != nil {
		t.Errorf("got %v", cmd)
	}

	var buf bytes.Buffer
	c.Write(&buf)
	if !strings.Contains(buf.String(), "test-parse - test command") {
		t.Errorf("usage: %s", buf.String())
	}
	buf.Reset()
	WriteCommand(&buf)
	if !strings.Contains(buf.String(), "* test-parse") {
		t.Errorf("commands: %s", buf.String())
	}
}
