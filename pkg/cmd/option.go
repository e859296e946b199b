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
	"flag"
	"fmt"
	"strings"
	"time"
)

// Option is a flag.FlagSet whose options may have aliases, given as
// "f|file-name", and which keeps the option help for the usage page.
type Option struct {
	flag.FlagSet
	optsDesc string
}

// define registers name and its aliases through def and records the
// help text.
func (o *Option) define(name string, kind string, usage string, def func(n string)) {
	var opts []string
	for _, n := range strings.Split(name, "|") {
		if n != "" {
			def(n)
			opts = append(opts, "-"+n)
		}
	}
	if len(opts) == 0 {
		return
	}
	if kind != "" {
		kind = " " + kind
	}
	o.optsDesc += fmt.Sprintf("  %s%s\n    \t%s\n\n", strings.Join(opts, ", "), kind, usage)
}

func withDefault(usage string, value interface{}) string {
	return fmt.Sprintf("(default %v)\n    \t%s", value, usage)
}

func (o *Option) ValueOption(value flag.Value, name string, usage string) {
	o.define(name, "value", usage, func(n string) { o.Var(value, n, "") })
}

func (o *Option) StringOption(p *string, name string, value string, usage string) {
	o.define(name, "string", withDefault(usage, fmt.Sprintf("%q", value)), func(n string) { o.StringVar(p, n, value, "") })
}

func (o *Option) BoolOption(p *bool, name string, value bool, usage string) {
	o.define(name, "", withDefault(usage, value), func(n string) { o.BoolVar(p, n, value, "") })
}

func (o *Option) UintOption(p *uint, name string, value uint, usage string) {
	o.define(name, "uint", withDefault(usage, value), func(n string) { o.UintVar(p, n, value, "") })
}

func (o *Option) IntOption(p *int, name string, value int, usage string) {
	o.define(name, "int", withDefault(usage, value), func(n string) { o.IntVar(p, n, value, "") })
}

func (o *Option) DurationOption(p *time.Duration, name string, value time.Duration, usage string) {
	o.define(name, "duration", withDefault(usage, value), func(n string) { o.DurationVar(p, n, value, "") })
}

func (o *Option) GetOptionDesc() string {
	return o.optsDesc
}
