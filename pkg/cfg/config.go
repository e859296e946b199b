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

package cfg

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/oracle/coherence-sub033/pkg/handler"
	netio "github.com/oracle/coherence-sub033/pkg/io"
	"github.com/oracle/coherence-sub033/pkg/member"
)

type (
	NodeConfig struct {
		ClusterName string
		MemberName  string
		RoleName    string
		MemberId    int
		MachineId   int
		ServiceId   int
		ServiceName string
	}

	LogConfig struct {
		Level string
	}

	StatsConfig struct {
		Enabled    bool
		ListenAddr string
	}

	Config struct {
		Node           NodeConfig
		Log            LogConfig
		Stats          StatsConfig
		FlowControl    member.FlowControlConfig
		MessageHandler handler.Config
		Datagram       netio.DatagramConfig
	}
)

var DefaultConfig = Config{
	Node: NodeConfig{
		ClusterName: "tcmp",
		ServiceName: "Cluster",
	},
	Log: LogConfig{
		Level: "info",
	},
	Stats: StatsConfig{
		Enabled:    true,
		ListenAddr: ":9090",
	},
	FlowControl:    member.DefaultFlowControlConfig,
	MessageHandler: handler.DefaultConfig,
	Datagram:       netio.DefaultDatagramConfig,
}

func (c *Config) SetDefaultIfNotDefined() (set bool) {
	if c.Node.ClusterName == "" {
		set = true
		c.Node.ClusterName = DefaultConfig.Node.ClusterName
	}
	if c.Node.ServiceName == "" {
		set = true
		c.Node.ServiceName = DefaultConfig.Node.ServiceName
	}
	if c.Log.Level == "" {
		set = true
		c.Log.Level = DefaultConfig.Log.Level
	}
	if c.Stats.ListenAddr == "" {
		set = true
		c.Stats.ListenAddr = DefaultConfig.Stats.ListenAddr
	}
	if c.FlowControl.SetDefaultIfNotDefined() {
		set = true
	}
	if c.MessageHandler.SetDefaultIfNotDefined() {
		set = true
	}
	if c.Datagram.SetDefaultIfNotDefined() {
		set = true
	}
	return
}

// Load builds a Config from the defaults, the TOML file (if not empty) and
// then the "Section.Key=value" overrides, in that order.
func Load(file string, overrides ...string) (*Config, error) {
	var props Properties
	if err := props.ReadFrom(&DefaultConfig); err != nil {
		return nil, err
	}
	if file != "" {
		var fromFile Properties
		if err := fromFile.ReadFromTomlFile(file); err != nil {
			return nil, fmt.Errorf("reading %s: %w", file, err)
		}
		if err := props.Merge(&fromFile); err != nil {
			return nil, err
		}
	}
	for _, o := range overrides {
		if err := Override(&props, o); err != nil {
			return nil, err
		}
	}
	conf := &Config{}
	if err := props.WriteTo(conf); err != nil {
		return nil, err
	}
	conf.SetDefaultIfNotDefined()
	return conf, nil
}

// LoadFromBytes is Load for in-memory TOML.
func LoadFromBytes(b []byte) (*Config, error) {
	conf := DefaultConfig
	if _, err := toml.Decode(string(b), &conf); err != nil {
		return nil, err
	}
	conf.SetDefaultIfNotDefined()
	return &conf, nil
}

// Override applies a single "a.b=value" setting. The value is parsed as a
// TOML value when possible and taken as a string otherwise.
func Override(props *Properties, kv string) error {
	idx := strings.IndexByte(kv, '=')
	if idx <= 0 {
		return fmt.Errorf("invalid override %q, expected key=value", kv)
	}
	key := strings.TrimSpace(kv[:idx])
	raw := strings.TrimSpace(kv[idx+1:])

	var holder struct{ V interface{} }
	if _, err := toml.Decode("V = "+raw, &holder); err == nil {
		props.SetKeyValue(key, holder.V)
	} else {
		props.SetKeyValue(key, raw)
	}
	return nil
}

func (c *Config) WriteTo(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

func (c *Config) String() string {
	var buf bytes.Buffer
	c.WriteTo(&buf)
	return buf.String()
}
