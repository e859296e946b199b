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


// Package listen holds the command that runs a datagram receiver and
// logs what it extracts.
package listen

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oracle/coherence-sub033/pkg/cfg"
	"github.com/oracle/coherence-sub033/pkg/cmd"
	"github.com/oracle/coherence-sub033/pkg/initmgr"
	netio "github.com/oracle/coherence-sub033/pkg/io"
	"github.com/oracle/coherence-sub033/pkg/logging/glog"
	"github.com/oracle/coherence-sub033/pkg/packet"
	"github.com/oracle/coherence-sub033/pkg/stats"
	"github.com/oracle/coherence-sub033/pkg/util"
)

type cmdListenT struct {
	cmd.Command
	cfgFile  string
	memberId int
	duration time.Duration
}

func (c *cmdListenT) Init(name string, desc string) {
	c.Command.Init(name, desc)
	c.StringOption(&c.cfgFile, "c|config", "", "TOML config file")
	c.IntOption(&c.memberId, "m|member", 0, "member id to extract packets for, 0 for Node.MemberId")
	c.DurationOption(&c.duration, "d|duration", 0, "stop after this long, 0 to run until interrupted")
	c.SetSynopsis("[-c <config>] [-m <member id>] [-d <duration>] [<Section.Key=value>...]")
	c.AddExample(name+" -c node1.toml -d 1m", "listen for a minute")
}

func (c *cmdListenT) Exec() {
	c.Validate()
	conf, err := cfg.Load(c.cfgFile, c.Args()...)
	if err != nil {
		fmt.Println(err)
		return
	}
	level := conf.Log.Level
	if c.LogLevel() != "" {
		level = c.LogLevel()
	}
	initmgr.RegisterWithFuncs(glog.Initialize, glog.Finalize, level, c.GetName())
	if conf.Stats.Enabled {
		initmgr.RegisterWithFuncs(stats.Initialize, stats.Finalize, conf.Stats.ListenAddr)
	}
	initmgr.Init()
	defer initmgr.Finalize()

	memberId := c.memberId
	if memberId == 0 {
		memberId = conf.Node.MemberId
	}
	mgr := util.NewSyncBufferManager()
	rcv, err := netio.NewReceiver(conf.Datagram, mgr, netio.PacketHandlerFunc(func(p packet.Packet) {
		glog.Infof("%s", p)
		if mp := packet.AsMessagePacket(p); mp != nil {
			mp.Release(mgr)
		}
	}))
	if err != nil {
		glog.Errorf("listen on %s: %s", conf.Datagram.ListenAddr, err)
		return
	}
	rcv.SetMemberId(memberId)
	rcv.Start()
	glog.Infof("Listening on %s as member %d", rcv.LocalAddr(), memberId)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	var timeout <-chan time.Time
	if c.duration > 0 {
		timeout = time.After(c.duration)
	}
	select {
	case <-sigCh:
	case <-timeout:
	}
	rcv.Stop()
	glog.Infof("datagrams=%d packets=%d bytes=%d errors=%d",
		rcv.StatsDatagrams(), rcv.StatsPackets(), rcv.StatsBytes(), rcv.StatsErrors())
}

func init() {
	c := &cmdListenT{}
	c.Init("listen", "receive datagrams and log the extracted packets")
	cmd.Register(c)
}
