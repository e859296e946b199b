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


package io

import (
	stderrors "errors"
	"net"
	"sync"

	"go.uber.org/atomic"
	"golang.org/x/net/ipv4"

	"github.com/oracle/coherence-sub033/pkg/logging/glog"
	"github.com/oracle/coherence-sub033/pkg/packet"
	"github.com/oracle/coherence-sub033/pkg/util"
)

// PacketHandler takes the packets extracted from received datagrams. It
// is called on the receiver goroutine.
type PacketHandler interface {
	OnPacket(p packet.Packet)
}

type PacketHandlerFunc func(p packet.Packet)

func (f PacketHandlerFunc) OnPacket(p packet.Packet) { f(p) }

// Receiver reads datagrams in batches and hands each packet addressed to
// the local member to its PacketHandler.
type Receiver struct {
	conf     DatagramConfig
	conn     *net.UDPConn
	pc       *ipv4.PacketConn
	mgr      util.BufferManager
	handler  PacketHandler
	memberId atomic.Int32

	chStop    chan struct{}
	stopOnce  sync.Once
	startOnce sync.Once
	wg        sync.WaitGroup

	statsDatagrams atomic.Int64
	statsPackets   atomic.Int64
	statsBytes     atomic.Int64
	statsErrors    atomic.Int64
}

func NewReceiver(conf DatagramConfig, mgr util.BufferManager, handler PacketHandler) (r *Receiver, err error) {
	conf.SetDefaultIfNotDefined()
	var addr *net.UDPAddr
	if addr, err = net.ResolveUDPAddr("udp4", conf.ListenAddr); err != nil {
		return
	}
	var conn *net.UDPConn
	if conn, err = net.ListenUDP("udp4", addr); err != nil {
		return
	}
	if err = conn.SetReadBuffer(conf.ReadBufferSize); err != nil {
		glog.Warningf("Unable to set the receive buffer of %s to %d: %v", conn.LocalAddr(), conf.ReadBufferSize, err)
		err = nil
	}
	r = &Receiver{
		conf:    conf,
		conn:    conn,
		pc:      ipv4.NewPacketConn(conn),
		mgr:     mgr,
		handler: handler,
		chStop:  make(chan struct{}),
	}
	return
}

// Conn is the socket of the receiver, shared with the local Publisher.
func (r *Receiver) Conn() *net.UDPConn {
	return r.conn
}

func (r *Receiver) LocalAddr() *net.UDPAddr {
	return r.conn.LocalAddr().(*net.UDPAddr)
}

// SetMemberId sets the id packets must be addressed to. Until it is set
// only broadcasts are delivered.
func (r *Receiver) SetMemberId(id int) { r.memberId.Store(int32(id)) }
func (r *Receiver) MemberId() int      { return int(r.memberId.Load()) }

func (r *Receiver) Start() {
	r.startOnce.Do(func() {
		glog.Infof("Receiving datagrams on %s", r.conn.LocalAddr())
		r.wg.Add(1)
		go r.doRead()
	})
}

// Stop closes the socket and waits for the reader to exit.
func (r *Receiver) Stop() {
	r.stopOnce.Do(func() {
		close(r.chStop)
		r.conn.Close()
	})
	r.wg.Wait()
}

func (r *Receiver) stopped() bool {
	select {
	case <-r.chStop:
		return true
	default:
		return false
	}
}

func (r *Receiver) doRead() {
	defer r.wg.Done()

	msgs := make([]ipv4.Message, r.conf.BatchSize)
	for i := range msgs {
		msgs[i].Buffers = [][]byte{r.mgr.Acquire(r.conf.MaxPacketLength)}
	}
	defer func() {
		for i := range msgs {
			r.mgr.Release(msgs[i].Buffers[0])
		}
		glog.Verbosef("receiver on %s exit", r.conn.LocalAddr())
	}()

	for {
		n, err := r.pc.ReadBatch(msgs, 0)
		if err != nil {
			if r.stopped() || stderrors.Is(err, net.ErrClosed) {
				return
			}
			r.statsErrors.Inc()
			glog.Warningf("Datagram read on %s failed: %v", r.conn.LocalAddr(), err)
			continue
		}
		for i := 0; i < n; i++ {
			m := &msgs[i]
			buf := m.Buffers[0][:m.N]
			// the buffer now belongs to Extract
			m.Buffers[0] = r.mgr.Acquire(r.conf.MaxPacketLength)
			r.onDatagram(m.Addr, buf)
		}
	}
}

func (r *Receiver) onDatagram(src net.Addr, buf []byte) {
	r.statsDatagrams.Inc()
	r.statsBytes.Add(int64(len(buf)))
	packets, err := packet.Extract(src, buf, r.mgr, r.MemberId())
	if err != nil {
		r.statsErrors.Inc()
		glog.Warningf("Discarding a malformed datagram from %v: %v", src, err)
		return
	}
	for _, p := range packets {
		r.statsPackets.Inc()
		r.handler.OnPacket(p)
	}
}

func (r *Receiver) StatsDatagrams() int64 { return r.statsDatagrams.Load() }
func (r *Receiver) StatsPackets() int64   { return r.statsPackets.Load() }
func (r *Receiver) StatsBytes() int64     { return r.statsBytes.Load() }
func (r *Receiver) StatsErrors() int64    { return r.statsErrors.Load() }
