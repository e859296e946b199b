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
	"strconv"
	"sync"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/oracle/coherence-sub033/pkg/errors"
	"github.com/oracle/coherence-sub033/pkg/logging"
	"github.com/oracle/coherence-sub033/pkg/logging/glog"
	"github.com/oracle/coherence-sub033/pkg/stats"
	"github.com/oracle/coherence-sub033/pkg/util"
)

const maxPauseMillis = 3600 * 1000

// FlowControl throttles the packets outstanding to one member. The
// publisher consults IsSendable before transmitting and reports each
// confirmation or loss.
type FlowControl struct {
	mu     sync.Mutex
	member *Member
	conf   FlowControlConfig

	outstandingPacketCount     int
	outstandingPacketHighMark  int
	outstandingPacketThreshold int
	deferredPacketCount        int
	deferredQueue              *DeferredQueue

	paused                   bool
	pauseStartMillis         int64
	statsPausedMillis        int64
	sequentialConfirmedCount int
	sequentialLostCount      int

	pauseHistogram *hdrhistogram.Histogram

	// OnPause, when set, is called after every pause transition.
	OnPause func(fc *FlowControl, paused bool)
}

func newFlowControl(m *Member, conf *FlowControlConfig) *FlowControl {
	c := *conf
	c.SetDefaultIfNotDefined()
	fc := &FlowControl{
		member:         m,
		conf:           c,
		deferredQueue:  NewDeferredQueue(nil),
		pauseHistogram: hdrhistogram.New(1, maxPauseMillis, 3),
	}
	fc.setOutstandingPacketThreshold(c.InitialThreshold())
	return fc
}

func (fc *FlowControl) Member() *Member {
	return fc.member
}

func (fc *FlowControl) Config() FlowControlConfig {
	return fc.conf
}

// DeferredQueue holds packets waiting for this member to become
// sendable again.
func (fc *FlowControl) DeferredQueue() *DeferredQueue {
	return fc.deferredQueue
}

// SetDeferredComparator replaces the ordering of the deferred queue. It
// must be called before any packet is deferred.
func (fc *FlowControl) SetDeferredComparator(c Comparator) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	errors.Assert(fc.deferredQueue.Size() == 0, "deferred queue already in use")
	fc.deferredQueue = NewDeferredQueue(c)
}

func (fc *FlowControl) OutstandingPacketCount() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.outstandingPacketCount
}

func (fc *FlowControl) SetOutstandingPacketCount(n int) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.setOutstandingPacketCount(n)
}

func (fc *FlowControl) setOutstandingPacketCount(n int) {
	errors.Assert(n >= 0, "negative outstanding packet count %d", n)
	fc.outstandingPacketCount = n
	if n > fc.outstandingPacketHighMark {
		fc.outstandingPacketHighMark = n
	}
}

// AdjustOutstandingPacketCount applies delta and returns the new count.
func (fc *FlowControl) AdjustOutstandingPacketCount(delta int) int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.setOutstandingPacketCount(fc.outstandingPacketCount + delta)
	return fc.outstandingPacketCount
}

func (fc *FlowControl) OutstandingPacketHighMark() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.outstandingPacketHighMark
}

func (fc *FlowControl) OutstandingPacketThreshold() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.outstandingPacketThreshold
}

// SetOutstandingPacketThreshold clamps n into [minimum, maximum].
func (fc *FlowControl) SetOutstandingPacketThreshold(n int) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.setOutstandingPacketThreshold(n)
}

func (fc *FlowControl) setOutstandingPacketThreshold(n int) {
	fc.outstandingPacketThreshold = util.MaxInt(fc.conf.OutstandingPacketMinimum,
		util.MinInt(n, fc.conf.OutstandingPacketMaximum))
}

func (fc *FlowControl) DeferredPacketCount() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.deferredPacketCount
}

func (fc *FlowControl) SetDeferredPacketCount(n int) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	errors.Assert(n >= 0, "negative deferred packet count %d", n)
	fc.deferredPacketCount = n
}

func (fc *FlowControl) AdjustDeferredPacketCount(delta int) int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	n := fc.deferredPacketCount + delta
	errors.Assert(n >= 0, "negative deferred packet count %d", n)
	fc.deferredPacketCount = n
	return n
}

func (fc *FlowControl) IsAdjustable() bool {
	return fc.conf.OutstandingPacketMaximum != fc.conf.OutstandingPacketMinimum
}

func (fc *FlowControl) IsDeferring() bool {
	return fc.DeferredPacketCount() > 0
}

func (fc *FlowControl) IsPaused() bool {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.paused
}

func (fc *FlowControl) PauseStartMillis() int64 {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.pauseStartMillis
}

// SetPaused is a no-op when the state does not change.
func (fc *FlowControl) SetPaused(paused bool) {
	fc.mu.Lock()
	changed := fc.setPaused(paused)
	fc.mu.Unlock()
	if changed && fc.OnPause != nil {
		fc.OnPause(fc, paused)
	}
}

func (fc *FlowControl) setPaused(paused bool) bool {
	if paused == fc.paused {
		return false
	}
	fc.paused = paused
	if paused {
		fc.onPauseStart()
	} else {
		fc.onPauseStop()
	}
	return true
}

func (fc *FlowControl) onPauseStart() {
	fc.pauseStartMillis = util.SafeTimeMillis()
	stats.FlowControlPauses.Inc()
	if glog.LOG_VERBOSE {
		glog.Verbosef("%s has failed to respond to %d packets; declaring this member as paused.",
			fc.member, fc.sequentialLostCount)
	}
}

func (fc *FlowControl) onPauseStop() {
	delta := util.SafeTimeMillis() - fc.pauseStartMillis
	if delta > 0 {
		fc.statsPausedMillis += delta
		if delta > maxPauseMillis {
			fc.pauseHistogram.RecordValue(maxPauseMillis)
		} else {
			fc.pauseHistogram.RecordValue(delta)
		}
	}
	switch {
	case delta > 1000:
		glog.Warningf("Experienced a %d ms communication delay (probable remote GC) with %s; %d packets rescheduled, %s",
			delta, fc.member, fc.sequentialLostCount, fc.formatStats(false))
	case delta > 100:
		glog.Infof("Experienced a %d ms communication delay (probable remote GC) with member %d; %d packets rescheduled, %s",
			delta, fc.member.Id(), fc.sequentialLostCount, fc.formatStats(false))
	case delta > 10:
		if glog.LOG_DEBUG {
			glog.Debugf("Experienced a %d ms communication delay (probable remote GC) with member %d; %d packets rescheduled, %s",
				delta, fc.member.Id(), fc.sequentialLostCount, fc.formatStats(false))
		}
	default:
		if glog.LOG_VERBOSE {
			glog.Verbosef("Experienced a %d ms communication delay (probable remote GC) with member %d; %d packets rescheduled, %s",
				delta, fc.member.Id(), fc.sequentialLostCount, fc.formatStats(false))
		}
	}
}

func (fc *FlowControl) SequentialConfirmedCount() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.sequentialConfirmedCount
}

func (fc *FlowControl) SequentialLostCount() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.sequentialLostCount
}

func (fc *FlowControl) step() int {
	return util.MaxInt(1, fc.outstandingPacketThreshold/fc.conf.AggressionFactor)
}

// OnConfirmed records the acknowledgement of a packet. A confirmation
// ends any pause; after SuccessGoal consecutive confirmations the
// threshold grows.
func (fc *FlowControl) OnConfirmed() {
	fc.mu.Lock()
	fc.sequentialConfirmedCount++
	fc.sequentialLostCount = 0
	changed := fc.setPaused(false)
	if fc.sequentialConfirmedCount >= fc.conf.SuccessGoal {
		if fc.IsAdjustable() {
			fc.setOutstandingPacketThreshold(fc.outstandingPacketThreshold + fc.step())
		}
		fc.sequentialConfirmedCount = 0
	}
	fc.mu.Unlock()
	if changed && fc.OnPause != nil {
		fc.OnPause(fc, false)
	}
}

// OnLost records a packet resend. The threshold shrinks and the member
// is paused once more than LostPacketThreshold packets in a row were lost.
func (fc *FlowControl) OnLost() {
	fc.mu.Lock()
	fc.sequentialLostCount++
	fc.sequentialConfirmedCount = 0
	if fc.IsAdjustable() {
		fc.setOutstandingPacketThreshold(fc.outstandingPacketThreshold - fc.step())
	}
	changed := false
	if fc.sequentialLostCount > fc.conf.LostPacketThreshold {
		changed = fc.setPaused(true)
	}
	fc.mu.Unlock()
	if changed && fc.OnPause != nil {
		fc.OnPause(fc, true)
	}
}

// IsSendable reports whether another packet may be put on the wire.
func (fc *FlowControl) IsSendable() bool {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return !fc.paused && fc.outstandingPacketCount < fc.outstandingPacketThreshold
}

// PendingPacketCount is the number of deferred plus outstanding packets.
func (fc *FlowControl) PendingPacketCount() int {
	n := fc.deferredQueue.Size()
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return n + fc.outstandingPacketCount
}

// StatsPausedMillis includes a pause still in progress.
func (fc *FlowControl) StatsPausedMillis() int64 {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.statsPaused()
}

func (fc *FlowControl) statsPaused() int64 {
	millis := fc.statsPausedMillis
	if fc.paused {
		millis += util.SafeTimeMillis() - fc.pauseStartMillis
	}
	return millis
}

func (fc *FlowControl) StatsPauseRate() float64 {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.pauseRate()
}

func (fc *FlowControl) pauseRate() float64 {
	paused := fc.statsPaused()
	if paused == 0 {
		return 0.0
	}
	elapsed := util.SafeTimeMillis() - fc.member.StatsReset()
	if elapsed <= 0 {
		return 1.0
	}
	return float64(paused) / float64(elapsed)
}

// PausePercentile returns the q-th percentile of completed pause
// durations in milliseconds.
func (fc *FlowControl) PausePercentile(q float64) int64 {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.pauseHistogram.ValueAtQuantile(q)
}

func (fc *FlowControl) ResetStats() {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.statsPausedMillis = 0
	fc.pauseHistogram.Reset()
}

func (fc *FlowControl) FormatStats(verbose bool) string {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.formatStats(verbose)
}

func (fc *FlowControl) formatStats(verbose bool) string {
	b := logging.NewKVBufferForLog()
	b.Add("PauseRate", formatRate(fc.pauseRate()))
	b.AddInt("Threshold", fc.outstandingPacketThreshold)
	if verbose {
		deferred := fc.deferredQueue.Size()
		b.AddBool("Paused", fc.paused)
		b.AddBool("Deferring", fc.deferredPacketCount > 0)
		b.AddInt("OutstandingPackets", fc.outstandingPacketCount)
		b.AddInt("DeferredPackets", deferred)
		b.AddInt("ReadyPackets", fc.deferredPacketCount-deferred)
		if n := fc.pauseHistogram.TotalCount(); n > 0 {
			b.Add("PauseMillisP99", strconv.FormatInt(fc.pauseHistogram.ValueAtQuantile(99), 10))
		}
	}
	return b.String()
}

func (fc *FlowControl) String() string {
	return "FlowControl(" + fc.FormatStats(true) + ")"
}
