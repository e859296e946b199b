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


// Package insp holds the commands that inspect the wire forms of the
// protocol.
package insp

import (
	"github.com/oracle/coherence-sub033/pkg/cmd"
)

func init() {
	decode := &cmdDecodeT{}
	decode.Init("decode", "print the packets of a hex datagram")

	mset := &cmdMemberSetT{}
	mset.Init("mset", "encode member ids to a hex member set, or decode one")

	trint := &cmdTrintT{}
	trint.Init("trint", "truncate values to trints or translate trints back")

	cmd.RegisterNewGroup("insp", decode, mset, trint)
}
