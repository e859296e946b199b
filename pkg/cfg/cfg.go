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

// package cfg implements functionalites for configuration
package cfg

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/oracle/coherence-sub033/pkg/logging/glog"
)

type (
	// Properties is a case-insensitive tree of TOML key/values addressed by
	// dot-delimited keys. It lets command line overrides be merged into a
	// file before the result is decoded into a typed struct.
	//
	// Note: It is not goroutine safe.
	Properties struct {
		kvMap map[string]keyValue
	}
	keyValue struct {
		key   string
		value interface{}
	}
)

// ReadFrom reads properties from i, which points to a struct or a map.
func (p *Properties) ReadFrom(i interface{}) (err error) {
	var buf bytes.Buffer
	if i != nil {
		if err = toml.NewEncoder(&buf).Encode(i); err != nil {
			return
		}
	}
	return p.ReadFromToml(&buf)
}

// ReadFromToml reads properties in TOML format.
func (p *Properties) ReadFromToml(r io.Reader) (err error) {
	m := make(map[string]interface{})
	if _, err = toml.NewDecoder(r).Decode(&m); err == nil {
		p.setFrom(m)
	}
	return
}

func (p *Properties) ReadFromTomlBytes(b []byte) error {
	return p.ReadFromToml(bytes.NewReader(b))
}

func (p *Properties) ReadFromTomlFile(file string) (err error) {
	m := make(map[string]interface{})
	if _, err = toml.DecodeFile(file, &m); err == nil {
		p.setFrom(m)
	}
	return
}

// WriteToToml writes the properties in TOML format.
func (p *Properties) WriteToToml(w io.Writer) error {
	m := make(map[string]interface{})
	setMap(m, p.kvMap)
	return toml.NewEncoder(w).Encode(m)
}

// WriteTo decodes the properties into a struct or map.
func (p *Properties) WriteTo(v interface{}) (err error) {
	var buf bytes.Buffer
	if err = p.WriteToToml(&buf); err != nil {
		return
	}
	_, err = toml.Decode(buf.String(), v)
	return
}

// WriteToKVList writes one "a.b.c=value" line per leaf, sorted by key.
func (p *Properties) WriteToKVList(w io.Writer) {
	var lines []string
	for _, v := range p.kvMap {
		collectKeyValue(&lines, v.key, &v)
	}
	sort.Strings(lines)
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
}

// GetValue returns the value of the given dot-delimited key, or nil.
func (p *Properties) GetValue(dotDelimitedKey string) interface{} {
	return getValueFromMap(p.kvMap, strings.Split(dotDelimitedKey, "."))
}

// SetKeyValue sets the value of a given dot-delimited key, creating
// intermediate tables as needed.
func (p *Properties) SetKeyValue(dotDelimitedKey string, v interface{}) {
	strs := strings.Split(dotDelimitedKey, ".")
	if len(strs) == 0 || strs[0] == "" {
		return
	}
	if p.kvMap == nil {
		p.kvMap = make(map[string]keyValue)
	}
	cm := p.kvMap
	for len(strs) > 1 {
		key := strings.ToLower(strs[0])
		kv, found := cm[key]
		nmap, isMap := kv.value.(map[string]keyValue)
		if !found || !isMap {
			nmap = make(map[string]keyValue)
			cm[key] = keyValue{strs[0], nmap}
		}
		cm = nmap
		strs = strs[1:]
	}
	cm[strings.ToLower(strs[0])] = keyValue{strs[0], v}
}

// Merge copies overrides on top of p. Keys compare case-insensitively.
func (p *Properties) Merge(overrides *Properties) error {
	if p.kvMap == nil {
		p.kvMap = make(map[string]keyValue)
	}
	return merge(p.kvMap, overrides.kvMap)
}

func collectKeyValue(lines *[]string, k string, v *keyValue) {
	if vm, ok := v.value.(map[string]keyValue); ok {
		for _, sv := range vm {
			collectKeyValue(lines, k+"."+sv.key, &sv)
		}
	} else {
		*lines = append(*lines, fmt.Sprintf("%s=%v", k, v.value))
	}
}

func (p *Properties) setFrom(m map[string]interface{}) {
	p.kvMap = make(map[string]keyValue)
	setKvMap(p.kvMap, m)
}

func merge(to, from map[string]keyValue) error {
	for k, v := range from {
		vm, vIsMap := v.value.(map[string]keyValue)
		toV, found := to[k]
		if !found {
			if vIsMap {
				nmap := make(map[string]keyValue)
				to[k] = keyValue{v.key, nmap}
				merge(nmap, vm)
			} else {
				to[k] = v
			}
			continue
		}
		toMap, toIsMap := toV.value.(map[string]keyValue)
		switch {
		case toIsMap && vIsMap:
			if err := merge(toMap, vm); err != nil {
				return err
			}
		case toIsMap != vIsMap:
			return fmt.Errorf("type mismatch for key %s", v.key)
		default:
			to[k] = v
		}
	}
	return nil
}

func getValueFromMap(imap map[string]keyValue, keys []string) interface{} {
	if len(keys) == 0 {
		return nil
	}
	v, ok := imap[strings.ToLower(keys[0])]
	if !ok {
		return nil
	}
	vm, isMap := v.value.(map[string]keyValue)
	if len(keys) == 1 {
		if isMap {
			nmap := make(map[string]interface{})
			setMap(nmap, vm)
			return nmap
		}
		return v.value
	}
	if isMap {
		return getValueFromMap(vm, keys[1:])
	}
	return nil
}

func setKvMap(to map[string]keyValue, from map[string]interface{}) {
	for k, v := range from {
		lkey := strings.ToLower(k)
		if _, found := to[lkey]; found {
			glog.Warningf("key: %s found, skip", k)
			continue
		}
		if vm, ok := v.(map[string]interface{}); ok {
			kvmap := make(map[string]keyValue)
			to[lkey] = keyValue{key: k, value: kvmap}
			setKvMap(kvmap, vm)
		} else {
			to[lkey] = keyValue{k, v}
		}
	}
}

func setMap(to map[string]interface{}, from map[string]keyValue) {
	for _, v := range from {
		if _, found := to[v.key]; found {
			glog.Warningf("key: %s found, skip", v.key)
			continue
		}
		if vm, ok := v.value.(map[string]keyValue); ok {
			nmap := make(map[string]interface{})
			to[v.key] = nmap
			setMap(nmap, vm)
		} else {
			to[v.key] = v.value
		}
	}
}
