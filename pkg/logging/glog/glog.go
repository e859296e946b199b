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

// Package glog keeps the leveled, printf-style logging surface the rest of
// the code base calls into (Infof, Debugf, LOG_DEBUG, ...), backed by a zap
// sugared logger writing to stderr.
package glog

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Verbose reports whether a level is enabled; check it before building
// an expensive message.
type Verbose bool

// default is LOG_INFO
var (
	LOG_ERROR   Verbose = true
	LOG_WARN    Verbose = true
	LOG_INFO    Verbose = true
	LOG_DEBUG   Verbose = false
	LOG_VERBOSE Verbose = false

	mu      sync.RWMutex
	level   = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	logger  *zap.SugaredLogger
	appName string
)

func init() {
	logger = newLogger(newStderrCore(), "")
}

func newStderrCore() zapcore.Core {
	ecfg := zap.NewProductionEncoderConfig()
	ecfg.EncodeTime = zapcore.ISO8601TimeEncoder
	ecfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewCore(zapcore.NewConsoleEncoder(ecfg), zapcore.Lock(os.Stderr), level)
}

func newLogger(core zapcore.Core, name string) *zap.SugaredLogger {
	l := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	if name != "" {
		l = l.With(zap.String("app", name))
	}
	return l.Sugar()
}

// Initialize lets the logger be registered with initmgr. It expects a log
// level and an application name.
func Initialize(args ...interface{}) (err error) {
	if len(args) < 2 {
		err = fmt.Errorf("two arguments expected")
		return
	}
	var lvl, name string
	var ok bool
	if lvl, ok = args[0].(string); !ok {
		err = fmt.Errorf("a string log level expected")
		return
	}
	if name, ok = args[1].(string); !ok {
		err = fmt.Errorf("a string appname expected")
		return
	}
	InitLogging(lvl, name)
	return
}

func Finalize() {
	mu.RLock()
	defer mu.RUnlock()
	logger.Sync()
}

func InitLogging(lvl string, name string) {
	mu.Lock()
	appName = name
	logger = newLogger(newStderrCore(), name)
	mu.Unlock()
	SetLevel(lvl)
}

// SetLevel accepts error, warning, info, debug or verbose. Anything else
// is treated as info.
func SetLevel(lvl string) {
	LOG_ERROR, LOG_WARN, LOG_INFO, LOG_DEBUG, LOG_VERBOSE = true, true, true, true, true
	switch {
	case strings.EqualFold("error", lvl):
		LOG_WARN, LOG_INFO, LOG_DEBUG, LOG_VERBOSE = false, false, false, false
		level.SetLevel(zapcore.ErrorLevel)
	case strings.EqualFold("warning", lvl):
		LOG_INFO, LOG_DEBUG, LOG_VERBOSE = false, false, false
		level.SetLevel(zapcore.WarnLevel)
	case strings.EqualFold("debug", lvl):
		LOG_VERBOSE = false
		level.SetLevel(zapcore.DebugLevel)
	case strings.EqualFold("verbose", lvl):
		level.SetLevel(zapcore.DebugLevel)
	default:
		LOG_DEBUG, LOG_VERBOSE = false, false
		level.SetLevel(zapcore.InfoLevel)
	}
}

// ReplaceCore routes all output to core until the returned func is
// called. Tests use it with zaptest/observer.
func ReplaceCore(core zapcore.Core) (restore func()) {
	mu.Lock()
	prev := logger
	logger = newLogger(core, appName)
	mu.Unlock()
	return func() {
		mu.Lock()
		logger = prev
		mu.Unlock()
	}
}

func sugar() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func Info(args ...interface{}) {
	if LOG_INFO {
		sugar().Info(args...)
	}
}

func Infof(format string, args ...interface{}) {
	if LOG_INFO {
		sugar().Infof(format, args...)
	}
}

func Warning(args ...interface{}) {
	if LOG_WARN {
		sugar().Warn(args...)
	}
}

func Warningf(format string, args ...interface{}) {
	if LOG_WARN {
		sugar().Warnf(format, args...)
	}
}

func Error(args ...interface{}) {
	if LOG_ERROR {
		sugar().Error(args...)
	}
}

func Errorf(format string, args ...interface{}) {
	if LOG_ERROR {
		sugar().Errorf(format, args...)
	}
}

func Debug(args ...interface{}) {
	if LOG_DEBUG {
		sugar().Debug(args...)
	}
}

func Debugf(format string, args ...interface{}) {
	if LOG_DEBUG {
		sugar().Debugf(format, args...)
	}
}

func Verbosef(format string, args ...interface{}) {
	if LOG_VERBOSE {
		sugar().Debugw(fmt.Sprintf(format, args...), "v", 5)
	}
}

// Exitf logs at error level, flushes and exits with status 1.
func Exitf(format string, args ...interface{}) {
	l := sugar()
	l.Errorf(format, args...)
	l.Sync()
	os.Exit(1)
}

func Exit(args ...interface{}) {
	l := sugar()
	l.Error(args...)
	l.Sync()
	os.Exit(1)
}
