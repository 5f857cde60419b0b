// Copyright 2026 The ListDB Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"syscall"

	"github.com/cubefs/cubefs/blobstore/common/config"
	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/cubefs/blobstore/util/errors"
	"github.com/cubefs/cubefs/blobstore/util/log"
	_ "github.com/cubefs/cubefs/blobstore/util/version"
	"github.com/listdb/listdb/db"
)

// Config service config
type Config struct {
	db.Config

	RulesFile string    `json:"rules_file"`
	Query     string    `json:"query"`
	LogLevel  log.Level `json:"log_level"`
}

func main() {
	config.Init("f", "", "listdb.json")

	cfg := &Config{}
	if err := config.Load(cfg); err != nil {
		log.Fatal(errors.Detail(err))
	}
	log.SetOutputLevel(cfg.LogLevel)
	modifyOpenFiles()

	span, ctx := trace.StartSpanFromContext(context.Background(), "listdb")

	instance, err := db.Open(ctx, &cfg.Config)
	if err != nil {
		log.Fatalf("open database failed: %s", errors.Detail(err))
	}
	defer instance.Close()

	if cfg.RulesFile != "" {
		rules, err := os.ReadFile(cfg.RulesFile)
		if err != nil {
			log.Fatalf("read rules file failed: %s", err)
		}
		if err := instance.LoadRules(string(rules)); err != nil {
			log.Fatalf("load rules failed: %s", errors.Detail(err))
		}
		span.Infof("rules loaded from %s", cfg.RulesFile)
	}

	if cfg.Query != "" {
		res, err := instance.Query(ctx, cfg.Query)
		if err != nil {
			log.Fatalf("query failed: %s", errors.Detail(err))
		}
		span.Infof("query evaluated in %s, %d rows", res.Duration, len(res.Bindings))
		printJSON(res.Bindings)
		return
	}

	stats, err := instance.Stats(ctx)
	if err != nil {
		log.Fatalf("collect stats failed: %s", errors.Detail(err))
	}
	printJSON(stats)
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("marshal output failed: %s", err)
	}
	fmt.Println(string(data))
}

func modifyOpenFiles() {
	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		log.Fatalf("getting rlimit failed: %s", err)
	}
	if rLimit.Cur >= 102400 && rLimit.Max >= 102400 {
		return
	}

	rLimit.Cur = 1024000
	rLimit.Max = 1024000
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		log.Warnf("setting rlimit failed: %s", err)
	}
}
