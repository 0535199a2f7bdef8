// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command cbctl is the operator CLI for a running clusterbuddy server.
//
// # Usage
//
//	cbctl triage "why is web-0 crashlooping in prod"
//	cbctl ask "list the pods in prod" --json
//	cbctl act "scale the api deployment to 5 replicas" --allow-update
//	cbctl session list
//	cbctl health
//
// The server address comes from --server, the CLUSTERBUDDY_SERVER
// environment variable, or defaults to http://localhost:8080.
package main

import "os"

// cliVersion is overridden at build time:
//
//	go build -ldflags "-X main.cliVersion=v0.3.0" ./cmd/cbctl
var cliVersion = "dev"

func main() {
	rootCmd.Version = cliVersion
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
