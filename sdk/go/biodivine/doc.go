// Copyright (C) The Biodivine Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package biodivine holds the model types shared by the launcher
// components: experiment configuration, validated tasks and their
// communication topologies, rank assignments, and the outcomes
// reported by supervised worker processes.
package biodivine
