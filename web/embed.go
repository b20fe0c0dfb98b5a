// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package web embeds the HTML page templates.
package web

import "embed"

//go:embed all:templates
var Templates embed.FS
