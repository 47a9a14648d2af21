// SPDX-FileCopyrightText: 2026 The agentbridge-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package transform wraps the developer-supplied message transformation in a
// uniform contract: a bounded execution budget and failure isolation. A
// transformation is any Func; panics, errors and overruns of the budget all
// surface as a failed Result, never as a process fault. The package holds no
// bridge state, the caller decides what a failed Result means.
package transform
