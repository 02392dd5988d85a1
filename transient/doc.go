// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package transient classifies transport failures met while executing
// a scheduled request as transient or non-transient. The scheduler
// uses the classification when logging silent retries and reporting
// metrics, and retry deciders use it to restrict retries to failures
// with a prospect of success.
//
// Package transient depends only on the standard library.
package transient
