// Copyright 2025 The FireSchema Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package fserrors provides support for getting error codes from
// errors returned by FireSchema runtime APIs.
package fserrors

import (
	"errors"

	"github.com/shtse8/fireschema-go-runtime/internal/fserr"
)

// An ErrorCode describes the error's category. Programs should act upon an
// error's code, not its message.
type ErrorCode = fserr.ErrorCode

const (
	// Returned by the Code function on a nil error. It is not a valid
	// code for an error.
	OK ErrorCode = fserr.OK

	// The error could not be categorized.
	Unknown ErrorCode = fserr.Unknown

	// The resource was not found.
	NotFound ErrorCode = fserr.NotFound

	// The resource exists, but it should not.
	AlreadyExists ErrorCode = fserr.AlreadyExists

	// A value given to a FireSchema API is incorrect.
	InvalidArgument ErrorCode = fserr.InvalidArgument

	// Something unexpected happened. Internal errors always indicate
	// bugs in the runtime (or possibly the backing store client).
	Internal ErrorCode = fserr.InternalError

	// The feature is not implemented.
	Unimplemented ErrorCode = fserr.Unimplemented

	// The system was in the wrong state: for example, committing an update
	// with no registered mutations.
	FailedPrecondition ErrorCode = fserr.FailedPrecondition

	// The caller does not have permission to execute the operation.
	PermissionDenied ErrorCode = fserr.PermissionDenied

	// Some resource has been exhausted, typically a store quota or a
	// protocol limit.
	ResourceExhausted ErrorCode = fserr.ResourceExhausted

	// A stored value's runtime type is incompatible with the record field's
	// declared type.
	Conversion ErrorCode = fserr.Conversion

	// The operation was canceled.
	Canceled ErrorCode = fserr.Canceled

	// The operation timed out.
	DeadlineExceeded ErrorCode = fserr.DeadlineExceeded
)

// Code returns the ErrorCode of err if it is or wraps an error from this
// runtime.
// It returns Unknown if err is a non-nil error of a different type.
// If err is nil, it returns the special code OK.
func Code(err error) ErrorCode {
	if err == nil {
		return OK
	}
	var e *fserr.Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Unknown
}
