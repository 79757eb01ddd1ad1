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

package fserr

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestNewf(t *testing.T) {
	under := errors.New("under")
	e := Newf(NotFound, under, "item %d", 3)
	if e.Code != NotFound {
		t.Errorf("got code %v, want NotFound", e.Code)
	}
	if !errors.Is(e, under) {
		t.Error("underlying error not preserved")
	}
	got := e.Error()
	for _, want := range []string{"item 3", "NotFound"} {
		if !strings.Contains(got, want) {
			t.Errorf("Error() = %q, missing %q", got, want)
		}
	}
}

func TestErrorNoMessage(t *testing.T) {
	e := New(InternalError, nil, "")
	if got, want := e.Error(), "code=Internal"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDoNotWrap(t *testing.T) {
	for _, test := range []struct {
		err  error
		want bool
	}{
		{io.EOF, true},
		{context.Canceled, true},
		{context.DeadlineExceeded, true},
		{errors.New("ordinary"), false},
		{New(NotFound, nil, "x"), false},
	} {
		if got := DoNotWrap(test.err); got != test.want {
			t.Errorf("DoNotWrap(%v) = %t, want %t", test.err, got, test.want)
		}
	}
}

func TestGRPCCode(t *testing.T) {
	for _, test := range []struct {
		in   error
		want ErrorCode
	}{
		{status.Error(codes.NotFound, "x"), NotFound},
		{status.Error(codes.AlreadyExists, "x"), AlreadyExists},
		{status.Error(codes.InvalidArgument, "x"), InvalidArgument},
		{status.Error(codes.Internal, "x"), InternalError},
		{status.Error(codes.FailedPrecondition, "x"), FailedPrecondition},
		{status.Error(codes.PermissionDenied, "x"), PermissionDenied},
		{status.Error(codes.ResourceExhausted, "x"), ResourceExhausted},
		{status.Error(codes.Canceled, "x"), Canceled},
		{status.Error(codes.DeadlineExceeded, "x"), DeadlineExceeded},
		{errors.New("not a grpc error"), Unknown},
	} {
		if got := GRPCCode(test.in); got != test.want {
			t.Errorf("GRPCCode(%v) = %v, want %v", test.in, got, test.want)
		}
	}
}
