// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorKindsSurviveWrapping(t *testing.T) {
	sinkErr := errors.New("bucket unavailable")

	cases := []struct {
		name  string
		err   error
		match func(error) bool
	}{
		{
			name: "configuration",
			err:  &ConfigurationError{Err: ErrBucketNotConfigured},
			match: func(err error) bool {
				var target *ConfigurationError
				return errors.As(err, &target) && errors.Is(err, ErrBucketNotConfigured)
			},
		},
		{
			name: "decode",
			err:  &DecodeError{Stage: DecodeStageUTF8, Err: ErrInvalidUTF8},
			match: func(err error) bool {
				var target *DecodeError
				return errors.As(err, &target) && target.Stage == DecodeStageUTF8
			},
		},
		{
			name: "storage",
			err:  &StorageError{Bucket: "b", Object: "o", Err: sinkErr},
			match: func(err error) bool {
				var target *StorageError
				return errors.As(err, &target) && errors.Is(err, sinkErr)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := fmt.Errorf("process: %w", tc.err)
			if !tc.match(wrapped) {
				t.Fatalf("expected %T to be recognised through wrapping", tc.err)
			}
		})
	}
}

func TestStorageErrorMessage(t *testing.T) {
	err := &StorageError{Bucket: "my-bucket", Object: "message_x.json", Err: errors.New("boom")}
	if got := err.Error(); got != "upload my-bucket/message_x.json: boom" {
		t.Fatalf("unexpected message %q", got)
	}
}
