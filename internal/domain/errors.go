// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"errors"
	"fmt"
)

var ErrBucketNotConfigured = errors.New("BUCKET_NAME environment variable not set")

// ConfigurationError is a deployment problem. Redelivery will not fix it.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return "configuration: " + e.Err.Error()
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

type DecodeStage string

const (
	DecodeStageBase64 DecodeStage = "base64"
	DecodeStageUTF8   DecodeStage = "utf8"
)

// DecodeError reports a payload that is not base64-encoded UTF-8 text.
type DecodeError struct {
	Stage DecodeStage
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s payload: %v", e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

var ErrInvalidUTF8 = errors.New("payload is not valid utf-8")

// StorageError wraps whatever the blob sink returned.
type StorageError struct {
	Bucket string
	Object string
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("upload %s/%s: %v", e.Bucket, e.Object, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// EnvelopeError reports a transport body that could not be parsed as an envelope.
type EnvelopeError struct {
	Err error
}

func (e *EnvelopeError) Error() string {
	return "invalid envelope: " + e.Err.Error()
}

func (e *EnvelopeError) Unwrap() error { return e.Err }
