package main

import (
	"errors"

	gserrors "github.com/odvcencio/gensession/pkg/errors"
)

const (
	exitFailure   = 1
	exitUsage     = 2
	exitConfig    = 3
	exitBackend   = 4
	exitCancelled = 130
)

type exitCoder interface {
	ExitCode() int
}

type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e exitError) Unwrap() error {
	return e.err
}

func (e exitError) ExitCode() int {
	if e.code == 0 {
		return exitFailure
	}
	return e.code
}

func withExitCode(err error, code int) error {
	if err == nil {
		return nil
	}
	return exitError{code: code, err: err}
}

// exitCodeForError prefers an explicit exit code, then maps coded errors.
func exitCodeForError(err error) int {
	if err == nil {
		return 0
	}
	var coded exitCoder
	if errors.As(err, &coded) {
		return coded.ExitCode()
	}
	switch gserrors.GetCode(err) {
	case gserrors.ErrCodeCancelled:
		return exitCancelled
	case gserrors.ErrCodeConfigLoad, gserrors.ErrCodeConfigInvalid:
		return exitConfig
	case gserrors.ErrCodeInvalidInput:
		return exitUsage
	case gserrors.ErrCodeBackendAPI, gserrors.ErrCodeBackendTimeout, gserrors.ErrCodeConversationSetup, gserrors.ErrCodeUpload:
		return exitBackend
	}
	return exitFailure
}
