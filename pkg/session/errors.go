package session

import (
	gserrors "github.com/odvcencio/gensession/pkg/errors"
)

// Initialization-order errors. These are caller contract violations and are
// never retried.
var (
	ErrConversationNotFound  = gserrors.New(gserrors.ErrCodeConversationNotFound, "conversation id has not been set")
	ErrStateUninitialized    = gserrors.New(gserrors.ErrCodeUninitialized, "session state has not been initialized")
	ErrUploadIDUninitialized = gserrors.New(gserrors.ErrCodeUploadUninitialized, "upload id has not been initialized")
	ErrSessionBusy           = gserrors.New(gserrors.ErrCodeSessionBusy, "session is already processing a message")
	errInteractionCancelled  = gserrors.New(gserrors.ErrCodeCancelled, "interaction cancelled")
)
