package domain

import "errors"

var (
	ErrCredentialUnavailable = errors.New("credential unavailable")
	ErrRefreshFailed         = errors.New("credential refresh failed")
	ErrConnectNotPermitted   = errors.New("connect not permitted without an active session")
	ErrMalformedMessage      = errors.New("malformed realtime message")
	ErrWaitTimeout           = errors.New("timed out waiting for credential field")
	ErrSecretNotFound        = errors.New("secret not found")
)
