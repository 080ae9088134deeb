package model

import "github.com/m-mizutani/goerr/v2"

var (
	ErrInvalidMemoryID   = goerr.New("invalid memory id")
	ErrInvalidMemoryKind = goerr.New("invalid memory kind")
	ErrInvalidReference  = goerr.New("invalid memory reference")
	ErrEmptyContent      = goerr.New("empty memory content")
	ErrUnknownLocation   = goerr.New("unknown location")
	ErrInvalidIdentity   = goerr.New("invalid identity")
)
