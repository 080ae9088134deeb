package interfaces

import "github.com/m-mizutani/goerr/v2"

var (
	ErrMemoryNotFound = goerr.New("memory not found")
	ErrPersistence    = goerr.New("persistence failure")
)
