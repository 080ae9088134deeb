package usecase

import "github.com/m-mizutani/goerr/v2"

// Sentinel errors for use case layer
var (
	// Construction errors
	ErrMissingDependency = goerr.New("brain dependency is missing")
)

// Context keys for error values
const (
	AgentIDKey = "agent_id"
	BoxDirKey  = "box_dir"
)
