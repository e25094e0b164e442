package approve

import "context"

// Context is the execution context for Approve operations. It is an alias
// for context.Context; tenant scope is injected via the scope package on
// the stdlib context.
type Context = context.Context
