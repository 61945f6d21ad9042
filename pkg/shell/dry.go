package shell

import (
	"context"
	"fmt"
	"io"
)

// DryRunner prints mutating invocations instead of running them. ReadOnly invocations are
// passed to Next so that probes still report real results.
type DryRunner struct {
	Next Runner
	Out  io.Writer
}

var _ Runner = (*DryRunner)(nil)

func (r *DryRunner) Run(ctx context.Context, inv Invocation) error {
	if inv.ReadOnly && r.Next != nil {
		return r.Next.Run(ctx, inv)
	}

	_, err := fmt.Fprintf(r.Out, "+ %s\n", Format(inv.Args))
	return err
}
