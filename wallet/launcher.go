package wallet

import "context"

// Launcher opens URIs in other apps. It is the only platform dependency of
// an Adapter; mobile hosts implement it with their URL opener.
type Launcher interface {
	CanOpen(ctx context.Context, uri string) bool
	Open(ctx context.Context, uri string) error
}
