//go:build !linux

package fib

import (
	"context"
	"net/netip"

	"github.com/elauriault/ubgpd-sub000/internal/nlri"
)

// NetlinkReader is the non-Linux stand-in: this speaker's only supported
// route-reading facility is Linux rtnetlink, so off-Linux builds see an
// always-empty kernel table rather than failing to build.
type NetlinkReader struct{}

// NewNetlinkReader returns a Reader that reports no kernel routes.
func NewNetlinkReader() NetlinkReader { return NetlinkReader{} }

// Routes always returns an empty snapshot on non-Linux platforms.
func (NetlinkReader) Routes(context.Context, nlri.AF) ([]netip.Prefix, error) {
	return nil, nil
}
