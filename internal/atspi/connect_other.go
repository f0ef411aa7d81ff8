//go:build !linux

package atspi

import "log/slog"

// Connect returns ErrUnsupported outside Linux.
func Connect(cfg Config, logger *slog.Logger) (*Host, error) {
	return nil, ErrUnsupported
}
