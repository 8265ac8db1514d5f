package app

import (
	intrnl "socialwire/internal"
)

// RunClient starts the terminal client against the given server.
func RunClient(cfg ClientConfig) error {
	return intrnl.RunClient(cfg.ServerURL, cfg.Username)
}
