package rpc

import (
	"go.uber.org/fx"
)

var (
	Module = fx.Provide(
		NewHealthServer,
	)
)
