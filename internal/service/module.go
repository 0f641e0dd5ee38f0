package service

import (
	"go.uber.org/fx"
)

var (
	Module = fx.Provide(
		NewSessions,
		NewLedger,
		NewUsers,
		NewAssets,
		NewCatalog,
		NewSweeper,
	)
)
