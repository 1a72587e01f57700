//go:build wireinject
// +build wireinject

package app

import (
	"github.com/google/wire"

	"mawneychat/pkg/config"
)

func InitializeComponents(cfg *config.Config) (*Components, func(), error) {
	wire.Build(ProviderSet)
	return nil, nil, nil
}
