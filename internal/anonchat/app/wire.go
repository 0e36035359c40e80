//go:build wireinject

package app

import (
	"context"
	"log/slog"

	"github.com/google/wire"

	acconfig "github.com/park285/anonchat-go/internal/anonchat/config"
	"github.com/park285/anonchat-go/internal/common/bootstrap"
)

//go:generate go run github.com/google/wire/cmd/wire@v0.7.0
func Initialize(
	ctx context.Context,
	cfg *acconfig.Config,
	logger *slog.Logger,
) (*bootstrap.ServerApp, func(), error) {
	wire.Build(
		anonchatProviderSet,
	)
	return nil, nil, nil
}
