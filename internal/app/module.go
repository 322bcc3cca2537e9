package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/fatflowers/paycoord/internal/app/api/server"
	"github.com/fatflowers/paycoord/internal/app/service/checkout"
	"github.com/fatflowers/paycoord/internal/app/service/eventlog"
	"github.com/fatflowers/paycoord/internal/platform/db"
	"github.com/fatflowers/paycoord/pkg/config"
	"github.com/fatflowers/paycoord/pkg/logger"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	eventlog.Module,
	checkout.Module,
	server.Module,
)
