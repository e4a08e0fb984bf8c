package logger

import "go.uber.org/fx"

// Module routes Fx container events through the leveled logger.
var Module = fx.Options(
	fx.WithLogger(NewFxLoggerAdapter),
)
