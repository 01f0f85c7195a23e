package zapLogger

import (
	"os"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	once sync.Once
	Log  = zap.NewNop().Sugar()
)

// Init initializes the global zap logger writing to stdout and path, and
// returns the opened log file handle. An empty path logs to stdout only.
func Init(path string) (*os.File, error) {
	var (
		logFile *os.File
		err     error
	)
	once.Do(func() {
		writers := []zapcore.WriteSyncer{zapcore.AddSync(os.Stdout)}
		if path != "" {
			logFile, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				return
			}
			writers = append(writers, zapcore.AddSync(logFile))
		}

		encoderCfg := zap.NewProductionEncoderConfig()
		encoderCfg.TimeKey = "timestamp"
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

		core := zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderCfg),
			zapcore.NewMultiWriteSyncer(writers...),
			zap.InfoLevel,
		)

		Log = zap.New(core, zap.AddCaller()).Sugar()
	})
	return logFile, err
}

// Named returns a child of the global logger tagged with a component name.
func Named(component string) *zap.SugaredLogger {
	return Log.Named(component)
}

// FiberLoggingMiddleware logs one line per request through log. Errors from
// the chain are passed to the app error handler first so the logged status
// is the one sent to the client.
func FiberLoggingMiddleware(log *zap.SugaredLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		chainErr := c.Next()
		if chainErr != nil {
			if err := c.App().ErrorHandler(c, chainErr); err != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		status := c.Response().StatusCode()
		// fiber strings point into the request buffer, which is reused
		fields := []interface{}{
			"method", utils.CopyString(c.Method()),
			"path", utils.CopyString(c.Path()),
			"status", status,
			"latency", time.Since(start),
			"ip", utils.CopyString(c.IP()),
		}
		if status >= fiber.StatusInternalServerError {
			log.Errorw("request", append(fields, "error", chainErr)...)
		} else {
			log.Infow("request", fields...)
		}
		return nil
	}
}
