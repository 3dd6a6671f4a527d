package logger

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

type Sugared = *zap.SugaredLogger

// New builds the console logger. Menus own stdout, so logs go to path
// ("-" means stderr, "" means m365prov.log in the user config dir).
func New(env, path string) Sugared {
	var cfg zap.Config
	if env == "prod" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	out := resolvePath(path)
	cfg.OutputPaths = []string{out}
	cfg.ErrorOutputPaths = []string{out}
	z, err := cfg.Build()
	if err != nil {
		z, _ = zap.NewDevelopment()
	}
	return z.Sugar()
}

// Nop is used by tests and by callers that do not care.
func Nop() Sugared { return zap.NewNop().Sugar() }

func resolvePath(path string) string {
	switch path {
	case "-":
		return "stderr"
	case "":
		dir, err := os.UserConfigDir()
		if err != nil {
			return "stderr"
		}
		dir = filepath.Join(dir, "m365prov")
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return "stderr"
		}
		return filepath.Join(dir, "m365prov.log")
	default:
		return path
	}
}
