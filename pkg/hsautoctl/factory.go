package hsautoctl

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/hsauto/hsauto/pkg/config"
	hslog "github.com/hsauto/hsauto/pkg/log"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

const (
	outputFormatTable = "table"
	outputFormatYaml  = "yaml"
	outputFormatJSON  = "json"

	logFileName = "hsauto.log"
)

type factory struct {
	outputFormat string
	logLevel     string
	logDir       string
	noColor      bool

	loadConfig func() (*config.Config, error)
}

// Factory to be used for command line
type Factory interface {
	// BindFlags Binds command flags to the command
	BindFlags(flags *pflag.FlagSet)
	// GetConfig loads the HSAUTO_* configuration with flag overrides applied
	GetConfig() (*config.Config, error)
	// GetLogger returns a logger set up from the configuration writing to out
	GetLogger(cfg *config.Config, out io.Writer) *logrus.Logger
	// GetOutputFormat Get the output format
	GetOutputFormat() (string, error)
}

// NewFactory Return a new factory interface that can be used by commands
func NewFactory() Factory {
	return &factory{loadConfig: config.Load}
}

func (f *factory) BindFlags(flags *pflag.FlagSet) {
	flags.StringVarP(&f.outputFormat, "output", "o", outputFormatTable, "Output format. One of: table|json|yaml")
	flags.StringVar(&f.logLevel, "log-level", "", "Log level, overrides HSAUTO_LOG_LEVEL")
	flags.StringVar(&f.logDir, "log-dir", "", "Directory for the rotating log file, overrides HSAUTO_LOG_DIR")
	flags.BoolVar(&f.noColor, "no-color", false, "Disable colored log output")
}

func (f *factory) GetConfig() (*config.Config, error) {
	cfg, err := f.loadConfig()
	if err != nil {
		return nil, err
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if f.logDir != "" {
		cfg.LogDir = f.logDir
	}
	return cfg, nil
}

func (f *factory) GetLogger(cfg *config.Config, out io.Writer) *logrus.Logger {
	l := hslog.New()
	l.SetOutput(out)
	hslog.SetLoglevel(l, cfg.LogLevel)
	if cfg.LogDir != "" {
		hslog.SetFileOutput(l, hslog.NewFileLogger(filepath.Join(cfg.LogDir, logFileName)))
	} else if !f.noColor {
		hslog.EnableColor(l)
	}
	return l
}

func (f *factory) GetOutputFormat() (string, error) {
	switch f.outputFormat {
	case outputFormatTable, outputFormatYaml, outputFormatJSON:
		return f.outputFormat, nil
	default:
		return "", fmt.Errorf("unsupported output type %s", f.outputFormat)
	}
}
