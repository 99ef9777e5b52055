package log

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type colorizer func(...interface{}) string

var (
	green  colorizer = color.New(color.FgGreen).SprintFunc()
	yellow colorizer = color.New(color.FgYellow).SprintFunc()
	red    colorizer = color.New(color.FgRed).SprintFunc()
)

// Hook color codes console output by level and message content.
type Hook struct{}

// NewHook returns a color formatting hook.
func NewHook() *Hook {
	return &Hook{}
}

func successMessage(msg string) bool {
	successStrings := []string{
		"pass",
		"matched",
		"successfully",
	}

	for _, s := range successStrings {
		if strings.Contains(strings.ToLower(msg), s) {
			return true
		}
	}

	return false
}

func errorMessage(msg string) bool {
	errorStrings := []string{
		"failed",
		"error",
		"exhausted",
	}

	for _, s := range errorStrings {
		if strings.Contains(strings.ToLower(msg), s) {
			return true
		}
	}

	return false
}

// Fire color codes the output.
func (hook *Hook) Fire(entry *logrus.Entry) error {
	if entry.Level < logrus.WarnLevel {
		entry.Message = red(entry.Message)
	} else if entry.Level == logrus.WarnLevel {
		entry.Message = yellow(entry.Message)
	} else {
		if successMessage(entry.Message) {
			entry.Message = green(entry.Message)
		} else if errorMessage(entry.Message) {
			entry.Message = red(entry.Message)
		}
	}

	return nil
}

// Levels returns the various logrus levels this hooks into.
func (hook *Hook) Levels() []logrus.Level {
	return []logrus.Level{
		logrus.DebugLevel,
		logrus.InfoLevel,
		logrus.WarnLevel,
		logrus.ErrorLevel,
		logrus.FatalLevel,
	}
}

// New returns a logger writing to stdout. Callers own the returned instance and
// pass it to whatever needs to log.
func New() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&Formatter{})
	l.ReportCaller = true
	l.Out = os.Stdout
	return l
}

// EnableColor adds the color hook. Do not use it when the logger also writes
// to a file.
func EnableColor(l *logrus.Logger) {
	l.AddHook(NewHook())
}

// SetLoglevel sets the level by name, defaulting to debug
func SetLoglevel(l *logrus.Logger, logLevel string) {
	switch logLevel {
	case "debug":
		l.SetLevel(logrus.DebugLevel)
	case "info":
		l.SetLevel(logrus.InfoLevel)
	case "error":
		l.SetLevel(logrus.ErrorLevel)
	case "warn":
		l.SetLevel(logrus.WarnLevel)
	case "trace":
		l.SetLevel(logrus.TraceLevel)
	default:
		l.SetLevel(logrus.DebugLevel)
	}
}

// NewFileLogger returns a rotating log file at path.
func NewFileLogger(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 10,
		MaxAge:     30, //days
		Compress:   true,
		LocalTime:  true,
	}
}

// SetFileOutput adds output destination for logging
func SetFileOutput(l *logrus.Logger, file *lumberjack.Logger) {
	if file != nil {
		l.Out = io.MultiWriter(l.Out, file)
		l.Infof("Log file: %s", file.Filename)
	}
}

// Formatter writes one line per entry: time, level, sorted fields, caller, message.
type Formatter struct{}

// Format implements logrus.Formatter
func (f *Formatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b *bytes.Buffer
	if entry.Buffer != nil {
		b = entry.Buffer
	} else {
		b = &bytes.Buffer{}
	}

	fmt.Fprintf(b, "%s:[%s]", entry.Time.Format("2006-01-02 15:04:05 -0700"),
		strings.ToUpper(entry.Level.String()))

	if len(entry.Data) > 0 {
		keys := make([]string, 0, len(entry.Data))
		for k := range entry.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, fmt.Sprintf("%s=%v", k, entry.Data[k]))
		}
		fmt.Fprintf(b, " [%s]", strings.Join(pairs, " "))
	}

	if entry.HasCaller() {
		funcList := strings.Split(entry.Caller.Function, "/")
		funcName := funcList[len(funcList)-1]
		fmt.Fprintf(b, " [%s:#%d]", funcName, entry.Caller.Line)
	}

	fmt.Fprintf(b, " %s\n", entry.Message)
	return b.Bytes(), nil
}
