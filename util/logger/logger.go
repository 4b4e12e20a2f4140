package logger

import (
	"os"

	logger "github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var L = &logger.Logger{
	Out:   os.Stderr,
	Level: logger.InfoLevel,
	Formatter: &prefixed.TextFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
		FullTimestamp:   true,
		ForceFormatting: true,
	},
}

// SetLevel reconfigures the process logger. Unknown names are ignored.
func SetLevel(name string) {
	if lvl, err := logger.ParseLevel(name); err == nil {
		L.SetLevel(lvl)
	}
}
