package log

import (
	"io"
	"log"
	"os"
	"strings"

	"github.com/fatih/color"
)

var (
	Info  *log.Logger
	Warn  *log.Logger
	Error *log.Logger
)

func init() {
	Info = log.New(os.Stdout,
		color.GreenString("[INFO] "),
		log.Ldate|log.Ltime|log.Lshortfile)
	Warn = log.New(os.Stdout,
		color.YellowString("[WARN] "),
		log.Ldate|log.Ltime|log.Lshortfile)

	Error = log.New(os.Stderr,
		color.RedString("[ERROR] "),
		log.Ldate|log.Ltime|log.Lshortfile)
}

// Configure applies the level (debug, info, warn, error) and output path
// (stdout, stderr or a file). Loggers below the level are discarded.
func Configure(level, output string) error {
	var out io.Writer = os.Stdout
	switch output {
	case "", "stdout":
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		out = f
		Info.SetPrefix("[INFO] ")
		Warn.SetPrefix("[WARN] ")
	}

	Info.SetOutput(out)
	Warn.SetOutput(out)

	switch strings.ToLower(level) {
	case "warn":
		Info.SetOutput(io.Discard)
	case "error":
		Info.SetOutput(io.Discard)
		Warn.SetOutput(io.Discard)
	}
	return nil
}
