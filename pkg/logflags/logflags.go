package logflags

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

var walker = false
var dispatch = false
var tagged = false
var core = false
var dwarf = false
var script = false
var terminal = false

var logOut io.WriteCloser

func makeLogger(level logrus.Level, fields Fields) Logger {
	if lf := loggerFactory; lf != nil {
		return lf(level, fields, logOut)
	}
	logger := logrus.New().WithFields(logrus.Fields(fields))
	logger.Logger.Formatter = textFormatterInstance
	if logOut != nil {
		logger.Logger.Out = logOut
	}
	logger.Logger.Level = level
	return &logrusLogger{logger}
}

func makeFlaggableLogger(flag bool, fields Fields) Logger {
	if !flag {
		return makeLogger(logrus.ErrorLevel, fields)
	}
	return makeLogger(logrus.DebugLevel, fields)
}

// Walker returns true if the tree walker should log every visited node.
func Walker() bool {
	return walker
}

// WalkerLogger returns a logger for the walker package.
func WalkerLogger() Logger {
	return makeFlaggableLogger(walker, Fields{"layer": "walker"})
}

// Dispatch returns true if hook resolution should be logged.
func Dispatch() bool {
	return dispatch
}

// DispatchLogger returns a logger for the dispatch package.
func DispatchLogger() Logger {
	return makeFlaggableLogger(dispatch, Fields{"layer": "dispatch"})
}

// Tagged returns true if node casts and list decoding should be logged.
func Tagged() bool {
	return tagged
}

// TaggedLogger returns a logger for the tagged package.
func TaggedLogger() Logger {
	return makeFlaggableLogger(tagged, Fields{"layer": "tagged"})
}

// Core returns true if the core file loader should be logged.
func Core() bool {
	return core
}

// CoreLogger returns a logger for the core package.
func CoreLogger() Logger {
	return makeFlaggableLogger(core, Fields{"layer": "core"})
}

// Dwarf returns true if the DWARF type catalog should be logged.
func Dwarf() bool {
	return dwarf
}

// DwarfLogger returns a logger for the dwarfcat package.
func DwarfLogger() Logger {
	return makeFlaggableLogger(dwarf, Fields{"layer": "dwarf"})
}

// Script returns true if starlark hooks should be logged.
func Script() bool {
	return script
}

// ScriptLogger returns a logger for the script package.
func ScriptLogger() Logger {
	return makeFlaggableLogger(script, Fields{"layer": "script"})
}

// Terminal returns true if the terminal should log the commands it runs.
func Terminal() bool {
	return terminal
}

// TerminalLogger returns a logger for the terminal package.
func TerminalLogger() Logger {
	return makeFlaggableLogger(terminal, Fields{"layer": "terminal"})
}

var errLogstrWithoutLog = errors.New("--log-output specified without --log")

// Setup sets debugger flags based on the contents of logstr.
// If logDest is not empty logs will be redirected to the file descriptor or
// file path specified by logDest.
func Setup(logFlag bool, logstr, logDest string) error {
	if logDest != "" {
		n, err := strconv.Atoi(logDest)
		if err == nil {
			logOut = os.NewFile(uintptr(n), "pgdbg-logs")
		} else {
			fh, err := os.Create(logDest)
			if err != nil {
				return fmt.Errorf("could not create log file: %v", err)
			}
			logOut = fh
		}
	}
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	if logOut != nil {
		log.SetOutput(logOut)
	}
	if !logFlag {
		log.SetOutput(io.Discard)
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if logstr == "" {
		logstr = "walker"
	}
	v := strings.Split(logstr, ",")
	for _, logcmd := range v {
		switch logcmd {
		case "walker":
			walker = true
		case "dispatch":
			dispatch = true
		case "tagged":
			tagged = true
		case "core":
			core = true
		case "dwarf":
			dwarf = true
		case "script":
			script = true
		case "terminal":
			terminal = true
		default:
			fmt.Fprintf(os.Stderr, "Warning: unknown log output value %q\n", logcmd)
		}
	}
	return nil
}

// Close closes the logger output.
func Close() {
	if logOut != nil {
		logOut.Close()
	}
}

// textFormatter is a simplified version of logrus.TextFormatter that
// doesn't make logs unreadable when they are output to a text file or to a
// terminal that doesn't support colors.
type textFormatter struct {
}

var textFormatterInstance = &textFormatter{}

func (f *textFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b *bytes.Buffer
	if entry.Buffer != nil {
		b = entry.Buffer
	} else {
		b = &bytes.Buffer{}
	}

	fmt.Fprintf(b, "%s %s ", entry.Time.Format("2006-01-02T15:04:05Z07:00"), entry.Level)
	if layer, ok := entry.Data["layer"]; ok {
		fmt.Fprintf(b, "%v ", layer)
	}
	for k, v := range entry.Data {
		if k == "layer" {
			continue
		}
		fmt.Fprintf(b, "%s=%v ", k, v)
	}
	b.WriteString(entry.Message)
	b.WriteByte('\n')
	return b.Bytes(), nil
}
