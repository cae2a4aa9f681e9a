package main

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// setupLogging sends the standard logger to a rotating file as well as stderr when
// path is set. The returned closer flushes and closes the file.
func setupLogging(path string) io.Closer {
	if path == "" {
		return io.NopCloser(nil)
	}
	rotating := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rotating))
	log.Printf("INFO: Logging to %s", path)
	return rotating
}
