package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// Debug controls whether debug logs are printed.
var Debug bool

var logFile *os.File

// Debugf logs a formatted debug message when Debug is enabled.
func Debugf(format string, v ...any) {
	if Debug {
		log.Printf("DEBUG: "+format, v...)
	}
}

// Infof logs an info message
func Infof(format string, v ...any) {
	log.Printf("[INFO] "+format, v...)
}

// Errorf logs an error message
func Errorf(format string, v ...any) {
	log.Printf("[ERROR] "+format, v...)
}

// InitFile sends log output to dir/chessboard.log. Used by the terminal
// client, whose stdout belongs to the UI.
func InitFile(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create log directory: %w", err)
	}

	path := filepath.Join(dir, "chessboard.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to open log file: %w", err)
	}

	// Rotate if file is too large (> 10MB)
	if info, err := f.Stat(); err == nil && info.Size() > 10*1024*1024 {
		_ = f.Close()
		_ = os.Rename(path, filepath.Join(dir, fmt.Sprintf("chessboard.log.%d", time.Now().Unix())))
		f, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return "", fmt.Errorf("failed to create new log file: %w", err)
		}
	}

	logFile = f
	log.SetOutput(f)
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	return path, nil
}

// Close closes the log file opened by InitFile.
func Close() {
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}
