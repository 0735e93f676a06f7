package metrics

import (
	"fmt"
	"log"
	"os"
	"path"
	"time"
)

type Logger interface {
	Log(info *RunInfo)
}

type StdoutLogger struct{}

func NewStdoutLogger() *StdoutLogger {
	return &StdoutLogger{}
}

func (l *StdoutLogger) Log(info *RunInfo) {
	infoStr, err := info.ToJSON()
	if err == nil {
		log.Print(infoStr)
	} else {
		log.Printf("StdoutLogger: error: %v", err)
	}
}

const defaultQueueSize = 200
const defaultMaxLogFileSize = 256 * 1024 * 1024
const defaultMaxLogFiles = 10

// FileLogger appends run records to a log file under LogDir, rotating
// by size with numbered suffixes and overwriting the oldest rotation
// once MaxLogFiles exist. Log enqueues without blocking the pipeline; a
// single writer goroutine drains the queue.
type FileLogger struct {
	RunQueue       chan *RunInfo
	LogDir         string
	MaxLogFileSize int64
	MaxLogFiles    int
	Verbose        bool
}

func NewFileLogger(logDir string, maxLogFileSize int64, maxLogFiles int, verbose bool) *FileLogger {
	if maxLogFileSize <= 0 {
		maxLogFileSize = defaultMaxLogFileSize
	}
	if maxLogFiles <= 0 {
		maxLogFiles = defaultMaxLogFiles
	}
	logger := &FileLogger{
		RunQueue:       make(chan *RunInfo, defaultQueueSize),
		LogDir:         logDir,
		MaxLogFileSize: maxLogFileSize,
		MaxLogFiles:    maxLogFiles,
		Verbose:        verbose,
	}

	go logger.runLogWriter()
	return logger
}

func (l *FileLogger) Log(info *RunInfo) {
	l.RunQueue <- info
}

func (l *FileLogger) logFilePath() string {
	return path.Join(l.LogDir, "runs.log")
}

func (l *FileLogger) runLogWriter() {
	f, err := l.openLogFile()
	if err != nil {
		log.Printf("FileLogger: log open error: %v", err)
	}

	for info := range l.RunQueue {
		infoStr, err := info.ToJSON()
		if err != nil {
			log.Printf("FileLogger: info.ToJSON() error: %v", err)
			continue
		}

		f, err = l.tryRotateLogFile(f)
		if err != nil {
			continue
		}

		if _, err := f.WriteString(infoStr); err != nil {
			log.Printf("FileLogger: write error: %v", err)
			continue
		}
		f.Sync()
	}
}

func (l *FileLogger) openLogFile() (*os.File, error) {
	return os.OpenFile(l.logFilePath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

func (l *FileLogger) tryRotateLogFile(currFile *os.File) (*os.File, error) {
	info, err := currFile.Stat()
	if err != nil {
		log.Printf("FileLogger: log rotation error: %v", err)
		return currFile, nil
	}
	if info.Size() < l.MaxLogFileSize {
		return currFile, nil
	}

	var rotatedPath string
	for i := 0; i < l.MaxLogFiles; i++ {
		filePath := fmt.Sprintf("%s.%d", l.logFilePath(), i)
		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			rotatedPath = filePath
			break
		}
	}

	if len(rotatedPath) == 0 {
		// All rotation slots taken, overwrite the oldest.
		oldestTime := time.Now()
		for i := 0; i < l.MaxLogFiles; i++ {
			filePath := fmt.Sprintf("%s.%d", l.logFilePath(), i)
			st, err := os.Stat(filePath)
			if err != nil {
				continue
			}
			if st.ModTime().Before(oldestTime) {
				oldestTime = st.ModTime()
				rotatedPath = filePath
			}
		}
		if len(rotatedPath) == 0 {
			rotatedPath = fmt.Sprintf("%s.%d", l.logFilePath(), 0)
		}
		if l.Verbose {
			log.Printf("FileLogger: maximum number of log files reached, overwriting %s", rotatedPath)
		}
		if err := os.Remove(rotatedPath); err != nil && !os.IsNotExist(err) {
			log.Printf("FileLogger: log rotation error: %v", err)
			return currFile, nil
		}
	}

	currFile.Close()
	if err := os.Rename(l.logFilePath(), rotatedPath); err != nil {
		log.Printf("FileLogger: log rotation error: %v", err)
	} else if l.Verbose {
		log.Printf("FileLogger: log file rotated: %v", rotatedPath)
	}

	f, err := l.openLogFile()
	if err != nil {
		log.Printf("FileLogger: log rotation error: %v", err)
	}
	return f, err
}
