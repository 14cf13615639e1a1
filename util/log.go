package util

import (
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Severity levels for audit messages
type Severity string

// Audit severities
const (
	DEBUG  Severity = "DEBUG"
	INFO   Severity = "INFO"
	NOTICE Severity = "NOTICE"
	ALERT  Severity = "ALERT"
	ERROR  Severity = "ERROR"
)

// LogContext carries the fields every log line is tagged with
type LogContext interface {
	AppName() string
	SessionID() string
	LogRootDir() string
}

// BasicLogContext is a LogContext for code that runs outside a user session
type BasicLogContext struct {
	once      sync.Once
	sessionID string
}

// AppName implements LogContext
func (c *BasicLogContext) AppName() string {
	return AppName
}

// SessionID implements LogContext
func (c *BasicLogContext) SessionID() string {
	c.once.Do(func() {
		if c.sessionID == "" {
			c.sessionID = NewUUID()
		}
	})
	return c.sessionID
}

// LogRootDir implements LogContext
func (c *BasicLogContext) LogRootDir() string {
	return ""
}

// AppName is the name all log lines are tagged with
const AppName = "bf-vegindex"

// LogAuditInput describes who did what to whom
type LogAuditInput struct {
	Actor    string
	Action   string
	Actee    string
	Message  string
	Severity Severity
}

var logger = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		l.SetLevel(level)
	}
	return l
}

// Logger exposes the underlying logger, e.g. for tests that capture output
func Logger() *logrus.Logger {
	return logger
}

func entry(ctx LogContext) *logrus.Entry {
	if ctx == nil {
		ctx = &BasicLogContext{}
	}
	return logger.WithFields(logrus.Fields{
		"app":     ctx.AppName(),
		"session": ctx.SessionID(),
	})
}

// LogInfo logs an informational message
func LogInfo(ctx LogContext, message string) {
	entry(ctx).Info(message)
}

// LogAlert logs a message that needs an operator's attention but is not fatal
func LogAlert(ctx LogContext, message string) {
	entry(ctx).Warn(message)
}

// LogSimpleErr logs message with err and returns an error suitable for the caller
func LogSimpleErr(ctx LogContext, message string, err error) error {
	e := entry(ctx)
	if err != nil {
		e = e.WithError(err)
	}
	e.Error(message)
	return &Error{SimpleMsg: message, LogMsg: errString(err)}
}

// LogAudit logs an interaction with an external actor
func LogAudit(ctx LogContext, input LogAuditInput) {
	e := entry(ctx).WithFields(logrus.Fields{
		"actor":  input.Actor,
		"action": input.Action,
		"actee":  input.Actee,
	})
	switch input.Severity {
	case DEBUG:
		e.Debug(input.Message)
	case ALERT, NOTICE:
		e.Warn(input.Message)
	case ERROR:
		e.Error(input.Message)
	default:
		e.Info(input.Message)
	}
}

// NewUUID returns a random identifier
func NewUUID() string {
	return uuid.NewString()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
