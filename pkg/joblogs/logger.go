package joblogs

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/cosmoesg/cosmo/pkg/models"
	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
)

const maxDataValueLen = 1024

// redactedKeys never reach job_logs, since job logs are readable by anyone
// who can list jobs.
var redactedKeys = map[string]struct{}{
	"access_token":  {},
	"refresh_token": {},
	"authorization": {},
	"code":          {},
}

// JobLogger writes every entry to the process log and to job_logs, so a sync
// or analysis can be inspected after it finishes.
type JobLogger struct {
	ctx     context.Context
	service *Service
	log     logger.Logger
	jobID   int
	base    logger.Data
}

func (svc *Service) NewJobLogger(ctx context.Context, jobID int, log logger.Logger) *JobLogger {
	return &JobLogger{
		ctx:     ctx,
		service: svc,
		log:     log.Data(logger.Data{"job_id": jobID}),
		jobID:   jobID,
	}
}

// With returns a logger that adds data to every entry, persisted ones
// included.
func (l *JobLogger) With(data logger.Data) *JobLogger {
	return &JobLogger{
		ctx:     l.ctx,
		service: l.service,
		log:     l.log.Data(data),
		jobID:   l.jobID,
		base:    merge(l.base, data),
	}
}

func (l *JobLogger) Info(msg string, data logger.Data) {
	l.log.Info(msg, data)
	l.persist(models.JobLogLevelInfo, msg, data, nil)
}

func (l *JobLogger) Warn(msg string, data logger.Data) {
	l.log.Warn(msg, data)
	l.persist(models.JobLogLevelWarn, msg, data, nil)
}

// Error stores the error's own stack when it has one.
func (l *JobLogger) Error(msg string, err error, data logger.Data) {
	l.log.Err(err).Error(msg, data)
	data = withError(data, err)
	l.persist(models.JobLogLevelError, msg, data, stackOf(err))
}

// Fatal is used for recovered panics. It has to be called from the deferred
// function so the stack still shows where the panic happened.
func (l *JobLogger) Fatal(msg string, err error, data logger.Data) {
	l.log.Err(err).Error(msg, data)
	data = withError(data, err)
	stack := string(debug.Stack())
	l.persist(models.JobLogLevelFatal, msg, data, &stack)
}

func (l *JobLogger) persist(level, msg string, data logger.Data, stackTrace *string) {
	entry := &models.JobLog{
		JobID:      l.jobID,
		Level:      level,
		Message:    msg,
		Data:       encode(merge(l.base, data)),
		StackTrace: stackTrace,
	}

	if err := l.service.CreateJobLog(l.ctx, entry); err != nil {
		l.log.Err(err).Warn("failed to persist job log")
	}
}

func withError(data logger.Data, err error) logger.Data {
	if err == nil {
		return data
	}
	return merge(data, logger.Data{"error": err.Error()})
}

// stackOf returns the stack recorded by github.com/pkg/errors, or nil when
// err doesn't carry one.
func stackOf(err error) *string {
	if err == nil {
		return nil
	}
	detailed := fmt.Sprintf("%+v", err)
	if detailed == err.Error() {
		return nil
	}
	return &detailed
}

func merge(a, b logger.Data) logger.Data {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make(logger.Data, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

func encode(data logger.Data) *string {
	if len(data) == 0 {
		return nil
	}

	clean := make(logger.Data, len(data))
	for k, v := range data {
		if _, ok := redactedKeys[strings.ToLower(k)]; ok {
			clean[k] = "[redacted]"
			continue
		}
		if s, ok := v.(string); ok {
			v = truncateMiddle(s, maxDataValueLen)
		}
		clean[k] = v
	}

	b, err := json.Marshal(clean)
	if err != nil {
		return nil
	}
	s := string(b)
	return &s
}

func truncateMiddle(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	half := (maxLen - 5) / 2
	return s[:half] + " ... " + s[len(s)-half:]
}
