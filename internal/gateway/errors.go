package gateway

import (
	"fmt"
	"time"
)

// RunStatus 远程任务状态。
type RunStatus string

const (
	StatusReady     RunStatus = "READY"
	StatusRunning   RunStatus = "RUNNING"
	StatusSucceeded RunStatus = "SUCCEEDED"
	StatusFailed    RunStatus = "FAILED"
	StatusAborted   RunStatus = "ABORTED"
	StatusTimedOut  RunStatus = "TIMED_OUT"
)

// Terminal 判断状态是否终态。
func (s RunStatus) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusAborted, StatusTimedOut:
		return true
	default:
		return false
	}
}

// TimeoutError 轮询超过绝对截止时间。
type TimeoutError struct {
	RunID  string
	Waited time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("run %s did not finish within %s", e.RunID, e.Waited)
}

// RunFailedError 任务以非成功终态结束。
type RunFailedError struct {
	RunID  string
	Status RunStatus
}

func (e *RunFailedError) Error() string {
	return fmt.Sprintf("run %s ended with status %s", e.RunID, e.Status)
}
