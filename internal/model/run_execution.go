package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// RunStatus 运行状态
type RunStatus string

const (
	RunStatusPending RunStatus = "pending"
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
	RunStatusSkipped RunStatus = "skipped"
)

// 整体校验结论，记录在运行结果中，用于连续 CRITICAL 升级判断
const (
	OverallPass     = "PASS"
	OverallWarning  = "WARNING"
	OverallCritical = "CRITICAL"
)

// RunExecution 质量运行执行记录
type RunExecution struct {
	ID           int64      `gorm:"column:id;primaryKey;autoIncrement"`
	RunID        string     `gorm:"column:run_id;type:varchar(36);not null;uniqueIndex"`
	JobName      string     `gorm:"column:job_name;type:varchar(100);not null"`
	Status       RunStatus  `gorm:"column:status;type:varchar(20);not null"`
	StartedAt    int64      `gorm:"column:started_at;not null"`
	FinishedAt   *int64     `gorm:"column:finished_at"`
	DurationMs   *int       `gorm:"column:duration_ms"`
	ErrorMessage *string    `gorm:"column:error_message;type:text"`
	Result       JSONResult `gorm:"column:result;type:text"`
	CreatedAt    int64      `gorm:"column:created_at;not null"`
}

// TableName 表名
func (RunExecution) TableName() string {
	return "quality_run_executions"
}

// OverallStatus 读取运行结果中的整体结论，缺失时返回空串
func (e *RunExecution) OverallStatus() string {
	if e.Result == nil {
		return ""
	}
	if s, ok := e.Result["overall_status"].(string); ok {
		return s
	}
	return ""
}

// JSONResult JSON 结果类型
type JSONResult map[string]interface{}

// Value 实现 driver.Valuer 接口
func (j JSONResult) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan 实现 sql.Scanner 接口
func (j *JSONResult) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	}
	return errors.New("unsupported type for JSONResult")
}
