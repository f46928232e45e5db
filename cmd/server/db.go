package main

import (
	"os"
	"path/filepath"

	"github.com/CamberLoid/Chimata-Payroll/internal/db"
	"github.com/CamberLoid/Chimata-Payroll/internal/log"
)

// InitDatabase 打开事件日志数据库，目录不存在时创建
func InitDatabase(path string, logger *log.Logger) (*db.Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	logger.Debug("Database: Initializing journal", "path", path)
	return db.Open(path)
}
