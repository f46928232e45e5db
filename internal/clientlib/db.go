package clientlib

import (
	"database/sql"
	"os"
	"path/filepath"
	"strconv"

	database "github.com/CamberLoid/Chimata-Payroll/internal/db"
	"github.com/CamberLoid/Chimata-Payroll/internal/payroll"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const (
	DefaultDatabaseDirPath  string = ".config/Chimata-Payroll"
	DefaultDatabaseFileName string = "client.db"
	DefaultKeyFileName      string = "keys.json"
)

var (
	homedir, _                = os.UserHomeDir()
	ConfigDatabasePath string = filepath.Join(homedir, DefaultDatabaseDirPath, DefaultDatabaseFileName)
	ConfigKeyFilePath  string = filepath.Join(homedir, DefaultDatabaseDirPath, DefaultKeyFileName)
)

// Submission 是本地记录的一次提交
type Submission struct {
	PayrollID   payroll.ID
	Employee    uuid.UUID
	Nonce       uint64
	SubmittedAt int64
}

// InitDatabase 打开默认路径的客户端数据库，目录不存在时创建
func InitDatabase() (db *sql.DB, err error) {
	if err = os.MkdirAll(filepath.Dir(ConfigDatabasePath), 0700); err != nil {
		return nil, err
	}
	return OpenDatabase(ConfigDatabasePath)
}

func OpenDatabase(path string) (db *sql.DB, err error) {
	db, err = sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err = db.Exec(database.CreateSubmissionTable()); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// RecordSubmission 记录一次提交，nonce 以十进制字符串保存
func RecordSubmission(db *sql.DB, s Submission) error {
	_, err := db.Exec(`
		INSERT INTO Submissions (payroll, employee, nonce, submittedAt)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (payroll) DO NOTHING
	`, s.PayrollID.String(), s.Employee.String(), strconv.FormatUint(s.Nonce, 10), s.SubmittedAt)
	return errors.Wrap(err, "record submission")
}

// ListSubmissions 按提交时间列出某员工的本地记录
func ListSubmissions(db *sql.DB, employee uuid.UUID) ([]Submission, error) {
	rows, err := db.Query(`
		SELECT payroll, nonce, submittedAt FROM Submissions
		WHERE employee = ?
		ORDER BY submittedAt
	`, employee.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Submission
	for rows.Next() {
		var pid, nonce string
		s := Submission{Employee: employee}
		if err := rows.Scan(&pid, &nonce, &s.SubmittedAt); err != nil {
			return nil, err
		}
		if s.PayrollID, err = payroll.ParseID(pid); err != nil {
			return nil, err
		}
		if s.Nonce, err = strconv.ParseUint(nonce, 10, 64); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
