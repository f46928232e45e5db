package payroll

import "fmt"

// Status 是工资单的生命周期状态
//
//	Draft -> Submitted -> UnderReview -> {Approved | Adjusted | Rejected}
//	{Approved | Adjusted} -> Scheduled -> Processing -> Paid
//
// Paid 和 Rejected 为终态。
type Status uint8

const (
	StatusDraft Status = iota
	StatusSubmitted
	StatusUnderReview
	StatusApproved
	StatusScheduled
	StatusProcessing
	StatusPaid
	StatusAdjusted
	StatusRejected
)

// AllStatuses 按声明顺序列出所有状态
var AllStatuses = []Status{
	StatusDraft, StatusSubmitted, StatusUnderReview, StatusApproved, StatusScheduled,
	StatusProcessing, StatusPaid, StatusAdjusted, StatusRejected,
}

var statusNames = [...]string{
	"Draft", "Submitted", "UnderReview", "Approved", "Scheduled",
	"Processing", "Paid", "Adjusted", "Rejected",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusRejected
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	for i, name := range statusNames {
		if name == string(text) {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", text)
}

// EmploymentLevel 是员工职级
type EmploymentLevel uint8

const (
	LevelIntern EmploymentLevel = iota
	LevelJunior
	LevelMid
	LevelSenior
	LevelLead
	LevelManager
	LevelDirector
	LevelExecutive
)

var levelNames = [...]string{
	"Intern", "Junior", "Mid", "Senior", "Lead", "Manager", "Director", "Executive",
}

func (l EmploymentLevel) Valid() bool {
	return int(l) < len(levelNames)
}

func (l EmploymentLevel) String() string {
	if l.Valid() {
		return levelNames[l]
	}
	return fmt.Sprintf("EmploymentLevel(%d)", uint8(l))
}

// ParseEmploymentLevel 接受职级名称（大小写敏感）
func ParseEmploymentLevel(s string) (EmploymentLevel, error) {
	for i, name := range levelNames {
		if name == s {
			return EmploymentLevel(i), nil
		}
	}
	return 0, fmt.Errorf("unknown employment level %q", s)
}

// 审核决定码
const (
	DecisionReject  uint64 = 0
	DecisionAdjust  uint64 = 1
	DecisionApprove uint64 = 2
)

// 薪酬档位
const (
	BandBelowMarket uint64 = iota
	BandEntry
	BandCompetitive
	BandPremium
	BandElite
)
