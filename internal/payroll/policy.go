package payroll

import (
	"math"

	"github.com/CamberLoid/Chimata-Payroll/internal/fhe"
	"github.com/pkg/errors"
)

// BasisPoints 是万分比的分母
const BasisPoints = 10000

// Policy 是全局唯一的明文配置，在审核时作为常量注入同态比较
type Policy struct {
	MinBaseSalary           uint64 `json:"minBaseSalary" yaml:"min_base_salary"`
	MaxBaseSalary           uint64 `json:"maxBaseSalary" yaml:"max_base_salary"`
	MinTotalCompensation    uint64 `json:"minTotalCompensation" yaml:"min_total_compensation"`
	MaxBonusPercent         uint64 `json:"maxBonusPercent" yaml:"max_bonus_percent"`
	MinPerformanceScore     uint64 `json:"minPerformanceScore" yaml:"min_performance_score"`
	MarketRateReference     uint64 `json:"marketRateReference" yaml:"market_rate_reference"`
	TaxRateBps              uint64 `json:"taxRateBps" yaml:"tax_rate_bps"`
	InsuranceRateBps        uint64 `json:"insuranceRateBps" yaml:"insurance_rate_bps"`
	RetirementRateBps       uint64 `json:"retirementRateBps" yaml:"retirement_rate_bps"`
	MinTenureMonths         uint64 `json:"minTenureMonths" yaml:"min_tenure_months"`
	MaxWarnings             uint64 `json:"maxWarnings" yaml:"max_warnings"`
	MinPromotionEligibility uint64 `json:"minPromotionEligibility" yaml:"min_promotion_eligibility"`
}

// DefaultPolicy 是账本初始化时的策略
func DefaultPolicy() Policy {
	return Policy{
		MinBaseSalary:           30000,
		MaxBaseSalary:           500000,
		MinTotalCompensation:    35000,
		MaxBonusPercent:         50,
		MinPerformanceScore:     5000,
		MarketRateReference:     80000,
		TaxRateBps:              2500,
		InsuranceRateBps:        500,
		RetirementRateBps:       600,
		MinTenureMonths:         6,
		MaxWarnings:             2,
		MinPromotionEligibility: 5,
	}
}

// Validate 检查策略是否自洽，且每个常量都能放进与之比较的密文位宽
func (p Policy) Validate() error {
	switch {
	case p.MinBaseSalary > p.MaxBaseSalary:
		return errors.Wrapf(ErrInvalidPolicy, "min base salary %d above max %d", p.MinBaseSalary, p.MaxBaseSalary)
	case p.TaxRateBps > BasisPoints, p.InsuranceRateBps > BasisPoints, p.RetirementRateBps > BasisPoints:
		return errors.Wrap(ErrInvalidPolicy, "rates must not exceed 10000 bps")
	case p.MaxBonusPercent > 100:
		return errors.Wrapf(ErrInvalidPolicy, "max bonus percent %d above 100", p.MaxBonusPercent)
	case p.MinPerformanceScore > 10000:
		return errors.Wrapf(ErrInvalidPolicy, "min performance score %d above 10000", p.MinPerformanceScore)
	case !fhe.W16.Fits(p.MinTenureMonths):
		return errors.Wrapf(ErrInvalidPolicy, "min tenure %d does not fit 16 bits", p.MinTenureMonths)
	case !fhe.W8.Fits(p.MaxWarnings):
		return errors.Wrapf(ErrInvalidPolicy, "max warnings %d does not fit 8 bits", p.MaxWarnings)
	case p.MinPromotionEligibility > 10:
		return errors.Wrapf(ErrInvalidPolicy, "min promotion eligibility %d above 10", p.MinPromotionEligibility)
	case p.MarketRateReference == math.MaxUint64:
		return errors.Wrap(ErrInvalidPolicy, "market rate reference overflows divisor")
	}
	return nil
}
