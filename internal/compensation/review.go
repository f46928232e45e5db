package compensation

import (
	"github.com/CamberLoid/Chimata-Payroll/internal/fhe"
	"github.com/CamberLoid/Chimata-Payroll/internal/payroll"
	"github.com/CamberLoid/Chimata-Payroll/internal/serverlib"
)

// PercentileScale 是市场分位的定点比例：10000 表示与市场参考持平
const PercentileScale = 10000

// BandLadder 是从低到高的分位下限（闭区间）及其档位。
// 6000 这一级仍落在 BelowMarket，比较照常计算。
var BandLadder = []struct {
	Threshold uint64
	Band      uint64
}{
	{6000, payroll.BandBelowMarket},
	{8000, payroll.BandEntry},
	{10000, payroll.BandCompetitive},
	{12000, payroll.BandPremium},
	{15000, payroll.BandElite},
}

// 调整路径把总薪酬和净薪统一下调 5%
const (
	AdjustNumerator   = 95
	AdjustDenominator = 100
)

// ReviewInputs 是审核流水线读取的工资单字段
type ReviewInputs struct {
	TotalCompensation fhe.Value // 128 位
	NetPay            fhe.Value // 128 位
	BaseSalary        fhe.Value // 128 位
	PerformanceScore  fhe.Value // 16 位
	TenureMonths      fhe.Value // 16 位
	WarningCount      fhe.Value // 8 位
}

// ReviewInputsOf 从工资单中取出审核所需字段
func ReviewInputsOf(pr *payroll.Payroll) ReviewInputs {
	return ReviewInputs{
		TotalCompensation: pr.TotalCompensation,
		NetPay:            pr.NetPay,
		BaseSalary:        pr.Compensation.BaseSalary,
		PerformanceScore:  pr.Metrics.PerformanceScore,
		TenureMonths:      pr.Metrics.TenureMonths,
		WarningCount:      pr.Metrics.WarningCount,
	}
}

// Validity 是对照策略得到的五个加密布尔值
type Validity struct {
	Salary      fhe.Bool
	Total       fhe.Bool
	Performance fhe.Bool
	Tenure      fhe.Bool
	Warnings    fhe.Bool
}

// ReviewOutputs 是审核流水线的七个密文结果
type ReviewOutputs struct {
	TotalCompensation         fhe.Value // 64 位
	NetPay                    fhe.Value // 64 位
	MarketPercentile          fhe.Value // 64 位
	CompensationBand          fhe.Value // 8 位
	DecisionCode              fhe.Value // 8 位
	AdjustedTotalCompensation fhe.Value // 128 位
	AdjustedNetPay            fhe.Value // 128 位
}

// Review 执行审核决策流水线。
// 总薪酬与净薪先收窄到 64 位，调用方需要保证明文不超过 2^64，
// 并且 totalComp * 10000 不超过 2^64，否则分位在密文上回绕。
func Review(p fhe.Provider, in ReviewInputs, policy payroll.Policy) (out ReviewOutputs, err error) {
	err = serverlib.Recover(func() {
		out.TotalCompensation = p.Cast(in.TotalCompensation, fhe.W64)
		out.NetPay = p.Cast(in.NetPay, fhe.W64)
		out.MarketPercentile = MarketPercentile(p, out.TotalCompensation, policy.MarketRateReference)
		out.CompensationBand = Band(p, out.MarketPercentile)

		v := CheckValidity(p, in, out.TotalCompensation, policy)
		out.DecisionCode = Decide(p, v)

		isAdjust := p.Eq(out.DecisionCode, p.EncryptConst(fhe.W8, payroll.DecisionAdjust))
		out.AdjustedTotalCompensation = p.Select(isAdjust, Adjust(p, in.TotalCompensation), in.TotalCompensation)
		out.AdjustedNetPay = p.Select(isAdjust, Adjust(p, in.NetPay), in.NetPay)
	})
	return
}

// MarketPercentile 计算 floor(total * 10000 / (reference + 1))，+1 避免除零
func MarketPercentile(p fhe.Provider, total64 fhe.Value, reference uint64) fhe.Value {
	scaled := p.Mul(total64, p.EncryptConst(total64.Width, PercentileScale))
	return p.Div(scaled, reference+1)
}

// Band 按阈值阶梯选择档位，最高阈值优先，恰好落在阈值上取较高档
func Band(p fhe.Provider, percentile fhe.Value) fhe.Value {
	reached := make([]fhe.Bool, len(BandLadder))
	for i, step := range BandLadder {
		reached[i] = p.Ge(percentile, p.EncryptConst(percentile.Width, step.Threshold))
	}
	band := p.EncryptConst(fhe.W8, payroll.BandBelowMarket)
	for i, step := range BandLadder {
		band = p.Select(reached[i], p.EncryptConst(fhe.W8, step.Band), band)
	}
	return band
}

// CheckValidity 把策略常量注入到同态比较中
func CheckValidity(p fhe.Provider, in ReviewInputs, total64 fhe.Value, policy payroll.Policy) Validity {
	base := in.BaseSalary
	return Validity{
		Salary: p.And(
			p.Ge(base, p.EncryptConst(base.Width, policy.MinBaseSalary)),
			p.Le(base, p.EncryptConst(base.Width, policy.MaxBaseSalary)),
		),
		Total:       p.Ge(total64, p.EncryptConst(total64.Width, policy.MinTotalCompensation)),
		Performance: p.Ge(in.PerformanceScore, p.EncryptConst(in.PerformanceScore.Width, policy.MinPerformanceScore)),
		Tenure:      p.Ge(in.TenureMonths, p.EncryptConst(in.TenureMonths.Width, policy.MinTenureMonths)),
		Warnings:    p.Le(in.WarningCount, p.EncryptConst(in.WarningCount.Width, policy.MaxWarnings)),
	}
}

// Decide 得出决定码：五项全部满足为 Approve；
// 否则若工资、绩效、工龄三项满足为 Adjust；否则 Reject。
// Adjust 的子集不包含总薪酬与警告次数两项，这是沿袭下来的行为，保持原样。
func Decide(p fhe.Provider, v Validity) fhe.Value {
	all := p.And(p.And(p.And(p.And(v.Salary, v.Total), v.Performance), v.Tenure), v.Warnings)
	subset := p.And(p.And(v.Salary, v.Performance), v.Tenure)
	adjustOrReject := p.Select(subset,
		p.EncryptConst(fhe.W8, payroll.DecisionAdjust),
		p.EncryptConst(fhe.W8, payroll.DecisionReject),
	)
	return p.Select(all, p.EncryptConst(fhe.W8, payroll.DecisionApprove), adjustOrReject)
}

// Adjust 计算 floor(v * 95 / 100)
func Adjust(p fhe.Provider, v fhe.Value) fhe.Value {
	return p.Div(p.Mul(v, p.EncryptConst(v.Width, AdjustNumerator)), AdjustDenominator)
}
