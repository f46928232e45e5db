// 包 compensation 是在密文上执行的薪酬计算流水线：
// 提交时派生总薪酬、扣除项与净薪，审核时计算市场分位、薪酬档位与决定码。
// 所有函数只依赖 fhe.Provider，不接触明文。
package compensation

import (
	"github.com/CamberLoid/Chimata-Payroll/internal/fhe"
	"github.com/CamberLoid/Chimata-Payroll/internal/payroll"
	"github.com/CamberLoid/Chimata-Payroll/internal/serverlib"
)

// 新员工的晋升资格与流失风险默认值
const DefaultEligibility = 5

// Derived 是提交时派生的密文字段
type Derived struct {
	TotalCompensation    fhe.Value
	Deductions           payroll.Deductions
	NetPay               fhe.Value
	PromotionEligibility fhe.Value
	AttritionRisk        fhe.Value
}

// Derive 计算总薪酬、三项按费率的扣除、净薪。
// 税按总薪酬计，保险和退休金按基本工资计，其他扣除从 0 开始。
// 净薪不做非负校验，在密文上下溢会按 2^128 回绕。
func Derive(p fhe.Provider, c payroll.Compensation, policy payroll.Policy) (d Derived, err error) {
	err = serverlib.Recover(func() {
		d.TotalCompensation = Sum(p, c.Components()...)
		d.Deductions = payroll.Deductions{
			Tax:        ApplyRate(p, d.TotalCompensation, policy.TaxRateBps),
			Insurance:  ApplyRate(p, c.BaseSalary, policy.InsuranceRateBps),
			Retirement: ApplyRate(p, c.BaseSalary, policy.RetirementRateBps),
			Other:      p.EncryptConst(fhe.W128, 0),
		}
		d.NetPay = p.Sub(d.TotalCompensation, Sum(p, d.Deductions.Fields()...))
		d.PromotionEligibility = p.EncryptConst(fhe.W8, DefaultEligibility)
		d.AttritionRisk = p.EncryptConst(fhe.W8, DefaultEligibility)
	})
	return
}

// Sum 从左到右累加，至少需要一个操作数
func Sum(p fhe.Provider, vs ...fhe.Value) fhe.Value {
	acc := vs[0]
	for _, v := range vs[1:] {
		acc = p.Add(acc, v)
	}
	return acc
}

// ApplyRate 计算 floor(v * bps / 10000)
func ApplyRate(p fhe.Provider, v fhe.Value, bps uint64) fhe.Value {
	return p.Div(p.Mul(v, p.EncryptConst(v.Width, bps)), payroll.BasisPoints)
}

// RunningAverage 计算 (avg * (count-1) + sample) / count。
// count 是调用方给出的样本数，不一定等于真实参与平均的样本数，
// 由此产生的偏差是聚合统计可接受的性质。
func RunningAverage(p fhe.Provider, avg, sample fhe.Value, count uint64) fhe.Value {
	if sample.Width != avg.Width {
		sample = p.Cast(sample, avg.Width)
	}
	weighted := p.Mul(avg, p.EncryptConst(avg.Width, count-1))
	return p.Div(p.Add(weighted, sample), count)
}
