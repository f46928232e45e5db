package ledger

import (
	"time"

	"github.com/CamberLoid/Chimata-Payroll/internal/authz"
	"github.com/CamberLoid/Chimata-Payroll/internal/compensation"
	"github.com/CamberLoid/Chimata-Payroll/internal/fhe"
	"github.com/CamberLoid/Chimata-Payroll/internal/payroll"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// RequestCompensationReview 在密文上运行审核流水线，并为五个结果发起一次解密请求。
// 返回的请求 ID 用于关联稍后到达的 CompleteReview 回调。
// 预言机不回调时工资单会一直停留在 UnderReview，这是已知的活性缺口，不在账本内处理。
func (l *Ledger) RequestCompensationReview(caller uuid.UUID, id payroll.ID) (uuid.UUID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.authorize(caller, authz.ActionRequestReview); err != nil {
		return uuid.Nil, err
	}
	p, err := l.getPayroll(id)
	if err != nil {
		return uuid.Nil, err
	}
	if err := requireStatus(p, payroll.StatusUnderReview); err != nil {
		return uuid.Nil, err
	}

	out, err := compensation.Review(l.fhe, compensation.ReviewInputsOf(p), l.policy)
	if err != nil {
		return uuid.Nil, err
	}
	now := l.now()
	review := &payroll.CompensationReview{
		PayrollID:                 id,
		TotalCompensation:         out.TotalCompensation,
		NetPay:                    out.NetPay,
		MarketPercentile:          out.MarketPercentile,
		CompensationBand:          out.CompensationBand,
		DecisionCode:              out.DecisionCode,
		AdjustedTotalCompensation: out.AdjustedTotalCompensation,
		AdjustedNetPay:            out.AdjustedNetPay,
		RequestedAt:               now.Unix(),
	}
	err = l.compute(func() {
		l.allowSelf(
			review.TotalCompensation, review.NetPay, review.MarketPercentile,
			review.CompensationBand, review.DecisionCode,
			review.AdjustedTotalCompensation, review.AdjustedNetPay,
		)
	})
	if err != nil {
		return uuid.Nil, err
	}

	requestID, err := l.oracle.RequestDecryption(review.DecryptionBatch(), l.self, now.Add(l.reviewDeadline))
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "request decryption")
	}
	review.RequestID = requestID

	// 覆盖上一份审核，旧请求的回调到达时作为过期请求消费掉
	if prev, ok := l.reviews[id]; ok && !prev.IsComplete {
		l.log.Info("review superseded", "id", id, "previousRequest", prev.RequestID)
	}
	l.reviews[id] = review
	l.pending[requestID] = &pendingRequest{payrollID: id}
	p.ReviewedAt = now.Unix()

	l.log.Info("review requested", "id", id, "request", requestID)
	l.emit(Event{Kind: EventReviewRequested, PayrollID: id, RequestID: requestID, Actor: caller, Status: p.Status})
	return requestID, nil
}

// CompleteReview 是解密预言机的回调，values 依次为
// [totalComp, netPay, marketPercentile, compensationBand, decisionCode]。
//
// 未知请求返回 ErrNotFound；已经消费过的请求（重复投递、过期请求）是空操作，返回 nil，
// 不会重复应用状态迁移或计数。
func (l *Ledger) CompleteReview(caller uuid.UUID, requestID uuid.UUID, values []uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.authorize(caller, authz.ActionReviewCallback); err != nil {
		return err
	}
	req, ok := l.pending[requestID]
	if !ok {
		l.log.Warn("callback for unknown request", "request", requestID)
		return errors.Wrapf(payroll.ErrNotFound, "decryption request %s", requestID)
	}
	if req.consumed {
		l.log.Debug("duplicate callback ignored", "request", requestID)
		return nil
	}
	if len(values) != payroll.ReviewBatchSize {
		return errors.Wrapf(payroll.ErrInvalidParameters, "expected %d values, got %d", payroll.ReviewBatchSize, len(values))
	}
	decision, band := values[4], values[3]
	if decision > payroll.DecisionApprove || band > payroll.BandElite {
		return errors.Wrapf(payroll.ErrInvalidParameters, "decision %d band %d out of range", decision, band)
	}

	p, review := l.payrolls[req.payrollID], l.reviews[req.payrollID]
	if p == nil || review == nil || review.RequestID != requestID || p.Status != payroll.StatusUnderReview {
		req.consumed = true
		l.log.Info("stale callback consumed", "request", requestID, "id", req.payrollID)
		return nil
	}

	now := l.timestamp()
	profile := l.employees[p.Employee]
	var avgPerformance, employeeAvg fhe.Value
	err := l.compute(func() {
		avgPerformance = compensation.RunningAverage(l.fhe,
			l.agg.AveragePerformanceScore, p.Metrics.PerformanceScore, l.stats.PayrollCount)
		l.allowSelf(avgPerformance)
		// 员工档案以该员工已完成审核的工资单数为样本数
		if profile != nil {
			employeeAvg = compensation.RunningAverage(l.fhe,
				profile.AveragePerformance, p.Metrics.PerformanceScore, profile.ReviewedPayrolls+1)
			l.allowSelf(employeeAvg)
			l.allow(p.Employee, employeeAvg)
		}
	})
	if err != nil {
		return err
	}

	// 提交
	dr := &payroll.DecryptedReview{
		PayrollID:         p.ID,
		RequestID:         requestID,
		TotalCompensation: values[0],
		NetPay:            values[1],
		MarketPercentile:  values[2],
		CompensationBand:  band,
		DecisionCode:      decision,
		DecryptedAt:       now,
	}
	l.decrypted[p.ID] = dr
	p.Revealed = payroll.Revealed{
		CompensationBand:  dr.CompensationBand,
		MarketPercentile:  dr.MarketPercentile,
		TotalCompensation: dr.TotalCompensation,
		NetPay:            dr.NetPay,
		DecisionCode:      dr.DecisionCode,
	}
	p.IsEvaluated = true
	review.IsComplete = true
	req.consumed = true

	switch decision {
	case payroll.DecisionReject:
		p.Status = payroll.StatusRejected
		l.stats.RejectedCount++
	case payroll.DecisionAdjust:
		p.TotalCompensation = review.AdjustedTotalCompensation
		p.NetPay = review.AdjustedNetPay
		p.Status = payroll.StatusAdjusted
		p.LastAdjustedAt = now
	case payroll.DecisionApprove:
		p.Status = payroll.StatusApproved
	}

	l.agg.AveragePerformanceScore = avgPerformance
	if profile != nil {
		profile.SalaryBand = review.CompensationBand
		profile.AveragePerformance = employeeAvg
		profile.ReviewedPayrolls++
		profile.LastReviewAt = now
	}

	l.log.Info("review completed", "id", p.ID, "request", requestID, "decision", decision, "band", band, "status", p.Status)
	revealed := *dr
	l.emit(Event{Kind: EventReviewCompleted, PayrollID: p.ID, RequestID: requestID, Actor: caller, Status: p.Status, Revealed: &revealed})
	return nil
}

// PendingRequest 查询解密请求对应的工资单以及是否已经被消费
func (l *Ledger) PendingRequest(requestID uuid.UUID) (id payroll.ID, consumed bool, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	req, ok := l.pending[requestID]
	if !ok {
		return payroll.ID{}, false, false
	}
	return req.payrollID, req.consumed, true
}

// ReviewDeadline 返回传给预言机的建议截止间隔
func (l *Ledger) ReviewDeadline() time.Duration {
	return l.reviewDeadline
}
