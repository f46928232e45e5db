// 包 oracle 是进程内的解密预言机中继。
// 它接收账本发出的解密请求并排队，稍后以持有 oracle 角色的主体身份把明文回调给账本。
// 回调可以按任意顺序投递。账本以权限或参数错误拒绝的回调会重新入队，其余失败的请求直接丢弃。
package oracle

import (
	"context"
	"sync"
	"time"

	"github.com/CamberLoid/Chimata-Payroll/internal/fhe"
	"github.com/CamberLoid/Chimata-Payroll/internal/log"
	"github.com/CamberLoid/Chimata-Payroll/internal/payroll"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	ErrUnknownRequest = errors.New("oracle: unknown request")
	ErrNoReceiver     = errors.New("oracle: no receiver bound")
)

// Receiver 是回调的接收方，通常是 *ledger.Ledger
type Receiver interface {
	CompleteReview(caller uuid.UUID, requestID uuid.UUID, values []uint64) error
}

// Request 是一个排队中的解密请求
type Request struct {
	ID        uuid.UUID    `json:"id"`
	Handles   []fhe.Handle `json:"handles"`
	Requester uuid.UUID    `json:"requester"`
	Deadline  time.Time    `json:"deadline"`
	QueuedAt  time.Time    `json:"queuedAt"`
}

type Relayer struct {
	mu sync.Mutex

	fhe       fhe.Provider
	principal uuid.UUID
	receiver  Receiver
	now       func() time.Time
	log       *log.Logger

	queue []*Request
}

// New 创建中继，principal 是回调时使用的身份，需要在账本中持有 oracle 角色
func New(provider fhe.Provider, principal uuid.UUID, logger *log.Logger) *Relayer {
	if logger == nil {
		logger = log.Default()
	}
	return &Relayer{
		fhe:       provider,
		principal: principal,
		now:       time.Now,
		log:       logger.Module("oracle"),
	}
}

// Bind 设置回调接收方。账本构造时需要中继，所以接收方在之后绑定。
func (r *Relayer) Bind(recv Receiver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receiver = recv
}

func (r *Relayer) Principal() uuid.UUID {
	return r.principal
}

// RequestDecryption 只做校验和排队，不会同步回调
func (r *Relayer) RequestDecryption(handles []fhe.Handle, requester uuid.UUID, deadline time.Time) (uuid.UUID, error) {
	if len(handles) == 0 {
		return uuid.Nil, errors.New("oracle: empty decryption request")
	}
	for _, h := range handles {
		if !r.fhe.IsAllowed(h, requester) {
			return uuid.Nil, errors.Wrapf(fhe.ErrAccessDenied, "handle %s for %s", h, requester)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	req := &Request{
		ID:        uuid.New(),
		Handles:   append([]fhe.Handle(nil), handles...),
		Requester: requester,
		Deadline:  deadline,
		QueuedAt:  r.now(),
	}
	r.queue = append(r.queue, req)
	r.log.Debug("request queued", "request", req.ID, "values", len(handles), "deadline", deadline)
	return req.ID, nil
}

// Pending 按入队顺序返回尚未投递的请求 ID
func (r *Relayer) Pending() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]uuid.UUID, len(r.queue))
	for i, req := range r.queue {
		out[i] = req.ID
	}
	return out
}

// take 把请求移出队列，之后不会再被投递
func (r *Relayer) take(id uuid.UUID) (*Request, Receiver, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.receiver == nil {
		return nil, nil, ErrNoReceiver
	}
	for i, req := range r.queue {
		if req.ID == id {
			r.queue = append(r.queue[:i], r.queue[i+1:]...)
			return req, r.receiver, nil
		}
	}
	return nil, nil, errors.Wrapf(ErrUnknownRequest, "%s", id)
}

// requeue 把被拒绝的请求放回队尾
func (r *Relayer) requeue(req *Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = append(r.queue, req)
}

// Decrypt 以请求者身份解密一个请求的全部值
func (r *Relayer) Decrypt(req *Request) ([]uint64, error) {
	values := make([]uint64, len(req.Handles))
	for i, h := range req.Handles {
		v, err := r.fhe.Decrypt(h, req.Requester)
		if err != nil {
			return nil, errors.Wrapf(err, "decrypt value %d", i)
		}
		if !v.IsUint64() {
			return nil, errors.Errorf("oracle: value %d does not fit 64 bits", i)
		}
		values[i] = v.Uint64()
	}
	return values, nil
}

// Deliver 解密并投递一个请求。请求在投递前就被移出队列。
// 接收方返回 ErrUnauthorized 或 ErrInvalidParameters 时请求回到队尾，
// 等待下一轮投递；其他错误不重试。
func (r *Relayer) Deliver(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	req, recv, err := r.take(id)
	if err != nil {
		return err
	}
	values, err := r.Decrypt(req)
	if err != nil {
		r.log.Error("decryption failed", "request", id, "err", err)
		return err
	}
	if now := r.now(); now.After(req.Deadline) {
		r.log.Warn("delivering after deadline", "request", id, "late", now.Sub(req.Deadline))
	}
	if err := recv.CompleteReview(r.principal, id, values); err != nil {
		r.log.Error("callback rejected", "request", id, "err", err)
		if errors.Is(err, payroll.ErrUnauthorized) || errors.Is(err, payroll.ErrInvalidParameters) {
			r.requeue(req)
		}
		return errors.Wrapf(err, "deliver %s", id)
	}
	r.log.Debug("request delivered", "request", id)
	return nil
}

// DeliverAll 按入队顺序投递当前队列中的全部请求，返回成功投递的个数。
// 单个请求的失败会被记录，不会中断其余请求。
func (r *Relayer) DeliverAll(ctx context.Context) (int, error) {
	delivered := 0
	for _, id := range r.Pending() {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		if err := r.Deliver(ctx, id); err != nil {
			continue
		}
		delivered++
	}
	return delivered, nil
}

// Run 每隔 interval 投递一次队列，直到 ctx 结束
func (r *Relayer) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.log.Info("relayer started", "principal", r.principal, "interval", interval)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("relayer stopped")
			return ctx.Err()
		case <-ticker.C:
			if n, _ := r.DeliverAll(ctx); n > 0 {
				r.log.Info("delivered decryption results", "count", n)
			}
		}
	}
}
