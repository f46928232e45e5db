package serverlib

import "fmt"

// Recover 执行 f，并把其中的 panic 转换为 error。
// 同态运算在误用时会 panic，调用方用它包住整段计算。
func Recover(f func()) (err error) {
	defer func() {
		if p := recover(); p != nil {
			if e, ok := p.(error); ok {
				err = e
				return
			}
			err = fmt.Errorf("%v", p)
		}
	}()
	f()
	return nil
}
