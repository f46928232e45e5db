// 包 users 包含了员工和部门的明文目录条目
package users

import (
	"github.com/google/uuid"
)

// 方案中的用户。工资单、角色、授权都以 Identifier 指代用户，
// 账本只保存明文的标识和名称，密钥由客户端自行保管
type User struct {
	Identifier uuid.UUID `json:"identifier"`
	UserName   string    `json:"userName,omitempty"`
}

// 生成一个新的空值用户
func NewUser() *User {
	user := new(User)
	user.Identifier = uuid.New()
	return user
}

// 生成一个新的用户，包含用户名
func NewUserWithUserName(userName string) *User {
	user := NewUser()
	user.UserName = userName
	return user
}

// Department 是部门目录条目，DepartmentID 与工资单中加密的部门代码对应
type Department struct {
	DepartmentID uint32 `json:"departmentId"`
	Name         string `json:"name,omitempty"`
}
