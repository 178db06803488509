package executor

import (
	"fmt"
	"strings"
)

// PartialFailure 表示同一信号下部分平台腿失败、部分成功。
// 各腿结果各自为准，不做跨平台回滚，此错误仅用于上报。
type PartialFailure struct {
	Agent     string
	Succeeded []string
	Failed    []string
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("executor: agent %s 部分平台执行失败: 成功[%s] 失败[%s]",
		e.Agent,
		strings.Join(e.Succeeded, ","),
		strings.Join(e.Failed, ","),
	)
}
