package outbound

import "github.com/taoyao-code/flemlink/internal/protocol/flem"

// 下行指令优先级，数值越小优先级越高（与 Redis ZPOPMIN 取最小 score 一致）
const (
	// PriorityEmergency 紧急指令，如设备标识查询
	PriorityEmergency = 1
	// PriorityHigh 高优先级指令
	PriorityHigh = 2
	// PriorityNormal 普通应用指令
	PriorityNormal = 3
	// PriorityLow 低优先级指令
	PriorityLow = 4
	// PriorityBackground 后台任务
	PriorityBackground = 5
)

// CommandPriority 根据命令码返回默认优先级
func CommandPriority(cmd flem.Command) int {
	switch {
	case cmd == flem.CmdIdentify:
		return PriorityEmergency
	case cmd == flem.CmdEvent:
		return PriorityHigh
	case cmd < flem.CmdUser:
		// 其余保留命令
		return PriorityHigh
	default:
		return PriorityNormal
	}
}

// ValidPriority 判断优先级是否在定义范围内
func ValidPriority(p int) bool {
	return p >= PriorityEmergency && p <= PriorityBackground
}
