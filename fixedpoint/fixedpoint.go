// Package fixedpoint 实现 17.14 格式的定点数：
// 用一个有符号 32 位整数表示实数，实际值 = Value / 2^14。
// MLFQS 调度器只用整数运算，不碰浮点。
package fixedpoint

import "fmt"

// FractionBits 是小数部分的位数
const FractionBits = 14

// F 是缩放因子 2^14
const F = 1 << FractionBits

// Value 是一个 17.14 定点数
type Value int32

// FromInt 把整数 n 转成定点数
func FromInt(n int) Value {
	return Value(n * F)
}

// Trunc 向零截断取整
func (x Value) Trunc() int {
	return int(x / F)
}

// Round 四舍五入到最近的整数，恰好一半时远离零。
func (x Value) Round() int {
	v := int64(x)
	if v >= 0 {
		return int((v + F/2) / F)
	}
	return int((v - F/2) / F)
}

// Add 返回 x + y
func (x Value) Add(y Value) Value {
	return x + y
}

// Sub 返回 x - y
func (x Value) Sub(y Value) Value {
	return x - y
}

// AddInt 返回 x + n
func (x Value) AddInt(n int) Value {
	return x + Value(n*F)
}

// SubInt 返回 x - n
func (x Value) SubInt(n int) Value {
	return x - Value(n*F)
}

// Mul 返回 x * y。先扩到 64 位再乘，避免中间结果溢出。
func (x Value) Mul(y Value) Value {
	return Value(int64(x) * int64(y) / F)
}

// MulInt 返回 x * n
func (x Value) MulInt(n int) Value {
	return x * Value(n)
}

// Div 返回 x / y。被除数先放大 F 倍以保留小数精度。
// y == 0 是调用方的错误。
func (x Value) Div(y Value) Value {
	return Value(int64(x) * F / int64(y))
}

// DivInt 返回 x / n
func (x Value) DivInt(n int) Value {
	return x / Value(n)
}

// String 以两位小数显示
func (x Value) String() string {
	hundredths := x.MulInt(100).Round()
	sign := ""
	if hundredths < 0 {
		sign = "-"
		hundredths = -hundredths
	}
	return fmt.Sprintf("%s%d.%02d", sign, hundredths/100, hundredths%100)
}
