// quiz-taker 终端答题客户端：作答、自动保存、倒计时自动交卷、查看成绩。
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
