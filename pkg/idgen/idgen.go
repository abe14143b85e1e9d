// Package idgen 提供基于 snowflake 的业务 ID 生成
package idgen

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	once sync.Once
)

// Init 初始化生成器节点，nodeID 取值范围 0-1023
func Init(nodeID int64) error {
	var err error
	once.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

func getNode() *snowflake.Node {
	if node == nil {
		// 未显式初始化时退化为节点 0，便于测试
		_ = Init(0)
	}
	return node
}

// GenID 生成全局唯一的 int64 ID
func GenID() int64 {
	return getNode().Generate().Int64()
}

// GenIDWithPrefix 生成带业务前缀的字符串 ID，如 RSV-1234567890
func GenIDWithPrefix(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, GenID())
}
