package eventbus

import (
	"fmt"
	"regexp"
)

// 本服务已知的主题
const (
	TopicOrdersSubmitted    = "orders.submitted.v1"
	TopicOrdersUpdated      = "orders.updated.v1"
	TopicOrdersUpdatedV3    = "orders.updated.v3"
	TopicExecutionsRecorded = "executions.recorded.v1"
	TopicBalancesUpdated    = "balances.updated.v1"
)

// 主题名规则：小写字母开头的点分段，以版本后缀结尾，如 orders.updated.v3
var topicPattern = regexp.MustCompile(`^[a-z][a-z0-9]*(\.[a-z][a-z0-9]*)+\.v[1-9][0-9]*$`)

// dlqPattern 从 <base>.v<N> 中切出 base 与版本，用于派生死信主题
var dlqPattern = regexp.MustCompile(`^(.+)\.v([1-9][0-9]*)$`)

// ValidateTopic 校验主题名，不合法的主题是配置错误，必须在任何 I/O 之前拒绝
func ValidateTopic(topic string) error {
	if !topicPattern.MatchString(topic) {
		return fmt.Errorf("invalid topic name: %q", topic)
	}
	return nil
}

// DLQTopic 派生主题对应的死信主题：orders.updated.v3 -> orders.updated.dlq.v3
func DLQTopic(topic string) (string, error) {
	if err := ValidateTopic(topic); err != nil {
		return "", err
	}
	m := dlqPattern.FindStringSubmatch(topic)
	return fmt.Sprintf("%s.dlq.v%s", m[1], m[2]), nil
}
