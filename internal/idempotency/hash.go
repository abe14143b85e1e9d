package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// ComputeRequestHash 计算规范化请求哈希：
// 方法 + 路径 + 排序后的查询参数（键排序，同键的值再排序）+ 原始请求体。
// 语义相同但查询参数乱序的请求哈希一致；方法或请求体变化必然改变哈希。
func ComputeRequestHash(method, path string, query url.Values, body []byte) string {
	var b strings.Builder

	b.WriteString(strings.ToUpper(strings.TrimSpace(method)))
	b.WriteByte('\n')
	b.WriteString(path)
	b.WriteByte('\n')

	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for i, k := range keys {
		values := append([]string(nil), query[k]...)
		sort.Strings(values)
		for j, v := range values {
			if i > 0 || j > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	b.WriteByte('\n')

	h := sha256.New()
	h.Write([]byte(b.String()))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
