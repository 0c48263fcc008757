// Package qrpayload 负责入场二维码内容的编解码。
//
// 二维码只承载最小结构 {"id": 凭证ID, "v": 版本号}，姓名等信息不上码，
// 扫码端解码出 id 后交给核销服务处理。
package qrpayload

import (
	"encoding/json"
	"errors"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// ErrInvalidPayload 二维码内容不是合法的入场凭证
var ErrInvalidPayload = errors.New("二维码内容无效")

// Payload 二维码承载的数据
type Payload struct {
	ID      string `json:"id"`
	Version int    `json:"v"`
}

// Encode 生成二维码文本
func Encode(credentialID string, version int) (string, error) {
	b, err := json.Marshal(Payload{ID: credentialID, Version: version})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Decode 解析扫码得到的原始文本
// 非 JSON、缺少 id 或 id 为空白时返回 ErrInvalidPayload
func Decode(raw string) (*Payload, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidPayload
	}

	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, ErrInvalidPayload
	}
	p.ID = strings.TrimSpace(p.ID)
	if p.ID == "" {
		return nil, ErrInvalidPayload
	}
	return &p, nil
}

// PNG 将二维码文本渲染为 PNG 图片
func PNG(content string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(content, qrcode.Medium, size)
}
