package qrpayload

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecode(t *testing.T) {
	raw, err := Encode("9b2f6c1e-0d3a-4f0e-9a51-0c8f2a7d4e11", 1)
	if err != nil {
		t.Fatalf("Encode 失败: %v", err)
	}
	if raw != `{"id":"9b2f6c1e-0d3a-4f0e-9a51-0c8f2a7d4e11","v":1}` {
		t.Errorf("二维码文本格式不符: %s", raw)
	}

	p, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode 失败: %v", err)
	}
	if p.ID != "9b2f6c1e-0d3a-4f0e-9a51-0c8f2a7d4e11" || p.Version != 1 {
		t.Errorf("解码结果不符: %+v", p)
	}
}

func TestDecode_Invalid(t *testing.T) {
	cases := []string{
		"",
		"   ",
		"not json",
		`{"v":1}`,
		`{"id":"   ","v":1}`,
		`["id"]`,
	}
	for _, raw := range cases {
		if _, err := Decode(raw); !errors.Is(err, ErrInvalidPayload) {
			t.Errorf("Decode(%q) 期望 ErrInvalidPayload，实际: %v", raw, err)
		}
	}
}

func TestDecode_TrimsID(t *testing.T) {
	p, err := Decode(` {"id":" abc-123 ","v":2} `)
	if err != nil {
		t.Fatalf("Decode 失败: %v", err)
	}
	if p.ID != "abc-123" {
		t.Errorf("期望 id 去除首尾空白，实际=%q", p.ID)
	}
}

func TestPNG(t *testing.T) {
	img, err := PNG(`{"id":"abc","v":1}`, 0)
	if err != nil {
		t.Fatalf("PNG 失败: %v", err)
	}
	if !bytes.HasPrefix(img, []byte("\x89PNG")) {
		t.Error("输出不是 PNG 图片")
	}
}
