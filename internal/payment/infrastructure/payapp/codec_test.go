package payapp

import "testing"

func TestDecode(t *testing.T) {
	t.Parallel()

	f, err := Decode([]byte("state=1&mul_no=555&errorMessage=%EC%98%A4%EB%A5%98&dup=a&dup=b\n"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if f.Get("state") != "1" || f.Get("mul_no") != "555" || f.Get("errorMessage") != "오류" || f.Get("dup") != "a" {
		t.Fatalf("unexpected fields %v", f)
	}
	if f.Get("missing") != "" {
		t.Fatal("missing key should be empty")
	}

	if _, err := Decode([]byte("state=%zz")); err == nil {
		t.Fatal("expected error for malformed escape")
	}
}

func TestEncode(t *testing.T) {
	t.Parallel()

	got := Encode(Fields{"cmd": "payrequest", "goodname": "위젯 A&B", "memo": ""})
	want := "cmd=payrequest&goodname=%EC%9C%84%EC%A0%AF+A%26B&memo="
	if got != want {
		t.Fatalf("Encode = %q, want %q", got, want)
	}

	back, err := Decode([]byte(got))
	if err != nil || back.Get("goodname") != "위젯 A&B" {
		t.Fatalf("round trip failed: %v %v", back, err)
	}
}

func TestUnescapeURL(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"https://pay.example/555":         "https://pay.example/555",
		"https%3A%2F%2Fpay.example%2F555": "https://pay.example/555",
		"https://pay.example/%zz":         "https://pay.example/%zz",
		"":                                "",
	}
	for in, want := range tests {
		if got := unescapeURL(in); got != want {
			t.Errorf("unescapeURL(%q) = %q, want %q", in, got, want)
		}
	}
}
