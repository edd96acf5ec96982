package classify

import (
	"math"
	"strconv"
	"strings"
)

// Kind 屬性值的種類
type Kind int

const (
	// Absent 空白、None、零值
	Absent Kind = iota
	// Int 整數（含只由數字組成的字串）
	Int
	// Text 其他非空內容
	Text
)

// Value 正規化後的屬性值
//
// 來源資料混用數字、數字字串、空字串與 "None"；所有比較都只透過 Value 進行。
type Value struct {
	Kind Kind
	Int  int64
	Text string
}

// Normalize 將任意屬性值轉為 Value
//
// 規則：
//   - nil、空白字串、"None"、"0"、數值 0 => Absent
//   - 只含數字的字串、整數、整數值的浮點數 => Int
//   - 其他浮點數、其他字串 => Text
func Normalize(v any) Value {
	switch x := v.(type) {
	case nil:
		return Value{}
	case string:
		return normalizeString(x)
	case bool:
		if !x {
			return Value{}
		}
		return Value{Kind: Text, Text: "true"}
	case int:
		return fromInt(int64(x))
	case int32:
		return fromInt(int64(x))
	case int64:
		return fromInt(x)
	case uint:
		return fromInt(int64(x))
	case uint32:
		return fromInt(int64(x))
	case uint64:
		return fromInt(int64(x))
	case float32:
		return fromFloat(float64(x))
	case float64:
		return fromFloat(x)
	default:
		return normalizeString(toString(x))
	}
}

// Present 是否有值
func (v Value) Present() bool { return v.Kind != Absent }

// Equal 比較兩個值；Int 只與 Int 比較數值，Text 只與 Text 比較字串
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case Int:
		return v.Int == o.Int
	case Text:
		return v.Text == o.Text
	default:
		return true
	}
}

// String 回傳 group key 使用的字串形式
func (v Value) String() string {
	switch v.Kind {
	case Int:
		return strconv.FormatInt(v.Int, 10)
	case Text:
		return v.Text
	default:
		return ""
	}
}

func normalizeString(s string) Value {
	s = strings.TrimSpace(s)
	if s == "" || s == "None" || s == "0" {
		return Value{}
	}
	if isDigits(s) {
		n, err := strconv.ParseInt(s, 10, 64)
		if err == nil {
			return fromInt(n)
		}
	}
	return Value{Kind: Text, Text: s}
}

func fromInt(n int64) Value {
	if n == 0 {
		return Value{}
	}
	return Value{Kind: Int, Int: n}
}

func fromFloat(f float64) Value {
	if f == 0 || math.IsNaN(f) {
		return Value{}
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return fromInt(int64(f))
	}
	return Value{Kind: Text, Text: strconv.FormatFloat(f, 'f', -1, 64)}
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func toString(v any) string {
	if s, ok := v.(interface{ String() string }); ok {
		return s.String()
	}
	return ""
}
