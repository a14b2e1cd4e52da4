package caption

import (
	"sort"
	"strings"
)

// digitKey は名前に含まれる ASCII 数字を連結し、先頭の 0 を除いたものを返します。
// 数字を含まない場合は ok=false です。
func digitKey(name string) (key string, ok bool) {
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		if c := name[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	if b.Len() == 0 {
		return "", false
	}
	key = strings.TrimLeft(b.String(), "0")
	return key, true
}

// compareDigitKeys は桁数、次に辞書順で比較するため、どれだけ長い数字でも桁あふれしません。
func compareDigitKeys(a, b string) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

// SortImages は名前に含まれる数字の値で並べ替えます（"2.png" < "10.png"）。
// 数字を含む名前が先、含まない名前はその後に辞書順で並びます。数値が同じ場合も辞書順です。
func SortImages(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		ki, oki := digitKey(names[i])
		kj, okj := digitKey(names[j])
		switch {
		case oki && okj:
			if c := compareDigitKeys(ki, kj); c != 0 {
				return c < 0
			}
		case oki != okj:
			return oki
		}
		return names[i] < names[j]
	})
}
