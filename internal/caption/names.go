package caption

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FileKind はアップロード可能なファイルの種別です。
type FileKind int

const (
	KindUnknown FileKind = iota
	KindImage
	KindText
)

// Allowlist は種別ごとの許可拡張子（小文字・ドットなし）です。
type Allowlist struct {
	images map[string]struct{}
	texts  map[string]struct{}
}

// NewAllowlist は Allowlist を作成します。
func NewAllowlist(images, texts []string) Allowlist {
	a := Allowlist{
		images: make(map[string]struct{}, len(images)),
		texts:  make(map[string]struct{}, len(texts)),
	}
	for _, ext := range images {
		a.images[strings.ToLower(ext)] = struct{}{}
	}
	for _, ext := range texts {
		a.texts[strings.ToLower(ext)] = struct{}{}
	}
	return a
}

// Kind は最後のドット以降の拡張子でファイル種別を判定します。ドットを含まない名前は KindUnknown です。
func (a Allowlist) Kind(name string) FileKind {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return KindUnknown
	}
	ext := strings.ToLower(name[i+1:])
	if _, ok := a.images[ext]; ok {
		return KindImage
	}
	if _, ok := a.texts[ext]; ok {
		return KindText
	}
	return KindUnknown
}

// IsImage は画像として一覧に載る名前かどうかを返します。
func (a Allowlist) IsImage(name string) bool {
	return a.Kind(name) == KindImage
}

// splitExt は name を語幹と拡張子に分けます。先頭に続くドットは拡張子の区切りとみなしません（".bashrc" は拡張子なし）。
func splitExt(name string) (string, string) {
	dot := strings.LastIndexByte(name, '.')
	if dot <= 0 {
		return name, ""
	}
	for i := 0; i < dot; i++ {
		if name[i] != '.' {
			return name[:dot], name[dot:]
		}
	}
	return name, ""
}

// captionFilename は画像名に対応するキャプションファイル名を返します。
func captionFilename(image, captionExt string) string {
	stem, _ := splitExt(image)
	return stem + captionExt
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)
	windowsDeviceNames  = map[string]struct{}{
		"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
		"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {},
		"LPT1": {}, "LPT2": {}, "LPT3": {},
	}
	nonASCII = runes.Predicate(func(r rune) bool {
		return r > unicode.MaxASCII
	})
)

// SanitizeFilename はファイル名を ASCII の安全な文字だけに変換します。
// NFKD 正規化後に非ASCII文字を落とし、空白を "_" に、[A-Za-z0-9_.-] 以外を除去し、前後の "." と "_" を取り除きます。
// 結果が空になることがあります。
func SanitizeFilename(name string) string {
	// Chain は内部バッファを持つため呼び出しごとに作る
	t := transform.Chain(norm.NFKD, runes.Remove(nonASCII))
	ascii, _, err := transform.String(t, name)
	if err != nil {
		ascii = ""
	}
	ascii = strings.NewReplacer("/", " ", `\`, " ").Replace(ascii)
	ascii = strings.Join(strings.Fields(ascii), "_")
	ascii = unsafeFilenameChars.ReplaceAllString(ascii, "")
	ascii = strings.Trim(ascii, "._")

	if ascii != "" {
		head := strings.ToUpper(strings.SplitN(ascii, ".", 2)[0])
		if _, ok := windowsDeviceNames[head]; ok {
			ascii = "_" + ascii
		}
	}
	return ascii
}

// storedUploadName はアップロード時の保存名を決めます。
// サニタイズで種別が変わる・語幹が消える場合は "upload-<8桁>.<拡張子>" を使います。
func (a Allowlist) storedUploadName(original string) (string, FileKind) {
	kind := a.Kind(original)
	if kind == KindUnknown {
		return "", KindUnknown
	}
	safe := SanitizeFilename(original)
	if a.Kind(safe) == kind {
		if stem, _ := splitExt(safe); stem != "" && stem != safe {
			return safe, kind
		}
	}
	ext := strings.ToLower(original[strings.LastIndexByte(original, '.')+1:])
	return "upload-" + uuid.NewString()[:8] + "." + ext, kind
}
