package llm

import (
	"regexp"
	"strings"
)

var (
	dollarRuns    = regexp.MustCompile(`\${2,}`)
	delimReplacer = strings.NewReplacer(`\(`, "$$", `\)`, "$$", `\[`, "$$", `\]`, "$$")
)

// NormalizeLaTeX 对模型输出做后处理，确保数学公式被包裹在 $$ 内：
// 连续两个以上的 $ 压缩为 $$，\( \) \[ \] 统一替换为 $$。
func NormalizeLaTeX(text string) string {
	text = dollarRuns.ReplaceAllString(text, "$$$$")
	return delimReplacer.Replace(text)
}
