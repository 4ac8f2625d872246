package presenter

import "strings"

const (
	kakaoSeeMorePadding = 500
	kakaoZeroWidthSpace = "\u200b"
)

// seeMore folds body behind KakaoTalk's "전체보기" button: the instruction line stays
// visible and zero-width padding pushes the rest below the fold.
func seeMore(body, instruction string) string {
	if strings.TrimSpace(body) == "" {
		return body
	}
	var b strings.Builder
	b.Grow(len(body) + kakaoSeeMorePadding*len(kakaoZeroWidthSpace) + len(instruction) + 1)
	b.WriteString(strings.TrimSpace(instruction))
	b.WriteString(strings.Repeat(kakaoZeroWidthSpace, kakaoSeeMorePadding))
	if !strings.HasPrefix(body, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString(body)
	return b.String()
}

// stripHeader drops a leading header line so it is not repeated under the fold.
func stripHeader(text, header string) string {
	if strings.TrimSpace(header) == "" {
		return text
	}
	for _, c := range []string{header + "\r\n\r\n", header + "\n\n", header + "\r\n", header + "\n", header} {
		if strings.HasPrefix(text, c) {
			return strings.TrimPrefix(text, c)
		}
	}
	return text
}
