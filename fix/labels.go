package fix

import (
	"regexp"
	"strings"
)

// The metadata block convention is line oriented in the source files: each
// label paragraph sits on its own line between the h1 and the first hr.
// These fixes therefore work on lines, not on a parsed tree, so untouched
// lines keep their exact bytes.

var (
	titleElemRe = regexp.MustCompile(`(?is)(<title>)(.*?)(</title>)`)
	h1ElemRe    = regexp.MustCompile(`(?is)(<h1>)(.*?)(</h1>)`)
	anyTagRe    = regexp.MustCompile(`<[^>]+>`)

	tlEmphasisRe      = regexp.MustCompile(`(?i)^(\s*)<p>\s*<(?:em|i)>\s*TL\s*:\s*(.*?)\s*</(?:em|i)>\s*</p>\s*$`)
	editingEmphasisRe = regexp.MustCompile(`(?i)^(\s*)<p>\s*<(?:em|i)>\s*Editing\s*:\s*(.*?)\s*</(?:em|i)>\s*</p>\s*$`)

	labelRewrites = []struct {
		re   *regexp.Regexp
		repl string
	}{
		{regexp.MustCompile(`(?i)(<p>\s*)Editor:\s*`), "${1}Editors: "},
		{regexp.MustCompile(`(?i)(<p>\s*)Editing:\s*`), "${1}Editors: "},
		{regexp.MustCompile(`(?i)(<p>\s*)TL:\s*`), "${1}Translator: "},
		{regexp.MustCompile(`(?i)(<p>\s*)Translated\s+by:\s*`), "${1}Translator: "},
		{regexp.MustCompile(`(?i)(<p>\s*)Translation:\s*`), "${1}Translator: "},
		// canonical casing and spacing for labels already in use
		{regexp.MustCompile(`(<p>\s*)translator\s*:\s*`), "${1}Translator: "},
		{regexp.MustCompile(`(<p>\s*)editors?\s*:\s*`), "${1}Editors: "},
		{regexp.MustCompile(`(<p>\s*)occurrence\s*:\s*`), "${1}Occurrence: "},
	}
)

func stripTags(s string) string {
	return strings.Join(strings.Fields(anyTagRe.ReplaceAllString(s, "")), " ")
}

// syncTitleToHeading copies the h1 inner markup into the title element when
// the two disagree after whitespace and tag normalization.
func syncTitleToHeading(content string) (string, bool) {
	tm := titleElemRe.FindStringSubmatchIndex(content)
	hm := h1ElemRe.FindStringSubmatchIndex(content)
	if tm == nil || hm == nil {
		return content, false
	}

	titleText := content[tm[4]:tm[5]]
	h1Text := content[hm[4]:hm[5]]
	if stripTags(h1Text) == "" || stripTags(titleText) == stripTags(h1Text) {
		return content, false
	}
	return content[:tm[4]] + h1Text + content[tm[5]:], true
}

// metadataLineRange finds the line index of the h1 and of the first hr after
// it. ok is false when the file does not follow the skeleton.
func metadataLineRange(lines []string) (h1, hr int, ok bool) {
	h1 = -1
	for i, ln := range lines {
		if strings.Contains(ln, "<h1") && strings.Contains(ln, "</h1>") {
			h1 = i
			break
		}
	}
	if h1 < 0 {
		return 0, 0, false
	}
	for i := h1 + 1; i < len(lines); i++ {
		if strings.Contains(lines[i], "<hr") {
			return h1, i, true
		}
	}
	return 0, 0, false
}

// fixMetadataLabels rewrites metadata block lines to the canonical labels.
func fixMetadataLabels(lines []string) bool {
	h1, hr, ok := metadataLineRange(lines)
	if !ok {
		return false
	}

	changed := false
	for i := h1 + 1; i < hr; i++ {
		ln := lines[i]

		if m := tlEmphasisRe.FindStringSubmatch(ln); m != nil {
			lines[i] = m[1] + "<p>Translator: " + m[2] + "</p>"
			changed = true
			continue
		}
		if m := editingEmphasisRe.FindStringSubmatch(ln); m != nil {
			lines[i] = m[1] + "<p>Editors: " + m[2] + "</p>"
			changed = true
			continue
		}

		fixed := ln
		for _, lr := range labelRewrites {
			fixed = lr.re.ReplaceAllString(fixed, lr.repl)
		}
		if fixed != ln {
			lines[i] = fixed
			changed = true
		}
	}
	return changed
}

var (
	editorsLineRe    = regexp.MustCompile(`(?i)^\s*<p>\s*Editors:\s*`)
	translatorLineRe = regexp.MustCompile(`(?i)^\s*<p>\s*Translator:\s*`)
)

// insertLocalizationCredit adds the configured credit line to the metadata
// block, after Editors: when present, else after Translator:. Nothing
// happens when a Localization: line is already there or no anchor exists.
func insertLocalizationCredit(lines []string, credit string) ([]string, bool) {
	h1, hr, ok := metadataLineRange(lines)
	if !ok {
		return lines, false
	}

	for i := h1 + 1; i < hr; i++ {
		if strings.Contains(lines[i], "<p>Localization:") {
			return lines, false
		}
	}

	insertAfter := -1
	for i := h1 + 1; i < hr; i++ {
		if editorsLineRe.MatchString(lines[i]) {
			insertAfter = i
		}
	}
	if insertAfter < 0 {
		for i := h1 + 1; i < hr; i++ {
			if translatorLineRe.MatchString(lines[i]) {
				insertAfter = i
				break
			}
		}
	}
	if insertAfter < 0 {
		return lines, false
	}

	indent := lines[insertAfter][:len(lines[insertAfter])-len(strings.TrimLeft(lines[insertAfter], " \t"))]

	// keep the existing blank line spacing style around metadata lines
	j := insertAfter + 1
	for j < hr && strings.TrimSpace(lines[j]) == "" {
		j++
	}
	at := insertAfter + 1
	if j > insertAfter+1 {
		at = j
	}

	out := make([]string, 0, len(lines)+2)
	out = append(out, lines[:at]...)
	out = append(out, indent+credit)
	if at < len(lines) && strings.TrimSpace(lines[at]) != "" {
		out = append(out, "")
	}
	out = append(out, lines[at:]...)
	return out, true
}

// ensureFinalHr puts the closing rule before the body end when the last
// meaningful element is not already an hr.
func ensureFinalHr(lines []string) ([]string, bool) {
	bodyClose := -1
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.EqualFold(strings.TrimSpace(lines[i]), "</body>") {
			bodyClose = i
			break
		}
	}
	if bodyClose < 0 {
		return lines, false
	}

	j := bodyClose - 1
	for j >= 0 && strings.TrimSpace(lines[j]) == "" {
		j--
	}
	if j < 0 {
		return lines, false
	}
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(lines[j])), "<hr") {
		return lines, false
	}

	indent := "  "
	for _, ln := range lines {
		if strings.Contains(ln, "<hr") {
			indent = ln[:len(ln)-len(strings.TrimLeft(ln, " \t"))]
			break
		}
	}

	out := make([]string, 0, len(lines)+3)
	out = append(out, lines[:bodyClose]...)
	out = append(out, "", indent+"<hr/>", "")
	out = append(out, lines[bodyClose:]...)
	return out, true
}
