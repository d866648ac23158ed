package tool

import (
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictPolicyOnce sync.Once
	strictPolicy     *bluemonday.Policy

	richTextPolicyOnce sync.Once
	richTextPolicy     *bluemonday.Policy
)

// StrictHTMLPolicy returns a shared policy that strips every element and attribute.
func StrictHTMLPolicy() *bluemonday.Policy {
	strictPolicyOnce.Do(func() {
		strictPolicy = bluemonday.StrictPolicy()
	})
	return strictPolicy
}

// RichTextHTMLPolicy returns a shared policy allowing the formatting tags
// produced by markdown rendering while dropping scripts, event handlers and
// unsafe URLs.
func RichTextHTMLPolicy() *bluemonday.Policy {
	richTextPolicyOnce.Do(func() {
		policy := bluemonday.UGCPolicy()
		policy.AllowAttrs("class").OnElements("code", "pre")
		policy.AllowURLSchemes("http", "https", "mailto")
		policy.RequireParseableURLs(true)
		policy.AddTargetBlankToFullyQualifiedLinks(true)
		richTextPolicy = policy
	})
	return richTextPolicy
}

// PlainText removes all markup from s. Entities produced by the sanitizer
// for quotes and ampersands are decoded back so the result reads naturally.
func PlainText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	out := StrictHTMLPolicy().Sanitize(s)
	out = strings.NewReplacer("&amp;", "&", "&#39;", "'", "&#34;", "\"", "&quot;", "\"", "&lt;", "<", "&gt;", ">").Replace(out)
	return strings.TrimSpace(out)
}

// SanitizeRichText cleans rendered HTML with RichTextHTMLPolicy.
func SanitizeRichText(s string) string {
	return strings.TrimSpace(RichTextHTMLPolicy().Sanitize(s))
}
