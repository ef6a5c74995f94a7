// Package detect decides whether a page is a legal document (terms, privacy
// policy, cookie policy or licence) from its URL, title and text.
package detect

import (
	"math"
	"strings"
	"sync"
	"unicode"

	ahocorasick "github.com/cloudflare/ahocorasick"
	"github.com/kiranshivaraju/fineprint/pkg/models"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Score contributions. A URL match alone clears the 0.3 analysis cutoff.
const (
	urlWeight     = 0.4
	titleWeight   = 0.3
	contentWeight = 0.3
	// contentSaturation is the number of distinct content phrases that earns
	// the full content weight.
	contentSaturation = 4
	// maxScanBytes caps how much page text is scanned.
	maxScanBytes = 200_000
)

// Document types reported in Detection.DocumentType.
const (
	TypeTermsOfService = "terms_of_service"
	TypePrivacyPolicy  = "privacy_policy"
	TypeCookiePolicy   = "cookie_policy"
	TypeLicense        = "license_agreement"
	TypeUnknown        = "unknown"
)

type kind int

const (
	kindTerms kind = iota
	kindPrivacy
	kindCookie
	kindLicense
)

var kindTypes = [...]string{TypeTermsOfService, TypePrivacyPolicy, TypeCookiePolicy, TypeLicense}

type signal struct {
	phrase string
	kind   kind
}

var urlSignals = []signal{
	{"terms", kindTerms},
	{"/tos", kindTerms},
	{"conditions", kindTerms},
	{"user-agreement", kindTerms},
	{"/legal", kindTerms},
	{"privacy", kindPrivacy},
	{"data-policy", kindPrivacy},
	{"gdpr", kindPrivacy},
	{"cookie", kindCookie},
	{"eula", kindLicense},
	{"license", kindLicense},
}

var titleSignals = []signal{
	{"terms of service", kindTerms},
	{"terms of use", kindTerms},
	{"terms and conditions", kindTerms},
	{"user agreement", kindTerms},
	{"conditions of use", kindTerms},
	{"privacy policy", kindPrivacy},
	{"privacy notice", kindPrivacy},
	{"privacy statement", kindPrivacy},
	{"data policy", kindPrivacy},
	{"cookie policy", kindCookie},
	{"cookie notice", kindCookie},
	{"license agreement", kindLicense},
	{"eula", kindLicense},
}

var contentSignals = []signal{
	{"by using", kindTerms},
	{"you agree", kindTerms},
	{"binding arbitration", kindTerms},
	{"limitation of liability", kindTerms},
	{"governing law", kindTerms},
	{"indemnify", kindTerms},
	{"terminate your account", kindTerms},
	{"personal information", kindPrivacy},
	{"personal data", kindPrivacy},
	{"we collect", kindPrivacy},
	{"third parties", kindPrivacy},
	{"data protection", kindPrivacy},
	{"opt out", kindPrivacy},
	{"we use cookies", kindCookie},
	{"tracking technologies", kindCookie},
	{"licensed, not sold", kindLicense},
	{"reverse engineer", kindLicense},
}

// phraseSet is an Aho-Corasick automaton over one group of signals. The
// matcher keeps per-call state, so Match runs under mu.
type phraseSet struct {
	mu      sync.Mutex
	matcher *ahocorasick.Matcher
	signals []signal
}

func newPhraseSet(signals []signal) *phraseSet {
	phrases := make([]string, len(signals))
	for i, s := range signals {
		phrases[i] = s.phrase
	}
	return &phraseSet{matcher: ahocorasick.NewStringMatcher(phrases), signals: signals}
}

// find returns the distinct signals present in text.
func (p *phraseSet) find(text string) []signal {
	if text == "" {
		return nil
	}
	p.mu.Lock()
	hits := p.matcher.Match([]byte(text))
	p.mu.Unlock()
	out := make([]signal, 0, len(hits))
	for _, i := range hits {
		if i < len(p.signals) {
			out = append(out, p.signals[i])
		}
	}
	return out
}

// KeywordDetector scores pages by phrase matches. It is safe for concurrent use.
type KeywordDetector struct {
	url     *phraseSet
	title   *phraseSet
	content *phraseSet
}

func NewKeywordDetector() *KeywordDetector {
	return &KeywordDetector{
		url:     newPhraseSet(urlSignals),
		title:   newPhraseSet(titleSignals),
		content: newPhraseSet(contentSignals),
	}
}

// Detect scores a page. Confidence is in [0, 1].
func (d *KeywordDetector) Detect(url, title, content string) models.Detection {
	if len(content) > maxScanBytes {
		content = content[:maxScanBytes]
	}

	var (
		votes      [len(kindTypes)]int
		indicators []string
		confidence float64
	)
	tally := func(source string, hits []signal) {
		for _, h := range hits {
			votes[h.kind]++
			indicators = append(indicators, source+":"+strings.TrimSpace(strings.Trim(h.phrase, "/")))
		}
	}

	if hits := d.url.find(normalize(url)); len(hits) > 0 {
		confidence += urlWeight
		tally("url", hits)
	}
	if hits := d.title.find(normalize(title)); len(hits) > 0 {
		confidence += titleWeight
		tally("title", hits)
	}
	if hits := d.content.find(normalize(content)); len(hits) > 0 {
		confidence += contentWeight * math.Min(1, float64(len(hits))/contentSaturation)
		tally("content", hits)
	}

	det := models.Detection{
		DocumentType: TypeUnknown,
		Confidence:   math.Min(1, math.Round(confidence*100)/100),
		Indicators:   indicators,
	}
	best := -1
	for k, v := range votes {
		if v > 0 && (best < 0 || v > votes[best]) {
			best = k
		}
	}
	if best >= 0 {
		det.DocumentType = kindTypes[best]
	}
	det.IsTermsPage = votes[kindTerms] > 0 || votes[kindLicense] > 0
	det.IsPrivacyPage = votes[kindPrivacy] > 0 || votes[kindCookie] > 0
	return det
}

// normalize lowercases text, strips accents and folds whitespace runs to one space.
func normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}
