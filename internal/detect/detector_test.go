package detect

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect_URLAloneClearsCutoff(t *testing.T) {
	d := NewKeywordDetector()

	det := d.Detect("https://example.com/legal/terms-of-service", "", "")
	assert.True(t, det.IsTermsPage)
	assert.False(t, det.IsPrivacyPage)
	assert.Equal(t, TypeTermsOfService, det.DocumentType)
	assert.Greater(t, det.Confidence, 0.3)
	assert.Contains(t, det.Indicators, "url:terms")
}

func TestDetect_NonLegalPage(t *testing.T) {
	d := NewKeywordDetector()

	det := d.Detect("https://example.com/blog/launch", "We launched!", "Read about our new product.")
	assert.Equal(t, TypeUnknown, det.DocumentType)
	assert.Zero(t, det.Confidence)
	assert.False(t, det.IsTermsPage)
	assert.False(t, det.IsPrivacyPage)
	assert.Empty(t, det.Indicators)
}

func TestDetect_PrivacyPolicyWithContent(t *testing.T) {
	d := NewKeywordDetector()

	content := `We collect personal information when you sign up. We may share personal data
	with third parties. You can opt out at any time.`
	det := d.Detect("https://example.com/privacy", "Privacy Policy | Example", content)

	assert.True(t, det.IsPrivacyPage)
	assert.Equal(t, TypePrivacyPolicy, det.DocumentType)
	assert.Equal(t, 1.0, det.Confidence)
}

func TestDetect_ContentScalesWithDistinctPhrases(t *testing.T) {
	d := NewKeywordDetector()

	one := d.Detect("https://example.com/page", "", "you agree. you agree. you agree.")
	assert.InDelta(t, 0.075, one.Confidence, 0.006)

	many := d.Detect("https://example.com/page", "",
		"By using the service you agree to binding arbitration and a limitation of liability.")
	assert.InDelta(t, 0.3, many.Confidence, 1e-9)
}

func TestDetect_NormalizesCaseAccentsAndWhitespace(t *testing.T) {
	d := NewKeywordDetector()

	det := d.Detect("https://EXAMPLE.com/Page", "TÉRMS   of\tSERVICE", "")
	assert.InDelta(t, 0.3, det.Confidence, 1e-9)
	assert.Equal(t, TypeTermsOfService, det.DocumentType)
}

func TestDetect_CookieAndLicense(t *testing.T) {
	d := NewKeywordDetector()

	cookie := d.Detect("https://example.com/cookie-policy", "Cookie Policy", "")
	assert.Equal(t, TypeCookiePolicy, cookie.DocumentType)
	assert.True(t, cookie.IsPrivacyPage)

	eula := d.Detect("https://example.com/eula", "End User License Agreement", "")
	assert.Equal(t, TypeLicense, eula.DocumentType)
	assert.True(t, eula.IsTermsPage)
}

func TestDetect_LongContentIsCapped(t *testing.T) {
	d := NewKeywordDetector()

	content := strings.Repeat("lorem ipsum ", maxScanBytes/6) + "binding arbitration"
	det := d.Detect("https://example.com/page", "", content)
	assert.Zero(t, det.Confidence)
}

func TestDetect_ConcurrentUse(t *testing.T) {
	d := NewKeywordDetector()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			det := d.Detect("https://example.com/terms", "Terms of Use", "you agree")
			assert.True(t, det.IsTermsPage)
		}()
	}
	wg.Wait()
}
